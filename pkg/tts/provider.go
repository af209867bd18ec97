// Package tts defines the Provider interface for streaming text-to-speech
// sources.
//
// A TTS provider wraps a synthesis backend and presents it as an
// asynchronous, cancellable sequence of float PCM chunks. The responder
// treats the provider as opaque: it never sees the model, only the chunk
// stream. Chunks arrive at whatever pace the backend synthesises — there is
// no cadence guarantee, which is exactly the burstiness the jitter buffer
// exists to absorb.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel.
package tts

import (
	"context"

	"github.com/parlavox/parlavox/pkg/audio"
)

// Request describes one utterance to synthesise.
type Request struct {
	// Text is the script to speak.
	Text string

	// SpeakerID selects the provider-specific voice.
	SpeakerID string

	// Speed is the playback-rate factor. Zero means the provider default
	// (1.0).
	Speed float64
}

// Provider is the abstraction over any streaming TTS backend.
type Provider interface {
	// SynthesizeStream starts synthesis of req and returns a channel that
	// emits [audio.Chunk] values as they become available. The stream may
	// be empty. Chunks of the same utterance may report different native
	// sample rates if the backend switches models mid-stream.
	//
	// The returned channel is closed by the implementation when synthesis
	// completes, fails, or ctx is cancelled. The caller must drain the
	// channel to avoid blocking the provider's internal goroutines; callers
	// should check ctx.Err() to distinguish cancellation from a provider
	// failure.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, req Request) (<-chan audio.Chunk, error)
}
