// Package mock provides a scripted tts.Provider for tests and offline
// operation.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/parlavox/parlavox/pkg/audio"
	"github.com/parlavox/parlavox/pkg/tts"
)

// Provider replays a fixed chunk sequence for every synthesis request.
// The zero value streams nothing. Safe for concurrent use.
type Provider struct {
	// Chunks is the sequence emitted per request.
	Chunks []audio.Chunk

	// ChunkDelay, when non-zero, is slept before each chunk to simulate
	// synthesis pacing.
	ChunkDelay time.Duration

	// FailAfter, when >= 0, aborts the stream (closes the channel early)
	// after that many chunks. Use -1 to never fail.
	FailAfter int

	mu       sync.Mutex
	requests []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Provider that streams the given chunks and never fails.
func New(chunks ...audio.Chunk) *Provider {
	return &Provider{Chunks: chunks, FailAfter: -1}
}

// SynthesizeStream records req and replays the configured chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, req tts.Request) (<-chan audio.Chunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	chunks := p.Chunks
	delay := p.ChunkDelay
	failAfter := p.FailAfter
	p.mu.Unlock()

	out := make(chan audio.Chunk)
	go func() {
		defer close(out)
		for i, c := range chunks {
			if failAfter >= 0 && i >= failAfter {
				return
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Requests returns a copy of all synthesis requests received so far.
func (p *Provider) Requests() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
