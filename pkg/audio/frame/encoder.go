// Package frame turns a continuous PCM stream into fixed-size encoded
// telephony frames.
//
// The [Encoder] is the boundary between the float world of synthesis and
// the byte world of the wire: [Quantize] converts float32 samples to
// little-endian int16 PCM, and [Encoder.Encode] slices that stream into
// exactly-one-ptime frames companded per the session's codec. Partial
// frames never escape except through [Encoder.Flush], which zero-pads the
// tail of an utterance.
package frame

import (
	"fmt"
	"math"

	"github.com/parlavox/parlavox/pkg/audio"
	"github.com/parlavox/parlavox/pkg/audio/g711"
)

// Quantize converts float32 samples in [-1, 1] to little-endian 16-bit PCM.
// Values are scaled by 32767, rounded, and clamped to the int16 range.
// Non-finite samples map to zero.
func Quantize(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		v := math.Round(f * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		p := int16(v)
		out[2*i] = byte(p)
		out[2*i+1] = byte(p >> 8)
	}
	return out
}

// Encoder accumulates PCM16 bytes and emits encoded frames of exactly
// the profile's frame size.
//
// An Encoder is not safe for concurrent use; each synthesis stream owns
// its own instance.
type Encoder struct {
	profile  audio.MediaProfile
	pcmBytes int    // PCM16 bytes per frame
	pending  []byte // PCM16 remainder, always < pcmBytes
}

// NewEncoder creates an Encoder for the given media profile.
func NewEncoder(profile audio.MediaProfile) (*Encoder, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{
		profile:  profile,
		pcmBytes: profile.SamplesPerFrame * 2,
	}, nil
}

// Encode appends pcm16 to the internal accumulator and returns zero or more
// complete encoded frames. Any remainder smaller than one frame is retained
// for the next call.
func (e *Encoder) Encode(pcm16 []byte) [][]byte {
	e.pending = append(e.pending, pcm16...)

	var frames [][]byte
	for len(e.pending) >= e.pcmBytes {
		frames = append(frames, e.encodeFrame(e.pending[:e.pcmBytes]))
		e.pending = e.pending[e.pcmBytes:]
	}
	return frames
}

// Flush zero-pads any retained remainder into one final frame and resets the
// accumulator. It returns nil when no remainder exists.
func (e *Encoder) Flush() []byte {
	if len(e.pending) == 0 {
		return nil
	}
	padded := make([]byte, e.pcmBytes)
	copy(padded, e.pending)
	e.pending = e.pending[:0]
	return e.encodeFrame(padded)
}

// Reset discards any retained remainder without emitting it. Used when an
// utterance is cancelled mid-stream and its tail must not be flushed.
func (e *Encoder) Reset() { e.pending = e.pending[:0] }

// PendingBytes returns the size of the retained PCM16 remainder. Exposed for
// tests and diagnostics.
func (e *Encoder) PendingBytes() int { return len(e.pending) }

// encodeFrame compands one full PCM16 frame per the profile's codec.
// pcm must be exactly e.pcmBytes long.
func (e *Encoder) encodeFrame(pcm []byte) []byte {
	switch e.profile.Codec {
	case audio.CodecPCMU:
		return g711.EncodeMuLawSlice(audio.DecodePCM16(pcm))
	case audio.CodecPCMA:
		return g711.EncodeALawSlice(audio.DecodePCM16(pcm))
	default:
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}
}

// SilenceFrame returns one frame of digital silence encoded per the
// profile's codec. The playout scheduler encodes this once per session and
// substitutes it whenever no real frame may be sent.
func SilenceFrame(profile audio.MediaProfile) ([]byte, error) {
	e, err := NewEncoder(profile)
	if err != nil {
		return nil, fmt.Errorf("frame: silence frame: %w", err)
	}
	return e.encodeFrame(make([]byte, e.pcmBytes)), nil
}
