// Package resample provides a stateful streaming sample-rate converter for
// mono float32 PCM.
//
// Unlike a whole-signal resampler, [Resampler] carries its fractional read
// position and the final input sample across calls, so feeding it a signal
// in arbitrary chunk sizes produces the same output as feeding the
// concatenated signal in one call. This matters for TTS streams, whose chunk
// boundaries fall mid-phoneme: a per-chunk resampler restart would be
// audible as a click at every boundary.
package resample

import (
	"fmt"
	"math"
)

// Resampler converts a continuous stream of float32 samples from a source
// rate to a target rate using linear interpolation.
//
// A Resampler is not safe for concurrent use; each synthesis stream owns
// its own instance.
type Resampler struct {
	sourceRate int
	targetRate int
	step       float64 // input samples consumed per output sample

	// phase is the fractional read position, measured from the carried
	// sample. It may exceed 1.0 after a downsampling call consumes past the
	// chunk boundary.
	phase  float64
	last   float32 // final input sample of the previous chunk
	primed bool    // last holds a valid sample
}

// New creates a Resampler for the given rate pair.
func New(sourceRate, targetRate int) (*Resampler, error) {
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rate pair %d -> %d", sourceRate, targetRate)
	}
	return &Resampler{
		sourceRate: sourceRate,
		targetRate: targetRate,
		step:       float64(sourceRate) / float64(targetRate),
	}, nil
}

// SourceRate returns the currently configured input rate.
func (r *Resampler) SourceRate() int { return r.sourceRate }

// Reset discards all carried state and reconfigures the input rate.
// The orchestrator calls this when a TTS chunk reports a different native
// rate than the previous chunk; interpolating across a rate change would
// produce garbage, so the stream restarts cleanly.
func (r *Resampler) Reset(sourceRate int) error {
	if sourceRate <= 0 {
		return fmt.Errorf("resample: invalid source rate %d", sourceRate)
	}
	r.sourceRate = sourceRate
	r.step = float64(sourceRate) / float64(r.targetRate)
	r.phase = 0
	r.last = 0
	r.primed = false
	return nil
}

// Resample converts one chunk of input samples to the target rate.
//
// When the source and target rates match, the input slice is returned as-is
// and no interpolation (or sanitisation) is performed. Otherwise non-finite
// input samples are replaced with zero before interpolation. Output
// amplitude is not clipped here; clipping happens at quantisation.
//
// An empty input yields an empty output and leaves carried state untouched.
func (r *Resampler) Resample(in []float32) []float32 {
	if r.sourceRate == r.targetRate {
		return in
	}
	if len(in) == 0 {
		return nil
	}

	// Assemble the working signal: carried boundary sample plus the
	// sanitised new chunk.
	src := make([]float32, 0, len(in)+1)
	if r.primed {
		src = append(src, r.last)
	}
	for _, s := range in {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			s = 0
		}
		src = append(src, s)
	}
	r.primed = true

	outCap := int(float64(len(in))/r.step) + 2
	out := make([]float32, 0, outCap)

	pos := r.phase
	for int(pos)+1 < len(src) {
		i := int(pos)
		frac := float32(pos - float64(i))
		out = append(out, src[i]+frac*(src[i+1]-src[i]))
		pos += r.step
	}

	// Carry the final sample and the position relative to it. The sample at
	// the exact boundary is emitted by the next call so it can still be
	// interpolated against its successor.
	r.last = src[len(src)-1]
	r.phase = pos - float64(len(src)-1)
	return out
}
