// Package vad defines the voice activity detection contract used to gate
// the responder's outbound audio.
//
// A detector classifies short uplink PCM frames as speech or silence with
// hysteresis in both directions, so a single loud frame does not trigger
// barge-in and a single quiet frame does not end it. Detection is
// synchronous by design: [Detector.Update] returns immediately, making it
// safe to call from the transport's frame callback.
//
// A Detector instance serves exactly one audio stream and is not safe for
// concurrent use.
package vad

import (
	"errors"
	"fmt"
)

// State classifies the caller's current activity.
type State int

const (
	// Silence means no caller speech is in progress.
	Silence State = iota

	// Speaking means the caller is talking.
	Speaking
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Silence:
		return "silence"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Result is the detection outcome for one uplink frame. Results have no
// lifecycle of their own; a fresh value is produced on every Update call.
type Result struct {
	// State is the classification after hysteresis.
	State State

	// Energy is the frame's normalised energy in [0, 1].
	Energy float64
}

// Adaptive configures noise-floor tracking. When enabled, the detector
// follows the ambient level with an exponential moving average and places
// the speech thresholds a fixed margin above it, so a noisy phone line does
// not pin the detector in Speaking.
type Adaptive struct {
	// EMAAlpha is the moving-average weight of the newest frame. The floor
	// is only updated while the detector classifies Silence, so speech does
	// not bias it upward. Typical: 0.05.
	EMAAlpha float64

	// EnterMarginDB is how far above the noise floor, in decibels, energy
	// must rise to count toward entering Speaking. Typical: 9.
	EnterMarginDB float64

	// ResumeMarginDB is how far above the noise floor, in decibels, energy
	// must stay for a frame to still count as speech once Speaking.
	// Typically lower than EnterMarginDB. Typical: 6.
	ResumeMarginDB float64
}

// Config holds the parameters for a detector.
type Config struct {
	// SampleRate is the uplink rate in Hz. Must match the frames passed to
	// Update.
	SampleRate int

	// FrameMs is the duration of each uplink frame in milliseconds.
	FrameMs int

	// EnergyThreshold is the fixed normalised energy threshold used when
	// Adaptive is nil. Range (0, 1). Typical: 0.02.
	EnergyThreshold float64

	// EnterSpeakingMs is how long energy must continuously exceed the
	// threshold before the state flips to Speaking.
	EnterSpeakingMs int

	// ResumeSilenceMs is how long energy must continuously stay below the
	// threshold before the state returns to Silence.
	ResumeSilenceMs int

	// Adaptive enables noise-floor tracking. When nil the fixed
	// EnergyThreshold is used for both directions.
	Adaptive *Adaptive
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all failures found.
func (cfg Config) Validate() error {
	var errs []error
	if cfg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate %d must be positive", cfg.SampleRate))
	}
	if cfg.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("vad: frame duration %dms must be positive", cfg.FrameMs))
	}
	if cfg.Adaptive == nil && (cfg.EnergyThreshold <= 0 || cfg.EnergyThreshold >= 1) {
		errs = append(errs, fmt.Errorf("vad: energy threshold %g is out of range (0, 1)", cfg.EnergyThreshold))
	}
	if cfg.EnterSpeakingMs < 0 {
		errs = append(errs, fmt.Errorf("vad: enter_speaking_ms %d must not be negative", cfg.EnterSpeakingMs))
	}
	if cfg.ResumeSilenceMs < 0 {
		errs = append(errs, fmt.Errorf("vad: resume_silence_ms %d must not be negative", cfg.ResumeSilenceMs))
	}
	if cfg.Adaptive != nil {
		if a := cfg.Adaptive; a.EMAAlpha <= 0 || a.EMAAlpha > 1 {
			errs = append(errs, fmt.Errorf("vad: ema_alpha %g is out of range (0, 1]", a.EMAAlpha))
		}
	}
	return errors.Join(errs...)
}

// Detector is the abstraction over a voice activity detection backend.
// It is an interface so test code can supply scripted implementations.
type Detector interface {
	// Update analyses one uplink PCM frame and returns the detection result.
	// An empty or malformed frame is a no-op that returns the previous
	// state. Update must not block.
	Update(frame []int16) Result

	// Reset clears all accumulated state (noise floor, hysteresis counters)
	// without discarding configuration. Use it when the audio stream is
	// interrupted or restarted.
	Reset()
}
