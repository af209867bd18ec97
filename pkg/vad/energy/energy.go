// Package energy implements a pure-Go voice activity detector based on
// frame energy with an adaptively tracked noise floor.
//
// It needs no model weights or cgo, which makes it the default detector for
// telephony uplink: at 8 kHz narrowband the energy envelope separates
// speech from line noise well once the floor adapts.
package energy

import (
	"math"

	"github.com/parlavox/parlavox/pkg/vad"
)

// Detector classifies uplink frames as speech or silence using mean
// absolute amplitude with dual-duration hysteresis.
//
// Not safe for concurrent use; one Detector serves one stream.
type Detector struct {
	cfg vad.Config

	// Linear threshold ratios precomputed from the dB margins.
	enterRatio  float64
	resumeRatio float64

	// framesToEnter/framesToResume are the hysteresis counts derived from
	// the configured durations, never less than one frame.
	framesToEnter  int
	framesToResume int

	state       vad.State
	floor       float64 // noise-floor estimate, normalised [0, 1]
	floorPrimed bool
	aboveCount  int
	belowCount  int
	lastEnergy  float64
}

// Compile-time assertion that Detector satisfies the vad.Detector interface.
var _ vad.Detector = (*Detector)(nil)

// New creates a Detector from cfg.
func New(cfg vad.Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:            cfg,
		framesToEnter:  framesFor(cfg.EnterSpeakingMs, cfg.FrameMs),
		framesToResume: framesFor(cfg.ResumeSilenceMs, cfg.FrameMs),
	}
	if a := cfg.Adaptive; a != nil {
		d.enterRatio = math.Pow(10, a.EnterMarginDB/20)
		d.resumeRatio = math.Pow(10, a.ResumeMarginDB/20)
	}
	return d, nil
}

// Update analyses one uplink PCM frame. An empty frame is a no-op and
// returns the previous state with the previous energy.
func (d *Detector) Update(frame []int16) vad.Result {
	if len(frame) == 0 {
		return vad.Result{State: d.state, Energy: d.lastEnergy}
	}

	energy := meanAbs(frame)
	d.lastEnergy = energy

	// Track the noise floor only while classified Silence so speech does
	// not drag it upward.
	if d.cfg.Adaptive != nil && d.state == vad.Silence {
		if !d.floorPrimed {
			d.floor = energy
			d.floorPrimed = true
		} else {
			a := d.cfg.Adaptive.EMAAlpha
			d.floor = d.floor*(1-a) + energy*a
		}
	}

	enter, resume := d.thresholds()

	switch d.state {
	case vad.Silence:
		if energy > enter {
			d.aboveCount++
			if d.aboveCount >= d.framesToEnter {
				d.state = vad.Speaking
				d.aboveCount = 0
				d.belowCount = 0
			}
		} else {
			d.aboveCount = 0
		}
	case vad.Speaking:
		if energy < resume {
			d.belowCount++
			if d.belowCount >= d.framesToResume {
				d.state = vad.Silence
				d.aboveCount = 0
				d.belowCount = 0
			}
		} else {
			d.belowCount = 0
		}
	}

	return vad.Result{State: d.state, Energy: energy}
}

// Reset clears the noise floor and hysteresis counters. Configuration is
// retained.
func (d *Detector) Reset() {
	d.state = vad.Silence
	d.floor = 0
	d.floorPrimed = false
	d.aboveCount = 0
	d.belowCount = 0
	d.lastEnergy = 0
}

// thresholds returns the current enter/resume energy thresholds, either
// derived from the tracked floor or fixed.
func (d *Detector) thresholds() (enter, resume float64) {
	if d.cfg.Adaptive == nil {
		return d.cfg.EnergyThreshold, d.cfg.EnergyThreshold
	}
	// Before the floor is primed, only an absurdly loud first frame counts.
	floor := d.floor
	if !d.floorPrimed {
		floor = 1
	}
	return floor * d.enterRatio, floor * d.resumeRatio
}

// meanAbs returns the mean absolute amplitude of frame normalised to [0, 1].
func meanAbs(frame []int16) float64 {
	var sum float64
	for _, s := range frame {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(len(frame)) / 32768
}

// framesFor converts a duration requirement to a frame count, minimum one.
func framesFor(durMs, frameMs int) int {
	n := durMs / frameMs
	if n < 1 {
		n = 1
	}
	return n
}
