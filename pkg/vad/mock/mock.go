// Package mock provides a scripted vad.Detector for tests.
package mock

import (
	"sync"

	"github.com/parlavox/parlavox/pkg/vad"
)

// Detector returns pre-scripted results in order and records every frame it
// receives. When the script is exhausted, the last scripted result (or the
// zero Result) is repeated.
//
// Unlike production detectors, the mock is safe for concurrent use so tests
// can inspect it while the responder runs.
type Detector struct {
	mu      sync.Mutex
	script  []vad.Result
	pos     int
	frames  [][]int16
	resets  int
	lastRes vad.Result
}

var _ vad.Detector = (*Detector)(nil)

// New creates a Detector that replays script in order.
func New(script ...vad.Result) *Detector {
	return &Detector{script: script}
}

// Update records frame and returns the next scripted result.
func (d *Detector) Update(frame []int16) vad.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := make([]int16, len(frame))
	copy(cp, frame)
	d.frames = append(d.frames, cp)

	if d.pos < len(d.script) {
		d.lastRes = d.script[d.pos]
		d.pos++
	}
	return d.lastRes
}

// Reset increments the reset counter.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
}

// Frames returns a copy of all frames received so far.
func (d *Detector) Frames() [][]int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]int16, len(d.frames))
	copy(out, d.frames)
	return out
}

// Resets returns how many times Reset has been called.
func (d *Detector) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}
