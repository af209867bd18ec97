// Package jitter decouples the irregular arrival of encoded audio frames
// from their fixed-cadence playout.
//
// [Buffer] is the FIFO queue the synthesis pipeline pushes into;
// [Scheduler] is the single consumer that paces emission at the session's
// ptime, substituting pre-encoded silence whenever no real frame may be
// sent. Between them they absorb the rate mismatch of an unbounded-speed
// producer (TTS synthesises faster than real time, in bursts) and a
// consumer locked to the telephony frame cadence.
package jitter

import (
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed buffer.
var ErrClosed = errors.New("jitter: buffer closed")

// Buffer is a capacity-bounded FIFO of encoded frames. Insertion order is
// playout order; frames already arrive in synthesis order, so no
// reordering or priority is ever applied.
//
// The buffer is the only object in a call session mutated by two execution
// contexts: producers call [Buffer.Push], the scheduler calls
// [Buffer.TryPop]. All methods are safe for concurrent use.
//
// When the buffer is full, Push drops the oldest queued frame rather than
// blocking: a blocked producer would stall the TTS stream reader, and
// after a scheduler stall the newest audio is the closest to "live".
type Buffer struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
	dropped  uint64
	closed   bool
}

// NewBuffer creates a Buffer holding at most capacity frames.
// A capacity of zero or less means unbounded.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// Push appends frame to the queue. It never blocks. Returns false when the
// buffer has been closed; the frame is discarded in that case.
func (b *Buffer) Push(frame []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if b.capacity > 0 && len(b.frames) >= b.capacity {
		b.frames = b.frames[1:]
		b.dropped++
	}
	b.frames = append(b.frames, frame)
	return true
}

// TryPop removes and returns the oldest frame. Returns ok=false when the
// queue is empty.
func (b *Buffer) TryPop() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return nil, false
	}
	f := b.frames[0]
	b.frames[0] = nil
	b.frames = b.frames[1:]
	return f, true
}

// Len returns the current queue depth.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Dropped returns how many frames were discarded by the drop-oldest policy.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close rejects all further pushes. Already-queued frames remain poppable.
// Close is idempotent.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
