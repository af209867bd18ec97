package jitter

import (
	"bytes"
	"testing"
)

func TestBuffer_FIFOOrder(t *testing.T) {
	t.Parallel()

	b := NewBuffer(10)
	for i := byte(0); i < 5; i++ {
		if !b.Push([]byte{i}) {
			t.Fatalf("Push(%d) = false, want true", i)
		}
	}
	if got := b.Len(); got != 5 {
		t.Fatalf("Len = %d, want 5", got)
	}

	for i := byte(0); i < 5; i++ {
		f, ok := b.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: ok = false", i)
		}
		if !bytes.Equal(f, []byte{i}) {
			t.Errorf("frame %d = %v, want [%d]", i, f, i)
		}
	}
	if _, ok := b.TryPop(); ok {
		t.Error("TryPop on empty buffer: ok = true, want false")
	}
}

func TestBuffer_DropOldestOnOverflow(t *testing.T) {
	t.Parallel()

	b := NewBuffer(3)
	for i := byte(0); i < 5; i++ {
		b.Push([]byte{i})
	}

	if got := b.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
	if got := b.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}

	// Frames 0 and 1 were dropped; the newest three remain in order.
	for i := byte(2); i < 5; i++ {
		f, ok := b.TryPop()
		if !ok || !bytes.Equal(f, []byte{i}) {
			t.Fatalf("TryPop = %v, %v, want [%d], true", f, ok, i)
		}
	}
}

func TestBuffer_Unbounded(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	for i := 0; i < 1000; i++ {
		b.Push([]byte{byte(i)})
	}
	if got := b.Len(); got != 1000 {
		t.Errorf("Len = %d, want 1000", got)
	}
	if got := b.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
}

func TestBuffer_Close(t *testing.T) {
	t.Parallel()

	b := NewBuffer(10)
	b.Push([]byte{1})
	b.Close()
	b.Close() // idempotent

	if !b.Closed() {
		t.Error("Closed = false, want true")
	}
	if b.Push([]byte{2}) {
		t.Error("Push after Close = true, want false")
	}

	// Queued frames remain poppable after Close.
	f, ok := b.TryPop()
	if !ok || !bytes.Equal(f, []byte{1}) {
		t.Errorf("TryPop after Close = %v, %v, want [1], true", f, ok)
	}
}
