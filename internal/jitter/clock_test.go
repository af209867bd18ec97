package jitter

import (
	"context"
	"testing"
	"time"
)

func TestSystemClock_SleepElapses(t *testing.T) {
	t.Parallel()

	c := SystemClock()
	start := c.Now()
	if err := c.Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep = %v, want nil", err)
	}
	if elapsed := c.Now().Sub(start); elapsed < time.Millisecond {
		t.Errorf("elapsed %v, want at least 1ms", elapsed)
	}
}

func TestSystemClock_SleepCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := SystemClock()
	start := time.Now()
	if err := c.Sleep(ctx, time.Hour); err == nil {
		t.Fatal("Sleep with cancelled context = nil, want error")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled Sleep did not return promptly")
	}
}

func TestSystemClock_ZeroDuration(t *testing.T) {
	t.Parallel()

	if err := SystemClock().Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v, want nil", err)
	}
}
