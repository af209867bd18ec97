package jitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parlavox/parlavox/internal/observe"
	"github.com/parlavox/parlavox/pkg/audio"
	"github.com/parlavox/parlavox/pkg/audio/frame"
)

// State identifies the playout scheduler's position in its lifecycle.
type State int32

const (
	// StateFilling is the initial state: the scheduler emits cadenced
	// silence while waiting for the buffer to reach the waterline.
	StateFilling State = iota

	// StatePlaying is steady-state frame emission at the ptime cadence.
	StatePlaying

	// StateRecovery is re-entered buffering after an underrun or a
	// starvation budget overrun. Behaviour matches Filling.
	StateRecovery

	// StateStopped is terminal.
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StatePlaying:
		return "playing"
	case StateRecovery:
		return "recovery"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Default watermark tuning. A 20 ms ptime makes the waterline 120 ms of
// buffered speech and the starvation budget half a second.
const (
	DefaultWaterline        = 6
	DefaultLowWatermark     = 2
	DefaultMaxSilenceFrames = 25
	DefaultThrottleFactor   = 1.2
	defaultCapacityFactor   = 50
	defaultOutDepth         = 8
)

// Config holds the scheduler's tuning for one call session.
type Config struct {
	// Profile fixes the frame geometry and codec.
	Profile audio.MediaProfile

	// Waterline is the queue depth required before playout starts or
	// resumes. Must be greater than LowWatermark.
	Waterline int

	// LowWatermark is the depth below which the scheduler abandons playout
	// and rebuffers. Negative disables the underrun alarm, leaving the
	// starvation budget as the only rebuffering trigger.
	LowWatermark int

	// MaxSilenceFrames is how many consecutive empty-queue silence
	// substitutions are tolerated (while ungated) before the scheduler
	// treats the starvation itself as a producer stall and rebuffers.
	MaxSilenceFrames int

	// ThrottleFactor inflates the pacing sleep while the queue depth is
	// below twice the low watermark, letting the producer catch up. The
	// exact value is a heuristic, not a derived constant.
	ThrottleFactor float64

	// Capacity bounds the buffer in frames; the oldest frame is dropped on
	// overflow. Zero selects 50 × Waterline.
	Capacity int

	// Clock drives pacing. Nil selects the system clock.
	Clock Clock

	// Metrics receives scheduler instrumentation. Nil selects
	// [observe.Default].
	Metrics *observe.Metrics
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Waterline == 0 {
		c.Waterline = DefaultWaterline
	}
	if c.LowWatermark == 0 {
		c.LowWatermark = DefaultLowWatermark
	} else if c.LowWatermark < 0 {
		c.LowWatermark = 0
	}
	if c.MaxSilenceFrames == 0 {
		c.MaxSilenceFrames = DefaultMaxSilenceFrames
	}
	if c.ThrottleFactor == 0 {
		c.ThrottleFactor = DefaultThrottleFactor
	}
	if c.Capacity == 0 {
		c.Capacity = defaultCapacityFactor * c.Waterline
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.Metrics == nil {
		c.Metrics = observe.Default()
	}
	return c
}

// Scheduler is the single consumer of a session's jitter [Buffer]. Its Run
// loop ticks every ptime and emits exactly one frame per tick: a real frame
// when the gate allows and the queue has one, pre-encoded silence
// otherwise. The telephony leg therefore always receives cadence-correct
// frames — silence is preferable to a stalled transport.
//
// One Scheduler serves one session; Run must be called at most once.
type Scheduler struct {
	cfg     Config
	buf     *Buffer
	clock   Clock
	met     *observe.Metrics
	gate    *atomic.Bool
	silence []byte
	ptime   time.Duration

	out        chan []byte
	state      atomic.Int32
	silenceRun int
	dropWarned bool
}

// NewScheduler creates a Scheduler and its buffer. gate is the shared
// playback gate: true means real audio may be sent, false suppresses it
// (barge-in). The gate is read once at the top of every tick, so a gate
// change is audible within one ptime plus the orchestrator's debounce.
func NewScheduler(cfg Config, gate *atomic.Bool) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.LowWatermark >= cfg.Waterline {
		return nil, fmt.Errorf("jitter: low watermark %d must be below waterline %d",
			cfg.LowWatermark, cfg.Waterline)
	}
	if gate == nil {
		return nil, fmt.Errorf("jitter: gate must not be nil")
	}

	silence, err := frame.SilenceFrame(cfg.Profile)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:     cfg,
		buf:     NewBuffer(cfg.Capacity),
		clock:   cfg.Clock,
		met:     cfg.Metrics,
		gate:    gate,
		silence: silence,
		ptime:   cfg.Profile.Ptime(),
		out:     make(chan []byte, defaultOutDepth),
	}, nil
}

// Buffer returns the scheduler's jitter buffer for the producer side.
func (s *Scheduler) Buffer() *Buffer { return s.buf }

// Frames returns the channel of emitted frames, one per tick. The channel
// is closed when Run exits.
func (s *Scheduler) Frames() <-chan []byte { return s.out }

// State returns the scheduler's current state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Run executes the playout loop until ctx is cancelled. Cancellation is
// expected control flow: Run always returns nil after completing its
// current tick, and no frames are emitted afterwards.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.out)
	defer s.setState(StateStopped)

	for {
		switch s.State() {
		case StateFilling, StateRecovery:
			if s.buf.Len() >= s.cfg.Waterline {
				s.silenceRun = 0
				s.setState(StatePlaying)
				continue
			}
			// Keep the leg cadence-correct while buffering.
			s.emit(ctx, s.silence, "silence")
			if err := s.clock.Sleep(ctx, s.ptime); err != nil {
				return nil
			}
		case StatePlaying:
			if err := s.tick(ctx); err != nil {
				return nil
			}
		}
	}
}

// tick performs one Playing-state iteration: gate check, frame selection,
// emission, and throttled pacing sleep. A non-nil return means ctx was
// cancelled.
func (s *Scheduler) tick(ctx context.Context) error {
	start := s.clock.Now()

	depth := s.buf.Len()
	s.met.BufferDepth.Record(ctx, int64(depth))

	if depth < s.cfg.LowWatermark {
		slog.Warn("playout buffer underrun, rebuffering",
			"depth", depth,
			"low_watermark", s.cfg.LowWatermark,
		)
		s.met.Underruns.Add(ctx, 1)
		s.setState(StateRecovery)
		return nil
	}

	forceRecovery := false
	outFrame := s.silence
	kind := "silence"

	if s.gate.Load() {
		if f, ok := s.buf.TryPop(); ok {
			outFrame = f
			kind = "audio"
			s.silenceRun = 0
		} else {
			// Gate open but nothing to play: substitute silence without
			// dequeuing. Repeated starvation here is itself a signal of a
			// stalled producer.
			s.silenceRun++
			if s.silenceRun > s.cfg.MaxSilenceFrames {
				slog.Warn("producer stall suspected, rebuffering",
					"consecutive_silence", s.silenceRun,
				)
				s.met.StarvationRecoveries.Add(ctx, 1)
				forceRecovery = true
			}
		}
	}
	// Gated off: silence goes out without dequeuing and does not count
	// toward the starvation budget — a suppressed producer is not stalled.

	s.emit(ctx, outFrame, kind)

	elapsed := s.clock.Now().Sub(start)
	s.met.TickDuration.Record(ctx, elapsed.Seconds())
	if elapsed > s.ptime {
		s.met.TickOverruns.Add(ctx, 1)
	}

	if forceRecovery {
		s.setState(StateRecovery)
	}

	sleep := s.ptime - elapsed
	if sleep <= 0 {
		// Behind schedule: proceed straight to the next tick.
		return ctx.Err()
	}
	if s.buf.Len() < 2*s.cfg.LowWatermark {
		sleep = time.Duration(float64(sleep) * s.cfg.ThrottleFactor)
	}
	return s.clock.Sleep(ctx, sleep)
}

// emit hands one frame to the output channel without blocking. A lagging
// consumer costs frames, never cadence.
func (s *Scheduler) emit(ctx context.Context, f []byte, kind string) {
	select {
	case s.out <- f:
		s.met.FramesEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	default:
		if !s.dropWarned {
			slog.Warn("frame consumer lagging, dropping frames")
			s.dropWarned = true
		}
		s.met.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "consumer_lag")))
	}
}

// setState records a state transition.
func (s *Scheduler) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		slog.Debug("playout state transition", "from", prev.String(), "to", next.String())
	}
}
