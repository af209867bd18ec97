// Package responder implements the auto-responder orchestrator: the
// component that owns one call session's audio pipeline and exposes the
// only two operations the rest of the system needs — feed uplink audio,
// play a script.
//
// The orchestrator wires four parts it exclusively owns: a voice activity
// detector gating outbound audio, a streaming resampler, a frame encoder,
// and the jitter buffer with its playout scheduler. Three execution
// contexts touch it per session: the transport's uplink callback
// ([Responder.OnUplinkFrame], never blocks), one producer goroutine per
// [Responder.PlayScript] call, and the scheduler's tick loop. The only
// state shared across them is the jitter buffer and a single atomic gate.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parlavox/parlavox/internal/jitter"
	"github.com/parlavox/parlavox/internal/observe"
	"github.com/parlavox/parlavox/pkg/audio"
	"github.com/parlavox/parlavox/pkg/audio/frame"
	"github.com/parlavox/parlavox/pkg/audio/resample"
	"github.com/parlavox/parlavox/pkg/tts"
	"github.com/parlavox/parlavox/pkg/vad"
)

// DefaultVADDebounce is the minimum interval between playback gate flips.
const DefaultVADDebounce = 200 * time.Millisecond

// Config assembles a Responder's collaborators and tuning.
type Config struct {
	// Profile fixes the outbound frame geometry for the session.
	Profile audio.MediaProfile

	// Detector classifies uplink frames. Required.
	Detector vad.Detector

	// TTS is the synthesis source driven by PlayScript. Required.
	TTS tts.Provider

	// Playout tunes the jitter buffer and scheduler. The Profile field is
	// filled in from Profile above.
	Playout jitter.Config

	// VADDebounce rate-limits gate flips so a detector oscillating at its
	// threshold cannot chop the audio. Zero selects DefaultVADDebounce.
	VADDebounce time.Duration

	// Metrics receives pipeline instrumentation. Nil selects
	// [observe.Default].
	Metrics *observe.Metrics
}

// Responder orchestrates one call session's outbound audio pipeline.
type Responder struct {
	cfg   Config
	det   vad.Detector
	ttsP  tts.Provider
	sched *jitter.Scheduler
	met   *observe.Metrics

	// gate is true while real audio may be sent (no active barge-in).
	// Written by the uplink context, read by the scheduler every tick.
	gate atomic.Bool

	// running is true between a successful Start and Stop.
	running atomic.Bool

	// Uplink-context state. OnUplinkFrame is invoked from a single
	// transport callback context, so plain fields suffice.
	lastVAD  vad.State
	lastFlip time.Time

	// pipeMu serialises PlayScript's use of the shared resampler and
	// encoder. Concurrent scripts are legal but processed one at a time.
	pipeMu sync.Mutex
	res    *resample.Resampler
	enc    *frame.Encoder

	// scripts tracks in-flight PlayScript calls so Stop can wait for
	// producers before flushing.
	scripts sync.WaitGroup

	mu         sync.Mutex
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	sessionCtx context.Context
	schedDone  chan struct{}
}

// New creates a Responder from cfg. The scheduler does not start until
// [Responder.Start].
func New(cfg Config) (*Responder, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.Detector == nil {
		return nil, fmt.Errorf("responder: detector must not be nil")
	}
	if cfg.TTS == nil {
		return nil, fmt.Errorf("responder: tts provider must not be nil")
	}
	if cfg.VADDebounce == 0 {
		cfg.VADDebounce = DefaultVADDebounce
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.Default()
	}

	r := &Responder{
		cfg:  cfg,
		det:  cfg.Detector,
		ttsP: cfg.TTS,
		met:  cfg.Metrics,
	}

	playout := cfg.Playout
	playout.Profile = cfg.Profile
	playout.Metrics = cfg.Metrics
	sched, err := jitter.NewScheduler(playout, &r.gate)
	if err != nil {
		return nil, err
	}
	r.sched = sched

	res, err := resample.New(cfg.Profile.SampleRate, cfg.Profile.SampleRate)
	if err != nil {
		return nil, err
	}
	r.res = res

	enc, err := frame.NewEncoder(cfg.Profile)
	if err != nil {
		return nil, err
	}
	r.enc = enc

	return r, nil
}

// Frames returns the channel of outbound frames, one per tick. The
// transport layer sends each frame as it arrives. Closed after Stop.
func (r *Responder) Frames() <-chan []byte { return r.sched.Frames() }

// Start spawns the playout scheduler and opens the playback gate.
// A second Start is a no-op with a warning.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		slog.Warn("responder already started")
		return nil
	}
	r.started = true

	r.gate.Store(true)
	r.lastVAD = vad.Silence
	r.lastFlip = time.Time{}

	ctx, cancel := context.WithCancel(context.Background())
	r.sessionCtx = ctx
	r.cancel = cancel
	r.schedDone = make(chan struct{})
	r.running.Store(true)

	go func() {
		defer close(r.schedDone)
		_ = r.sched.Run(ctx)
	}()

	slog.Info("responder started",
		"sample_rate", r.cfg.Profile.SampleRate,
		"ptime_ms", r.cfg.Profile.PtimeMs,
		"codec", r.cfg.Profile.Codec.String(),
	)
	return nil
}

// Stop cancels any in-flight script, flushes the encoder's residual frame,
// closes the buffer for further pushes, and waits for the scheduler loop to
// exit. Stop is idempotent; a second call (or a Stop before Start) is a
// no-op with a warning.
func (r *Responder) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		slog.Warn("responder stop before start")
		return nil
	}
	if r.stopped {
		r.mu.Unlock()
		slog.Warn("responder already stopped")
		return nil
	}
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()

	r.running.Store(false)
	cancel()
	r.scripts.Wait()

	// A completed utterance already flushed itself and a cancelled one
	// discarded its tail, but flush defensively so no partial frame is
	// ever stranded.
	r.pipeMu.Lock()
	if tail := r.enc.Flush(); tail != nil {
		r.sched.Buffer().Push(tail)
	}
	r.pipeMu.Unlock()

	r.sched.Buffer().Close()
	<-r.schedDone

	if dropped := r.sched.Buffer().Dropped(); dropped > 0 {
		slog.Warn("frames dropped by buffer capacity during session", "dropped", dropped)
	}
	slog.Info("responder stopped")
	return nil
}

// OnUplinkFrame feeds one caller PCM16 frame to the voice activity
// detector and updates the playback gate. It is synchronous, never blocks,
// and is intended to be called from the transport's receive context.
// Calls before Start or after Stop are no-ops.
func (r *Responder) OnUplinkFrame(pcm []byte) {
	if !r.running.Load() {
		return
	}

	res := r.det.Update(audio.DecodePCM16(pcm))

	if res.State != r.lastVAD {
		r.lastVAD = res.State
		r.met.VADTransitions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("to", res.State.String())))
	}

	// The gate follows the detector but flips at most once per debounce
	// window, whichever direction.
	open := res.State == vad.Silence
	if r.gate.Load() == open {
		return
	}
	now := time.Now()
	if !r.lastFlip.IsZero() && now.Sub(r.lastFlip) < r.cfg.VADDebounce {
		return
	}
	r.gate.Store(open)
	r.lastFlip = now
	if open {
		slog.Info("caller silent, resuming playback")
	} else {
		slog.Info("barge-in detected, suppressing playback", "energy", res.Energy)
		r.met.BargeIns.Add(context.Background(), 1)
	}
}

// Speaking reports whether the playback gate is currently suppressed by
// caller speech.
func (r *Responder) Speaking() bool { return !r.gate.Load() }

// PlayScript synthesises text through the TTS source and streams the
// result into the jitter buffer: resample to the session rate, quantise,
// encode, push. It returns once the stream is exhausted and flushed, or
// earlier when ctx or the session is cancelled — a cancelled utterance's
// partial tail is discarded, not flushed.
//
// Stream failures end the utterance early but are never fatal to the
// session; the scheduler keeps emitting silence.
func (r *Responder) PlayScript(ctx context.Context, text, speakerID string, speed float64) error {
	if !r.running.Load() {
		slog.Warn("play script before start")
		return fmt.Errorf("responder: not running")
	}

	r.mu.Lock()
	sessionCtx := r.sessionCtx
	r.mu.Unlock()

	// The script stops when either the caller's ctx or the session ends.
	ctx, cancelScript := context.WithCancel(ctx)
	defer cancelScript()
	stop := context.AfterFunc(sessionCtx, cancelScript)
	defer stop()

	r.scripts.Add(1)
	defer r.scripts.Done()

	stream, err := r.ttsP.SynthesizeStream(ctx, tts.Request{
		Text:      text,
		SpeakerID: speakerID,
		Speed:     speed,
	})
	if err != nil {
		slog.Error("tts stream failed to start", "err", err)
		r.recordScript(ctx, "failed")
		return fmt.Errorf("responder: start synthesis: %w", err)
	}

	r.pipeMu.Lock()
	defer r.pipeMu.Unlock()

	for chunk := range stream {
		r.met.TTSChunks.Add(ctx, 1)
		if err := r.processChunk(chunk); err != nil {
			// Transient producer error: drop the chunk, keep the stream.
			slog.Warn("dropping malformed tts chunk", "err", err)
		}
	}

	if ctx.Err() != nil {
		// Cancelled mid-stream: abandon the partial tail.
		r.enc.Reset()
		r.recordScript(context.Background(), "cancelled")
		slog.Info("script playback cancelled", "speaker_id", speakerID)
		return ctx.Err()
	}

	if tail := r.enc.Flush(); tail != nil {
		r.sched.Buffer().Push(tail)
	}
	r.recordScript(ctx, "completed")
	return nil
}

// processChunk runs one TTS chunk through resample → quantise → encode and
// pushes any complete frames. Must be called with pipeMu held.
func (r *Responder) processChunk(chunk audio.Chunk) error {
	if len(chunk.Samples) == 0 {
		return nil
	}
	if chunk.SampleRate != r.res.SourceRate() {
		// New utterance segment with a different native rate: restart the
		// resampler's carried state explicitly.
		if err := r.res.Reset(chunk.SampleRate); err != nil {
			return err
		}
	}

	pcm := frame.Quantize(r.res.Resample(chunk.Samples))
	for _, f := range r.enc.Encode(pcm) {
		if !r.sched.Buffer().Push(f) {
			return fmt.Errorf("responder: buffer closed")
		}
	}
	return nil
}

// recordScript increments the scripts-played counter with an outcome label.
func (r *Responder) recordScript(ctx context.Context, status string) {
	r.met.ScriptsPlayed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
