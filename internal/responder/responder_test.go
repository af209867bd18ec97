package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parlavox/parlavox/internal/jitter"
	"github.com/parlavox/parlavox/pkg/audio"
	ttsmock "github.com/parlavox/parlavox/pkg/tts/mock"
	"github.com/parlavox/parlavox/pkg/vad"
	vadmock "github.com/parlavox/parlavox/pkg/vad/mock"
)

func testConfig(det vad.Detector, ttsP *ttsmock.Provider) Config {
	return Config{
		Profile:  audio.DefaultProfile(),
		Detector: det,
		TTS:      ttsP,
		// A waterline no test reaches keeps the scheduler in its filling
		// state, so buffer depths can be asserted deterministically.
		Playout: jitter.Config{Waterline: 100, LowWatermark: 2},
	}
}

// uplinkFrame builds one 20 ms PCM16 uplink frame; content is irrelevant
// because the scripted detector ignores it.
func uplinkFrame() []byte {
	return make([]byte, 320)
}

func constChunk(n int, rate int) audio.Chunk {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25
	}
	return audio.Chunk{Samples: samples, SampleRate: rate}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Profile: audio.DefaultProfile(), TTS: ttsmock.New()}); err == nil {
		t.Error("nil detector: err = nil, want error")
	}
	if _, err := New(Config{Profile: audio.DefaultProfile(), Detector: vadmock.New()}); err == nil {
		t.Error("nil tts: err = nil, want error")
	}

	bad := audio.DefaultProfile()
	bad.SamplesPerFrame = 7
	if _, err := New(Config{Profile: bad, Detector: vadmock.New(), TTS: ttsmock.New()}); err == nil {
		t.Error("invalid profile: err = nil, want error")
	}
}

func TestResponder_StartStopIdempotent(t *testing.T) {
	t.Parallel()

	r, err := New(testConfig(vadmock.New(), ttsmock.New()))
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start = %v, want nil", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("second Start = %v, want nil", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop = %v, want nil", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop = %v, want nil", err)
	}

	// Frames is closed once the scheduler has exited, so draining ends.
	for range r.Frames() {
	}
}

func TestResponder_StopBeforeStart(t *testing.T) {
	t.Parallel()

	r, err := New(testConfig(vadmock.New(), ttsmock.New()))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("Stop before Start = %v, want nil", err)
	}
}

func TestResponder_PlayScriptFillsBuffer(t *testing.T) {
	t.Parallel()

	// One chunk at the session rate: 400 samples = 800 PCM bytes = two full
	// frames plus a 160 byte tail that Flush pads into a third.
	ttsP := ttsmock.New(constChunk(400, 8000))
	r, err := New(testConfig(vadmock.New(), ttsP))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if err := r.PlayScript(context.Background(), "hello caller", "nova", 1.0); err != nil {
		t.Fatalf("PlayScript = %v, want nil", err)
	}

	// The filling-state scheduler has no reason to consume them yet.
	if got := r.sched.Buffer().Len(); got != 3 {
		t.Errorf("buffer depth = %d, want 3", got)
	}
	if got := r.enc.PendingBytes(); got != 0 {
		t.Errorf("encoder pending after flush = %d bytes, want 0", got)
	}

	reqs := ttsP.Requests()
	if len(reqs) != 1 {
		t.Fatalf("provider saw %d requests, want 1", len(reqs))
	}
	if reqs[0].Text != "hello caller" || reqs[0].SpeakerID != "nova" {
		t.Errorf("request = %+v, want text and speaker preserved", reqs[0])
	}
}

func TestResponder_PlayScriptResamplesForeignRate(t *testing.T) {
	t.Parallel()

	// 3200 samples at 16 kHz is 200 ms of speech: exactly ten 20 ms frames
	// at the 8 kHz session rate, nothing left to flush.
	ttsP := ttsmock.New(constChunk(3200, 16000))
	r, err := New(testConfig(vadmock.New(), ttsP))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if err := r.PlayScript(context.Background(), "resampled", "", 0); err != nil {
		t.Fatalf("PlayScript = %v, want nil", err)
	}
	if got := r.sched.Buffer().Len(); got != 10 {
		t.Errorf("buffer depth = %d, want 10", got)
	}
}

func TestResponder_PlayScriptCancelledDiscardsTail(t *testing.T) {
	t.Parallel()

	// The chunk is smaller than one frame, so any partial progress lives
	// only in the encoder accumulator. Cancellation must discard it.
	ttsP := ttsmock.New(constChunk(100, 8000))
	r, err := New(testConfig(vadmock.New(), ttsP))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.PlayScript(ctx, "never heard", "", 1.0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("PlayScript = %v, want context.Canceled", err)
	}
	if got := r.enc.PendingBytes(); got != 0 {
		t.Errorf("encoder pending after cancel = %d bytes, want 0", got)
	}
	if got := r.sched.Buffer().Len(); got != 0 {
		t.Errorf("buffer depth after cancel = %d, want 0 (tail must not flush)", got)
	}
}

func TestResponder_PlayScriptBeforeStart(t *testing.T) {
	t.Parallel()

	r, err := New(testConfig(vadmock.New(), ttsmock.New()))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.PlayScript(context.Background(), "too early", "", 1.0); err == nil {
		t.Error("PlayScript before Start = nil error, want error")
	}
}

func TestResponder_BargeInSuppressesAndDebounces(t *testing.T) {
	t.Parallel()

	det := vadmock.New(
		vad.Result{State: vad.Speaking, Energy: 0.2},
		vad.Result{State: vad.Speaking, Energy: 0.2},
		vad.Result{State: vad.Silence, Energy: 0.001},
	)
	cfg := testConfig(det, ttsmock.New())
	cfg.VADDebounce = time.Hour
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if r.Speaking() {
		t.Fatal("Speaking = true before any uplink frame")
	}

	// First Speaking frame closes the gate immediately.
	r.OnUplinkFrame(uplinkFrame())
	if !r.Speaking() {
		t.Fatal("Speaking = false after barge-in frame")
	}

	// Stable Speaking keeps it closed.
	r.OnUplinkFrame(uplinkFrame())
	if !r.Speaking() {
		t.Fatal("Speaking = false on sustained speech")
	}

	// The detector flips back to Silence, but the debounce window has not
	// elapsed: the gate must not flap.
	r.OnUplinkFrame(uplinkFrame())
	if !r.Speaking() {
		t.Error("gate reopened inside the debounce window")
	}
}

func TestResponder_GateReopensAfterDebounce(t *testing.T) {
	t.Parallel()

	det := vadmock.New(
		vad.Result{State: vad.Speaking, Energy: 0.2},
		vad.Result{State: vad.Silence, Energy: 0.001},
	)
	cfg := testConfig(det, ttsmock.New())
	cfg.VADDebounce = time.Millisecond
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	r.OnUplinkFrame(uplinkFrame())
	if !r.Speaking() {
		t.Fatal("Speaking = false after barge-in frame")
	}

	time.Sleep(5 * time.Millisecond)
	r.OnUplinkFrame(uplinkFrame())
	if r.Speaking() {
		t.Error("gate still closed after caller silence and debounce expiry")
	}
}

func TestResponder_UplinkBeforeStartIsNoOp(t *testing.T) {
	t.Parallel()

	det := vadmock.New(vad.Result{State: vad.Speaking})
	r, err := New(testConfig(det, ttsmock.New()))
	if err != nil {
		t.Fatal(err)
	}

	r.OnUplinkFrame(uplinkFrame())
	if got := len(det.Frames()); got != 0 {
		t.Errorf("detector saw %d frames before Start, want 0", got)
	}
}
