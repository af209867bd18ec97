// Package observe provides application-wide observability primitives for
// Parlavox: OpenTelemetry metrics and the provider setup that bridges them
// to Prometheus.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([Default]) is provided for convenience; tests should
// use [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parlavox metrics.
const meterName = "github.com/parlavox/parlavox"

// Metrics holds all OpenTelemetry metric instruments for the media
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// --- Playout scheduler ---

	// FramesEmitted counts outbound frames. Use with attribute:
	//   attribute.String("kind", "audio"|"silence")
	FramesEmitted metric.Int64Counter

	// Underruns counts transitions into low-buffer recovery caused by the
	// queue depth falling below the low watermark.
	Underruns metric.Int64Counter

	// StarvationRecoveries counts forced recoveries triggered by the
	// consecutive-silence budget being exceeded.
	StarvationRecoveries metric.Int64Counter

	// FramesDropped counts frames discarded before reaching the wire. Use
	// with attribute: attribute.String("reason", "capacity"|"consumer_lag")
	FramesDropped metric.Int64Counter

	// TickDuration tracks the processing time of one scheduler tick,
	// excluding the pacing sleep.
	TickDuration metric.Float64Histogram

	// TickOverruns counts ticks whose processing time exceeded the ptime.
	TickOverruns metric.Int64Counter

	// BufferDepth records the queue depth observed at each tick.
	BufferDepth metric.Int64Gauge

	// --- Voice activity / barge-in ---

	// VADTransitions counts detector state changes. Use with attribute:
	//   attribute.String("to", "speaking"|"silence")
	VADTransitions metric.Int64Counter

	// BargeIns counts gate suppressions caused by caller speech during
	// playback.
	BargeIns metric.Int64Counter

	// --- Synthesis ---

	// ScriptsPlayed counts PlayScript invocations. Use with attribute:
	//   attribute.String("status", "completed"|"cancelled"|"failed")
	ScriptsPlayed metric.Int64Counter

	// TTSChunks counts chunks received from the TTS source.
	TTSChunks metric.Int64Counter

	// --- Sessions ---

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-tick processing times well below one ptime.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesEmitted, err = m.Int64Counter("parlavox.playout.frames_emitted",
		metric.WithDescription("Outbound frames emitted by the playout scheduler."),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("parlavox.playout.underruns",
		metric.WithDescription("Low-watermark underruns triggering buffer recovery."),
	); err != nil {
		return nil, err
	}
	if met.StarvationRecoveries, err = m.Int64Counter("parlavox.playout.starvation_recoveries",
		metric.WithDescription("Forced recoveries after the consecutive-silence budget was exceeded."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("parlavox.playout.frames_dropped",
		metric.WithDescription("Frames discarded before transmission."),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("parlavox.playout.tick_duration",
		metric.WithDescription("Processing time of one scheduler tick, excluding the pacing sleep."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TickOverruns, err = m.Int64Counter("parlavox.playout.tick_overruns",
		metric.WithDescription("Ticks whose processing time exceeded the frame interval."),
	); err != nil {
		return nil, err
	}
	if met.BufferDepth, err = m.Int64Gauge("parlavox.playout.buffer_depth",
		metric.WithDescription("Jitter buffer depth observed at each tick."),
	); err != nil {
		return nil, err
	}
	if met.VADTransitions, err = m.Int64Counter("parlavox.vad.transitions",
		metric.WithDescription("Voice activity detector state changes."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("parlavox.vad.barge_ins",
		metric.WithDescription("Playback gate suppressions caused by caller speech."),
	); err != nil {
		return nil, err
	}
	if met.ScriptsPlayed, err = m.Int64Counter("parlavox.tts.scripts_played",
		metric.WithDescription("Script playback attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.TTSChunks, err = m.Int64Counter("parlavox.tts.chunks",
		metric.WithDescription("Audio chunks received from the TTS source."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parlavox.sessions.active",
		metric.WithDescription("Live call sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the package-level Metrics instance backed by the global
// OTel meter provider. The first call initialises it; instrument creation
// errors are impossible with the global provider's no-op fallback, so they
// are ignored here.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}
