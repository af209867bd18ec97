// Package config provides the configuration schema and loader for the
// Parlavox responder service.
package config

import (
	"time"

	"github.com/parlavox/parlavox/internal/jitter"
	"github.com/parlavox/parlavox/pkg/audio"
	"github.com/parlavox/parlavox/pkg/vad"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from
// a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Media    MediaConfig    `yaml:"media"`
	Playout  PlayoutConfig  `yaml:"playout"`
	VAD      VADConfig      `yaml:"vad"`
	TTS      TTSConfig      `yaml:"tts"`
	Greeting GreetingConfig `yaml:"greeting"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// MediaConfig fixes the outbound media profile for all sessions.
type MediaConfig struct {
	SampleRate      int    `yaml:"sample_rate"`
	SamplesPerFrame int    `yaml:"samples_per_frame"`
	PtimeMs         int    `yaml:"ptime_ms"`
	Codec           string `yaml:"codec"`
}

// Profile converts the section to an [audio.MediaProfile].
func (m MediaConfig) Profile() audio.MediaProfile {
	return audio.MediaProfile{
		SampleRate:      m.SampleRate,
		SamplesPerFrame: m.SamplesPerFrame,
		PtimeMs:         m.PtimeMs,
		Codec:           audio.Codec(m.Codec),
	}
}

// PlayoutConfig tunes the jitter buffer and scheduler. Zero fields take
// the scheduler's built-in defaults.
type PlayoutConfig struct {
	// Waterline is the buffered frame count required before playout
	// starts or resumes.
	Waterline int `yaml:"waterline"`

	// LowWatermark is the depth below which playout rebuffers. Must be
	// below Waterline.
	LowWatermark int `yaml:"low_watermark"`

	// MaxSilenceFrames is the consecutive-silence starvation budget.
	MaxSilenceFrames int `yaml:"max_silence_frames"`

	// ThrottleFactor inflates the pacing sleep while the buffer is low.
	ThrottleFactor float64 `yaml:"throttle_factor"`

	// Capacity bounds the buffer in frames (drop-oldest on overflow).
	Capacity int `yaml:"capacity"`
}

// SchedulerConfig converts the section to a [jitter.Config]; the media
// profile is supplied by the caller.
func (p PlayoutConfig) SchedulerConfig() jitter.Config {
	return jitter.Config{
		Waterline:        p.Waterline,
		LowWatermark:     p.LowWatermark,
		MaxSilenceFrames: p.MaxSilenceFrames,
		ThrottleFactor:   p.ThrottleFactor,
		Capacity:         p.Capacity,
	}
}

// AdaptiveConfig enables noise-floor tracking for the detector.
type AdaptiveConfig struct {
	EMAAlpha       float64 `yaml:"ema_alpha"`
	EnterMarginDB  float64 `yaml:"enter_margin_db"`
	ResumeMarginDB float64 `yaml:"resume_margin_db"`
}

// VADConfig tunes the voice activity detector and the playback gate.
type VADConfig struct {
	// FrameMs is the uplink frame duration; zero inherits media.ptime_ms.
	FrameMs int `yaml:"frame_ms"`

	// EnergyThreshold is the fixed threshold used when adaptive is absent.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// EnterSpeakingMs is the hysteresis duration before Speaking.
	EnterSpeakingMs int `yaml:"enter_speaking_ms"`

	// ResumeSilenceMs is the hysteresis duration before returning to Silence.
	ResumeSilenceMs int `yaml:"resume_silence_ms"`

	// DebounceMs rate-limits playback gate flips.
	DebounceMs int `yaml:"debounce_ms"`

	// Adaptive enables noise-floor tracking when present.
	Adaptive *AdaptiveConfig `yaml:"adaptive"`
}

// DetectorConfig converts the section to a [vad.Config] for the given
// uplink sample rate.
func (v VADConfig) DetectorConfig(sampleRate, defaultFrameMs int) vad.Config {
	frameMs := v.FrameMs
	if frameMs == 0 {
		frameMs = defaultFrameMs
	}
	cfg := vad.Config{
		SampleRate:      sampleRate,
		FrameMs:         frameMs,
		EnergyThreshold: v.EnergyThreshold,
		EnterSpeakingMs: v.EnterSpeakingMs,
		ResumeSilenceMs: v.ResumeSilenceMs,
	}
	if a := v.Adaptive; a != nil {
		cfg.Adaptive = &vad.Adaptive{
			EMAAlpha:       a.EMAAlpha,
			EnterMarginDB:  a.EnterMarginDB,
			ResumeMarginDB: a.ResumeMarginDB,
		}
	}
	return cfg
}

// Debounce returns the gate debounce as a duration.
func (v VADConfig) Debounce() time.Duration {
	return time.Duration(v.DebounceMs) * time.Millisecond
}

// TTSConfig selects and configures the synthesis source.
type TTSConfig struct {
	// Name selects the provider implementation: "wsstream" or "mock".
	Name string `yaml:"name"`

	// Endpoint is the ws:// or wss:// synthesis endpoint (wsstream only).
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates against the synthesis service if required.
	APIKey string `yaml:"api_key"`

	// SpeakerID selects the default voice.
	SpeakerID string `yaml:"speaker_id"`

	// SampleRate requests a specific synthesis output rate in Hz; zero
	// lets the service choose.
	SampleRate int `yaml:"sample_rate"`
}

// GreetingConfig is the script spoken when a call is answered.
type GreetingConfig struct {
	Text  string  `yaml:"text"`
	Speed float64 `yaml:"speed"`
}
