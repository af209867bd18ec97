package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// validTTSNames lists the recognised TTS provider names.
var validTTSNames = []string{"wsstream", "mock"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values with workable telephony defaults so a
// minimal config file runs.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Media.SampleRate == 0 {
		cfg.Media.SampleRate = 8000
	}
	if cfg.Media.SamplesPerFrame == 0 {
		cfg.Media.SamplesPerFrame = 160
	}
	if cfg.Media.PtimeMs == 0 {
		cfg.Media.PtimeMs = 20
	}
	if cfg.Media.Codec == "" {
		cfg.Media.Codec = "pcmu"
	}
	if cfg.VAD.EnergyThreshold == 0 && cfg.VAD.Adaptive == nil {
		cfg.VAD.EnergyThreshold = 0.02
	}
	if cfg.VAD.EnterSpeakingMs == 0 {
		cfg.VAD.EnterSpeakingMs = 100
	}
	if cfg.VAD.ResumeSilenceMs == 0 {
		cfg.VAD.ResumeSilenceMs = 400
	}
	if cfg.VAD.DebounceMs == 0 {
		cfg.VAD.DebounceMs = 200
	}
	if cfg.TTS.Name == "" {
		cfg.TTS.Name = "mock"
	}
	if cfg.Greeting.Speed == 0 {
		cfg.Greeting.Speed = 1.0
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if err := cfg.Media.Profile().Validate(); err != nil {
		errs = append(errs, err)
	}

	if cfg.Playout.Waterline != 0 && cfg.Playout.LowWatermark >= cfg.Playout.Waterline {
		errs = append(errs, fmt.Errorf("playout.low_watermark %d must be below playout.waterline %d",
			cfg.Playout.LowWatermark, cfg.Playout.Waterline))
	}
	if cfg.Playout.ThrottleFactor < 0 {
		errs = append(errs, fmt.Errorf("playout.throttle_factor %g must not be negative", cfg.Playout.ThrottleFactor))
	}

	if err := cfg.VAD.DetectorConfig(cfg.Media.SampleRate, cfg.Media.PtimeMs).Validate(); err != nil {
		errs = append(errs, err)
	}

	validName := false
	for _, n := range validTTSNames {
		if cfg.TTS.Name == n {
			validName = true
			break
		}
	}
	if !validName {
		errs = append(errs, fmt.Errorf("tts.name %q is invalid; valid values: wsstream, mock", cfg.TTS.Name))
	}
	if cfg.TTS.Name == "wsstream" && cfg.TTS.Endpoint == "" {
		errs = append(errs, fmt.Errorf("tts.endpoint is required for tts.name %q", cfg.TTS.Name))
	}

	return errors.Join(errs...)
}
