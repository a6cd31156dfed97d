package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackends lists the audio backend names accepted by [Validate].
var ValidBackends = []string{"portaudio", "oto"}

// Tempo and frame-size bounds enforced by [Validate].
const (
	minBPM       = 40
	maxBPM       = 240
	minFrameSize = 256
	maxFrameSize = 32768
	maxRefresh   = 240
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if !slices.Contains(ValidBackends, cfg.Audio.Backend) {
		errs = append(errs, fmt.Errorf("audio.backend %q is unknown; valid values: %v", cfg.Audio.Backend, ValidBackends))
	}
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FramesPerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must not be negative, got %d", cfg.Audio.FramesPerBuffer))
	}

	// Metronome
	m := cfg.Metronome
	if m.DefaultBPM < minBPM || m.DefaultBPM > maxBPM {
		errs = append(errs, fmt.Errorf("metronome.default_bpm must be in [%d, %d], got %d", minBPM, maxBPM, m.DefaultBPM))
	}
	if m.ScheduleInterval <= 0 {
		errs = append(errs, fmt.Errorf("metronome.schedule_interval must be positive, got %s", m.ScheduleInterval))
	}
	if m.Lookahead <= m.ScheduleInterval {
		errs = append(errs, fmt.Errorf("metronome.lookahead (%s) must exceed schedule_interval (%s)", m.Lookahead, m.ScheduleInterval))
	}
	if m.StartLatency <= 0 {
		errs = append(errs, fmt.Errorf("metronome.start_latency must be positive, got %s", m.StartLatency))
	}
	if m.Click.Frequency <= 0 || m.Click.Frequency >= float64(cfg.Audio.SampleRate)/2 {
		errs = append(errs, fmt.Errorf("metronome.click.frequency must be in (0, %d), got %g", cfg.Audio.SampleRate/2, m.Click.Frequency))
	}
	if m.Click.Volume <= 0 || m.Click.Volume > 1 {
		errs = append(errs, fmt.Errorf("metronome.click.volume must be in (0, 1], got %g", m.Click.Volume))
	}

	// Tuner
	t := cfg.Tuner
	if t.FrameSize < minFrameSize || t.FrameSize > maxFrameSize || t.FrameSize&(t.FrameSize-1) != 0 {
		errs = append(errs, fmt.Errorf("tuner.frame_size must be a power of two in [%d, %d], got %d", minFrameSize, maxFrameSize, t.FrameSize))
	}
	if t.NoiseFloor <= 0 || t.NoiseFloor >= 1 {
		errs = append(errs, fmt.Errorf("tuner.noise_floor must be in (0, 1), got %g", t.NoiseFloor))
	}
	if t.RefreshRate < 1 || t.RefreshRate > maxRefresh {
		errs = append(errs, fmt.Errorf("tuner.refresh_rate must be in [1, %d], got %d", maxRefresh, t.RefreshRate))
	}

	// Shell
	if cfg.Shell.RefreshRate < 1 || cfg.Shell.RefreshRate > maxRefresh {
		errs = append(errs, fmt.Errorf("shell.refresh_rate must be in [1, %d], got %d", maxRefresh, cfg.Shell.RefreshRate))
	}

	return errors.Join(errs...)
}
