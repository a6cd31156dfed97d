// Package config provides the configuration schema, loader, watcher, and
// audio backend registry for metrotune.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the metrotune server.
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

// SlogLevel maps l to the matching [slog.Level]. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for metrotune.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Metronome MetronomeConfig `yaml:"metronome"`
	Tuner     TunerConfig     `yaml:"tuner"`
	Shell     ShellConfig     `yaml:"shell"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP shell listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects the audio backend and its device parameters.
type AudioConfig struct {
	// Backend is the registered platform name ("portaudio" or "oto").
	Backend string `yaml:"backend"`

	// SampleRate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FramesPerBuffer is the device callback size.
	FramesPerBuffer int `yaml:"frames_per_buffer"`

	// InputDevice and OutputDevice select devices by name substring. Empty
	// selects the system default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

// MetronomeConfig tunes the beat scheduler.
type MetronomeConfig struct {
	// DefaultBPM is the tempo a fresh scheduler starts with.
	DefaultBPM int `yaml:"default_bpm"`

	// Lookahead is how far ahead of the audio clock beats are scheduled.
	Lookahead time.Duration `yaml:"lookahead"`

	// ScheduleInterval is the look-ahead timer cadence.
	ScheduleInterval time.Duration `yaml:"schedule_interval"`

	// StartLatency is the gap between start and the first beat. Zero or
	// absent selects the 50ms default; the first beat is never scheduled at
	// the instant of start.
	StartLatency time.Duration `yaml:"start_latency"`

	// Click shapes the beat sound. Hot-reloadable.
	Click ClickConfig `yaml:"click"`
}

// ClickConfig shapes the beat sound.
type ClickConfig struct {
	// Frequency of the click oscillator in Hz.
	Frequency float64 `yaml:"frequency"`

	// Volume is the peak gain in (0, 1].
	Volume float64 `yaml:"volume"`
}

// TunerConfig tunes the pitch detector.
type TunerConfig struct {
	// FrameSize is the analysis window in samples (power of two).
	FrameSize int `yaml:"frame_size"`

	// NoiseFloor is the RMS level below which frames count as silence.
	NoiseFloor float64 `yaml:"noise_floor"`

	// RefreshRate is the number of frames analysed per second.
	RefreshRate int `yaml:"refresh_rate"`
}

// ShellConfig configures the display/control surfaces.
type ShellConfig struct {
	// RefreshRate is the snapshot push rate of the stream endpoint and the
	// desktop window, in Hz.
	RefreshRate int `yaml:"refresh_rate"`
}

// Defaults returns a Config with every field set to its default.
func Defaults() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults replaces zero values in cfg with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	if a.Backend == "" {
		a.Backend = "portaudio"
	}
	if a.SampleRate == 0 {
		a.SampleRate = 44100
	}
	if a.FramesPerBuffer == 0 {
		a.FramesPerBuffer = 512
	}

	m := &cfg.Metronome
	if m.DefaultBPM == 0 {
		m.DefaultBPM = 100
	}
	if m.Lookahead == 0 {
		m.Lookahead = 100 * time.Millisecond
	}
	if m.ScheduleInterval == 0 {
		m.ScheduleInterval = 25 * time.Millisecond
	}
	if m.StartLatency == 0 {
		m.StartLatency = 50 * time.Millisecond
	}
	if m.Click.Frequency == 0 {
		m.Click.Frequency = 1000
	}
	if m.Click.Volume == 0 {
		m.Click.Volume = 1
	}

	t := &cfg.Tuner
	if t.FrameSize == 0 {
		t.FrameSize = 2048
	}
	if t.NoiseFloor == 0 {
		t.NoiseFloor = 0.01
	}
	if t.RefreshRate == 0 {
		t.RefreshRate = 60
	}

	if cfg.Shell.RefreshRate == 0 {
		cfg.Shell.RefreshRate = 60
	}
}
