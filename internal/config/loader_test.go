package config_test

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/metrotune/internal/config"
)

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := config.Defaults()
	if *cfg != *want {
		t.Errorf("got %+v, want %+v", *cfg, *want)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
metronome:
  default_bpm: 120
  swing: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "swing") {
		t.Errorf("error should mention the unknown field, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "log level",
			yaml: "server:\n  log_level: loud\n",
			want: "server.log_level",
		},
		{
			name: "unknown backend",
			yaml: "audio:\n  backend: alsa\n",
			want: "audio.backend",
		},
		{
			name: "negative sample rate",
			yaml: "audio:\n  sample_rate: -1\n",
			want: "audio.sample_rate",
		},
		{
			name: "tempo too slow",
			yaml: "metronome:\n  default_bpm: 39\n",
			want: "metronome.default_bpm",
		},
		{
			name: "tempo too fast",
			yaml: "metronome:\n  default_bpm: 241\n",
			want: "metronome.default_bpm",
		},
		{
			name: "lookahead not above interval",
			yaml: "metronome:\n  lookahead: 20ms\n  schedule_interval: 25ms\n",
			want: "metronome.lookahead",
		},
		{
			name: "negative start latency",
			yaml: "metronome:\n  start_latency: -10ms\n",
			want: "metronome.start_latency",
		},
		{
			name: "click above nyquist",
			yaml: "audio:\n  sample_rate: 8000\nmetronome:\n  click:\n    frequency: 4000\n",
			want: "metronome.click.frequency",
		},
		{
			name: "click too loud",
			yaml: "metronome:\n  click:\n    volume: 1.5\n",
			want: "metronome.click.volume",
		},
		{
			name: "frame size not power of two",
			yaml: "tuner:\n  frame_size: 3000\n",
			want: "tuner.frame_size",
		},
		{
			name: "frame size too small",
			yaml: "tuner:\n  frame_size: 128\n",
			want: "tuner.frame_size",
		},
		{
			name: "noise floor out of range",
			yaml: "tuner:\n  noise_floor: 1\n",
			want: "tuner.noise_floor",
		},
		{
			name: "tuner refresh too high",
			yaml: "tuner:\n  refresh_rate: 500\n",
			want: "tuner.refresh_rate",
		},
		{
			name: "shell refresh too high",
			yaml: "shell:\n  refresh_rate: 241\n",
			want: "shell.refresh_rate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
metronome:
  default_bpm: 10
tuner:
  frame_size: 1000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"metronome.default_bpm", "tuner.frame_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_Bounds(t *testing.T) {
	t.Parallel()
	yaml := `
metronome:
  default_bpm: 240
tuner:
  frame_size: 32768
  refresh_rate: 1
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Errorf("boundary values should validate, got: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, want an fs.ErrNotExist error", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "metronome:\n  default_bpm: 72\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Metronome.DefaultBPM != 72 {
		t.Errorf("default_bpm: got %d, want %d", cfg.Metronome.DefaultBPM, 72)
	}
}

func TestLoadFromReader_ZeroStartLatencySelectsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("metronome:\n  start_latency: 0s\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := cfg.Metronome.StartLatency, 50*time.Millisecond; got != want {
		t.Errorf("start_latency: got %v, want %v", got, want)
	}
}

func TestValidate_ZeroStartLatency(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Metronome.StartLatency = 0
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "metronome.start_latency") {
		t.Errorf("error should mention %q, got: %v", "metronome.start_latency", err)
	}
}
