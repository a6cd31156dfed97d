package backends

import (
	"slices"
	"testing"

	"github.com/MrWong99/metrotune/internal/config"
)

func TestRegister(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	Register(reg)

	got := reg.Backends()
	want := slices.Sorted(slices.Values(Names))
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, name := range Names {
		if !slices.Contains(config.ValidBackends, name) {
			t.Errorf("backend %q is registered but rejected by config validation", name)
		}
	}
}

func TestPortaudioConfig(t *testing.T) {
	t.Parallel()
	c := config.AudioConfig{
		Backend:         "portaudio",
		SampleRate:      48000,
		FramesPerBuffer: 256,
		InputDevice:     "USB",
		OutputDevice:    "Speakers",
	}
	got := portaudioConfig(c)
	if got.SampleRate != 48000 || got.FramesPerBuffer != 256 {
		t.Errorf("stream params: got %+v", got)
	}
	if got.InputDevice != "USB" || got.OutputDevice != "Speakers" {
		t.Errorf("devices: got %+v", got)
	}
}
