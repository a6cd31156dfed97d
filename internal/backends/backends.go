// Package backends registers the audio platforms that ship with metrotune.
package backends

import (
	"github.com/MrWong99/metrotune/internal/config"
	"github.com/MrWong99/metrotune/pkg/audio"
	otoplatform "github.com/MrWong99/metrotune/pkg/audio/oto"
	"github.com/MrWong99/metrotune/pkg/audio/portaudio"
)

// Names lists the built-in backends in registration order.
var Names = []string{"portaudio", "oto"}

// Register wires every built-in audio backend into reg.
func Register(reg *config.Registry) {
	reg.RegisterAudio("portaudio", func(c config.AudioConfig) (audio.Platform, error) {
		p, err := portaudio.New(portaudioConfig(c))
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// oto has no capture; the microphone still goes through PortAudio.
	reg.RegisterAudio("oto", func(c config.AudioConfig) (audio.Platform, error) {
		capture, err := portaudio.New(portaudioConfig(c))
		if err != nil {
			return nil, err
		}
		p, err := otoplatform.New(otoplatform.Config{
			SampleRate:   c.SampleRate,
			BufferFrames: c.FramesPerBuffer,
		}, capture)
		if err != nil {
			_ = capture.Close()
			return nil, err
		}
		return p, nil
	})
}

func portaudioConfig(c config.AudioConfig) portaudio.Config {
	return portaudio.Config{
		SampleRate:      c.SampleRate,
		FramesPerBuffer: c.FramesPerBuffer,
		InputDevice:     c.InputDevice,
		OutputDevice:    c.OutputDevice,
	}
}
