// Package portaudio provides an [audio.Platform] implementation backed by the
// PortAudio C library via gordonklaus/portaudio. Output streams render an
// [mixer.Mixer] whose frame counter is the hardware clock; input streams
// downmix captured audio to mono and fan it out to attached sinks.
//
// The library is initialised by [New] and terminated by [Platform.Close].
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/metrotune/pkg/audio"
	"github.com/MrWong99/metrotune/pkg/audio/mixer"
	"github.com/gordonklaus/portaudio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform = (*Platform)(nil)
	_ audio.Prober   = (*Platform)(nil)
)

// Config selects devices and stream parameters.
type Config struct {
	// SampleRate in Hz for both directions.
	SampleRate int

	// FramesPerBuffer is the device callback size.
	FramesPerBuffer int

	// InputDevice and OutputDevice select a device whose name contains the
	// given substring. Empty selects the host default.
	InputDevice  string
	OutputDevice string

	// InputChannels is the number of channels captured before downmixing to
	// mono. Default 1.
	InputChannels int

	// OutputChannels is the number of interleaved playback channels. Default 2.
	OutputChannels int
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = 512
	}
	if c.InputChannels <= 0 {
		c.InputChannels = 1
	}
	if c.OutputChannels <= 0 {
		c.OutputChannels = 2
	}
}

// stream is the subset of *portaudio.Stream used by this package.
type stream interface {
	Start() error
	Stop() error
	Close() error
}

// Platform implements [audio.Platform] on PortAudio.
//
// Platform is safe for concurrent use.
type Platform struct {
	cfg Config

	closeOnce sync.Once
	closeErr  error
}

// New initialises PortAudio and returns a Platform. Call [Platform.Close]
// to terminate the library.
func New(cfg Config) (*Platform, error) {
	cfg.applyDefaults()
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Platform{cfg: cfg}, nil
}

// Close terminates PortAudio. Streams must be closed first.
func (p *Platform) Close() error {
	p.closeOnce.Do(func() {
		if err := portaudio.Terminate(); err != nil {
			p.closeErr = fmt.Errorf("portaudio: terminate: %w", err)
		}
	})
	return p.closeErr
}

// OpenOutput opens and starts a playback stream on the configured device.
func (p *Platform) OpenOutput(_ context.Context) (audio.Output, error) {
	dev, err := p.device(p.cfg.OutputDevice, false)
	if err != nil {
		return nil, fmt.Errorf("portaudio: %w: %w", audio.ErrAudioUnavailable, err)
	}

	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = min(p.cfg.OutputChannels, dev.MaxOutputChannels)
	params.SampleRate = float64(p.cfg.SampleRate)
	params.FramesPerBuffer = p.cfg.FramesPerBuffer

	out := newOutput(mixer.New(p.cfg.SampleRate), params.Output.Channels)
	s, err := portaudio.OpenStream(params, out.process)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output %q: %w: %w", dev.Name, audio.ErrAudioUnavailable, err)
	}
	out.stream = s
	if err := s.Start(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("portaudio: start output %q: %w: %w", dev.Name, audio.ErrAudioUnavailable, err)
	}
	return out, nil
}

// OpenInput opens and starts a capture stream on the configured device. On
// most systems a refused permission surfaces as a failure to open or start
// the stream; both wrap [audio.ErrMicrophoneAccessDenied].
func (p *Platform) OpenInput(_ context.Context) (audio.Input, error) {
	dev, err := p.device(p.cfg.InputDevice, true)
	if err != nil {
		return nil, fmt.Errorf("portaudio: %w: %w", audio.ErrMicrophoneAccessDenied, err)
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = min(p.cfg.InputChannels, dev.MaxInputChannels)
	params.SampleRate = float64(p.cfg.SampleRate)
	params.FramesPerBuffer = p.cfg.FramesPerBuffer

	in := newInput(p.cfg.SampleRate, params.Input.Channels)
	s, err := portaudio.OpenStream(params, in.process)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input %q: %w: %w", dev.Name, audio.ErrMicrophoneAccessDenied, err)
	}
	in.stream = s
	if err := s.Start(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("portaudio: start input %q: %w: %w", dev.Name, audio.ErrMicrophoneAccessDenied, err)
	}
	in.live.Store(true)
	return in, nil
}

// Probe verifies that the configured input and output devices exist.
func (p *Platform) Probe(_ context.Context) error {
	var errs []error
	if _, err := p.device(p.cfg.OutputDevice, false); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}
	if _, err := p.device(p.cfg.InputDevice, true); err != nil {
		errs = append(errs, fmt.Errorf("input: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("portaudio: probe: %w", err)
	}
	return nil
}

func (p *Platform) device(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	h, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, err
	}
	dev := findDevice(h.Devices, name, input)
	if dev == nil {
		return nil, fmt.Errorf("no device matching %q", name)
	}
	return dev, nil
}

// findDevice returns the first device whose name contains name and that has
// channels in the requested direction.
func findDevice(devices []*portaudio.DeviceInfo, name string, input bool) *portaudio.DeviceInfo {
	for _, d := range devices {
		if !strings.Contains(d.Name, name) {
			continue
		}
		if input && d.MaxInputChannels > 0 {
			return d
		}
		if !input && d.MaxOutputChannels > 0 {
			return d
		}
	}
	return nil
}
