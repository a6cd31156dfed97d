// Package oto provides an [audio.Platform] whose playback runs on
// hajimehoshi/oto. The [mixer.Mixer] is handed to oto as an io.Reader of
// float32 samples, so the mixer's rendered-frame count is the audio clock.
//
// oto has no capture support; microphone requests are delegated to another
// platform supplied at construction.
package oto

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/metrotune/pkg/audio"
	"github.com/MrWong99/metrotune/pkg/audio/mixer"
	"github.com/hajimehoshi/oto/v2"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// InputOpener opens microphone streams for the platform.
type InputOpener interface {
	OpenInput(ctx context.Context) (audio.Input, error)
}

// Config configures the oto context.
type Config struct {
	// SampleRate in Hz. Default 44100.
	SampleRate int

	// BufferFrames is the player buffer size in frames. Zero keeps oto's
	// default.
	BufferFrames int
}

// player is the subset of oto.Player used here.
type player interface {
	Play()
	Close() error
}

// Platform implements [audio.Platform] on oto. Only one oto context may
// exist per process, so create a single Platform.
type Platform struct {
	cfg   Config
	ctx   *oto.Context
	ready chan struct{}
	input InputOpener
}

// New creates the oto context. input may be nil, in which case OpenInput
// always fails with [audio.ErrMicrophoneAccessDenied].
func New(cfg Config, input InputOpener) (*Platform, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	octx, ready, err := oto.NewContext(cfg.SampleRate, 1, oto.FormatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("oto: new context: %w: %w", audio.ErrAudioUnavailable, err)
	}
	return &Platform{cfg: cfg, ctx: octx, ready: ready, input: input}, nil
}

// OpenOutput waits for the oto context to become ready and starts a player
// reading from a fresh mixer.
func (p *Platform) OpenOutput(ctx context.Context) (audio.Output, error) {
	select {
	case <-p.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("oto: wait for device: %w: %w", audio.ErrAudioUnavailable, ctx.Err())
	}
	m := mixer.New(p.cfg.SampleRate)
	pl := p.ctx.NewPlayer(m)
	if p.cfg.BufferFrames > 0 {
		if bs, ok := pl.(interface{ SetBufferSize(int) }); ok {
			bs.SetBufferSize(p.cfg.BufferFrames * 4)
		}
	}
	pl.Play()
	return newOutput(m, pl), nil
}

// OpenInput delegates to the configured capture platform.
func (p *Platform) OpenInput(ctx context.Context) (audio.Input, error) {
	if p.input == nil {
		return nil, fmt.Errorf("oto: %w: no capture backend configured", audio.ErrMicrophoneAccessDenied)
	}
	return p.input.OpenInput(ctx)
}

// Close closes the capture platform when it holds resources of its own. The
// oto context lives until the process exits.
func (p *Platform) Close() error {
	if c, ok := p.input.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ audio.Output = (*output)(nil)

type output struct {
	mixer  *mixer.Mixer
	player player

	closeOnce sync.Once
	closeErr  error
}

func newOutput(m *mixer.Mixer, pl player) *output {
	return &output{mixer: m, player: pl}
}

func (o *output) CurrentTime() float64 { return o.mixer.CurrentTime() }

func (o *output) SampleRate() int { return o.mixer.SampleRate() }

func (o *output) Play(v audio.Voice, at float64) { o.mixer.Schedule(v, at) }

func (o *output) Close() error {
	o.closeOnce.Do(func() {
		if err := o.player.Close(); err != nil {
			o.closeErr = fmt.Errorf("oto: close player: %w", err)
		}
	})
	return o.closeErr
}
