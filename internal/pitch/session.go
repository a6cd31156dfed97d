package pitch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/metrotune/pkg/audio"
)

// InputProvider opens microphone streams. [audio.Platform] satisfies it.
type InputProvider interface {
	OpenInput(ctx context.Context) (audio.Input, error)
}

// CaptureSession owns the three resources needed to read live microphone
// audio: the input stream, the analyser, and the connection between them.
// A session either holds all three or none of them.
type CaptureSession struct {
	input    audio.Input
	analyser *audio.Analyser

	releaseOnce sync.Once
	releaseErr  error
}

// OpenCaptureSession requests microphone access and connects an analyser of
// frameSize samples to the new stream. On any failure everything acquired so
// far is released and the error wraps [audio.ErrMicrophoneAccessDenied].
func OpenCaptureSession(ctx context.Context, p InputProvider, frameSize int) (*CaptureSession, error) {
	in, err := p.OpenInput(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrMicrophoneAccessDenied) {
			return nil, fmt.Errorf("pitch: open capture session: %w", err)
		}
		return nil, fmt.Errorf("pitch: open capture session: %w: %w", audio.ErrMicrophoneAccessDenied, err)
	}

	a := audio.NewAnalyser(frameSize)
	if err := a.Connect(in); err != nil {
		errs := []error{fmt.Errorf("connect analyser: %w", err)}
		if err := in.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop track: %w", err))
		}
		if err := in.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		return nil, fmt.Errorf("pitch: open capture session: %w: %w", audio.ErrMicrophoneAccessDenied, errors.Join(errs...))
	}
	return &CaptureSession{input: in, analyser: a}, nil
}

// SampleRate returns the capture rate in Hz.
func (s *CaptureSession) SampleRate() int { return s.input.SampleRate() }

// Read copies the latest frame into dst.
func (s *CaptureSession) Read(dst []float32) int { return s.analyser.Frame(dst) }

// Input returns the underlying stream.
func (s *CaptureSession) Input() audio.Input { return s.input }

// Analyser returns the analysis node.
func (s *CaptureSession) Analyser() *audio.Analyser { return s.analyser }

// Release tears the session down in reverse acquisition order: analyser
// disconnect, track stop, device close. Every step runs even if an earlier
// one fails. Subsequent calls return the first call's result.
func (s *CaptureSession) Release() error {
	s.releaseOnce.Do(func() {
		s.analyser.Disconnect()
		var errs []error
		if err := s.input.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop track: %w", err))
		}
		if err := s.input.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		if err := errors.Join(errs...); err != nil {
			s.releaseErr = fmt.Errorf("pitch: release capture session: %w", err)
		}
	})
	return s.releaseErr
}
