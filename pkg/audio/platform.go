// Package audio defines the interfaces and types for audio device access
// within metrotune.
//
// The two primary abstractions are:
//
//   - [Output]: an opened playback context. It owns the hardware audio clock
//     ([Clock.CurrentTime]) and plays [Voice] values anchored to timestamps on
//     that clock, independent of when the caller asked for them.
//   - [Input]: an opened microphone stream. Consumers attach a [Sink] and
//     receive captured [Frame] values until they detach.
//
// Both are obtained from a [Platform]. Implementations live in adapter
// packages (audio/portaudio, audio/oto); audio/mock provides test doubles.
//
// This package lives under pkg/ because external code (third-party device
// adapters) is expected to implement [Platform], [Output] and [Input].
package audio

import (
	"context"
	"errors"
)

// ErrAudioUnavailable is returned (wrapped) by [Platform.OpenOutput] when the
// hardware audio output cannot be initialised.
var ErrAudioUnavailable = errors.New("audio: output unavailable")

// ErrMicrophoneAccessDenied is returned (wrapped) by [Platform.OpenInput] when
// the user or the operating system refuses microphone capture.
var ErrMicrophoneAccessDenied = errors.New("audio: microphone access denied")

// Clock is a monotonic, high-resolution time source driven by the audio
// device. CurrentTime reports seconds since the owning context was opened.
type Clock interface {
	CurrentTime() float64
}

// Voice is a short, self-contained sound event. A Voice is rendered by the
// output device starting at the timestamp passed to [Output.Play]; it is
// discarded automatically once Duration has elapsed.
//
// Implementations must be safe to render from the device goroutine and must
// not block.
type Voice interface {
	// Duration is the length of the voice in seconds.
	Duration() float64

	// Sample returns the amplitude in [-1, 1] at t seconds after the voice starts.
	Sample(t float64) float64
}

// Output is an opened audio playback context.
//
// Implementations must be safe for concurrent use.
type Output interface {
	Clock

	// SampleRate is the device rate in Hz.
	SampleRate() int

	// Play schedules v to start exactly at the clock timestamp at. Timestamps
	// already in the past start on the next rendered frame.
	Play(v Voice, at float64)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Sink receives captured audio. It is invoked on the device goroutine; the
// frame's Samples slice is only valid for the duration of the call.
type Sink func(Frame)

// Tap is a live source-to-sink connection created by [Input.Attach].
type Tap interface {
	// Detach stops delivery to the sink. It is safe to call more than once.
	Detach()
}

// Input is an opened microphone stream. The stream is live as soon as it is
// returned from [Platform.OpenInput].
//
// Release order is Detach (all taps) → Stop → Close.
//
// Implementations must be safe for concurrent use.
type Input interface {
	// SampleRate is the capture rate in Hz.
	SampleRate() int

	// Attach connects sink to the stream and returns the connection handle.
	Attach(sink Sink) Tap

	// Live reports whether the capture track is still running.
	Live() bool

	// Stop stops the capture track. Subsequent calls are no-ops.
	Stop() error

	// Close releases (suspends) the underlying device context. Subsequent
	// calls are no-ops.
	Close() error
}

// Platform is the entry point for an audio backend.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenOutput opens a playback context. Errors wrap [ErrAudioUnavailable].
	OpenOutput(ctx context.Context) (Output, error)

	// OpenInput requests microphone access and opens a capture stream. The
	// supplied ctx governs the acquisition only. Errors wrap
	// [ErrMicrophoneAccessDenied].
	OpenInput(ctx context.Context) (Input, error)
}

// Prober is implemented by platforms that can check device availability
// without opening streams. Used by readiness checks.
type Prober interface {
	Probe(ctx context.Context) error
}
