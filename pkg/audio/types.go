package audio

import "time"

// Frame is a block of captured mono audio delivered to a [Sink].
type Frame struct {
	// Samples are normalised float samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}
