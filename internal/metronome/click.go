package metronome

import "math"

// Click is the percussive tone played on every beat: a sine oscillator
// shaped by a linear attack, an exponential decay towards a floor and a hard
// stop. It implements [audio.Voice].
type Click struct {
	// Frequency of the oscillator in Hz.
	Frequency float64

	// Volume is the peak gain in [0, 1].
	Volume float64

	// Attack is the linear ramp from silence to Volume, in seconds.
	Attack float64

	// Decay is the time at which the exponential ramp reaches Floor.
	Decay float64

	// Length is the time at which the oscillator stops.
	Length float64

	// Floor is the gain the decay ramps down to, relative to Volume.
	Floor float64
}

// DefaultClick returns the standard 1 kHz click: 1 ms attack, decay to
// 0.001 by 50 ms, stop at 60 ms.
func DefaultClick() Click {
	return Click{
		Frequency: 1000,
		Volume:    1,
		Attack:    0.001,
		Decay:     0.05,
		Length:    0.06,
		Floor:     0.001,
	}
}

// Duration implements [audio.Voice].
func (c Click) Duration() float64 { return c.Length }

// Sample implements [audio.Voice].
func (c Click) Sample(t float64) float64 {
	return c.Volume * c.Envelope(t) * math.Sin(2*math.Pi*c.Frequency*t)
}

// Envelope returns the normalised gain at t seconds after the click starts.
func (c Click) Envelope(t float64) float64 {
	switch {
	case t < 0 || t >= c.Length:
		return 0
	case t < c.Attack:
		return t / c.Attack
	case t < c.Decay:
		return math.Pow(c.Floor, (t-c.Attack)/(c.Decay-c.Attack))
	default:
		return c.Floor
	}
}
