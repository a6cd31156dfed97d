// Package pitch implements the tuner engine: time-domain autocorrelation
// pitch estimation, equal-temperament note math, and the capture session
// that feeds microphone audio into the estimator at display rate.
package pitch

import "math"

// Reference pitch for A4 (MIDI note 69) in Hz.
const (
	ReferenceFrequency = 440.0
	ReferenceNote      = 69
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteFromPitch returns the nearest equal-temperament MIDI note number for
// freq. Ties round upward.
func NoteFromPitch(freq float64) int {
	n := 12 * math.Log2(freq/ReferenceFrequency)
	return int(math.Floor(n+0.5)) + ReferenceNote
}

// FrequencyFromNote returns the equal-temperament frequency of a MIDI note.
func FrequencyFromNote(note int) float64 {
	return ReferenceFrequency * math.Pow(2, float64(note-ReferenceNote)/12)
}

// Cents returns the signed distance of freq from note in cents, floored to
// an integer.
func Cents(freq float64, note int) int {
	return int(math.Floor(1200 * math.Log2(freq/FrequencyFromNote(note))))
}

// NoteName returns the pitch-class name of a MIDI note ("C" … "B").
func NoteName(note int) string {
	return noteNames[((note%12)+12)%12]
}
