package pitch

// Sample is one published tuner reading. The zero value is the no-signal
// reading. Note, NoteName and Cents are always derived from Frequency by
// [FromFrequency] and never set independently.
type Sample struct {
	// Signal is false when the last frame was silence or ambiguous.
	Signal bool

	// Frequency is the estimated fundamental in Hz.
	Frequency float64

	// Note is the nearest MIDI note number.
	Note int

	// NoteName is the pitch-class label of Note.
	NoteName string

	// Cents is the floored detuning of Frequency from Note.
	Cents int
}

// NoSignal returns the no-signal reading.
func NoSignal() Sample { return Sample{} }

// FromFrequency derives a complete reading from an estimated frequency.
// Non-positive frequencies yield [NoSignal].
func FromFrequency(freq float64) Sample {
	if freq <= 0 {
		return NoSignal()
	}
	note := NoteFromPitch(freq)
	return Sample{
		Signal:    true,
		Frequency: freq,
		Note:      note,
		NoteName:  NoteName(note),
		Cents:     Cents(freq, note),
	}
}
