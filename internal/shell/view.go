package shell

import (
	"fmt"
	"math"

	"github.com/MrWong99/metrotune/internal/metronome"
	"github.com/MrWong99/metrotune/internal/pitch"
)

// Tuner display constants.
const (
	WaitingLabel = "Aguardando som..."
	NoNote       = "--"

	// InTuneCents is the exclusive detuning bound for an in-tune reading.
	InTuneCents = 5

	// NeedleScale converts cents to needle display units; NeedleLimit clamps
	// the result on both sides.
	NeedleScale = 3
	NeedleLimit = 140
)

// Direction of a detuned reading.
const (
	DirectionNone  = ""
	DirectionFlat  = "flat"
	DirectionSharp = "sharp"
)

// Feedback texts shown under the needle.
const (
	FeedbackInTune = "Perfeitamente Afinado"
	FeedbackFlat   = "Muito Grave (Flat)"
	FeedbackSharp  = "Muito Agudo (Sharp)"
)

// Snapshot is everything a display needs for one frame.
type Snapshot struct {
	Metronome MetronomeView `json:"metronome"`
	Tuner     TunerView     `json:"tuner"`
}

// MetronomeView is the render model of the beat indicator and tempo controls.
type MetronomeView struct {
	BPM     int  `json:"bpm"`
	Running bool `json:"running"`

	// Beat is the beat currently heard, or -1 when none is.
	Beat int `json:"beat"`

	// Accent is set while the first beat of the measure is heard.
	Accent bool `json:"accent"`

	// Slider is the tempo position in [0, 1] along the MinBPM..MaxBPM range.
	Slider float64 `json:"slider"`

	BeatsPerMeasure int `json:"beats_per_measure"`
}

// NewMetronomeView derives the render model from a scheduler state.
func NewMetronomeView(st metronome.State) MetronomeView {
	beat := st.VisibleBeat
	if !st.Running {
		beat = -1
	}
	return MetronomeView{
		BPM:             st.BPM,
		Running:         st.Running,
		Beat:            beat,
		Accent:          beat == 0,
		Slider:          float64(st.BPM-metronome.MinBPM) / float64(metronome.MaxBPM-metronome.MinBPM),
		BeatsPerMeasure: metronome.BeatsPerMeasure,
	}
}

// TunerView is the render model of the tuner.
type TunerView struct {
	Active bool `json:"active"`
	Signal bool `json:"signal"`

	// Frequency is rounded to whole hertz.
	Frequency float64 `json:"frequency"`

	// Label is the frequency readout, or [WaitingLabel] without a signal.
	Label string `json:"label"`

	// Note is the pitch-class name, or [NoNote] without a signal.
	Note  string `json:"note"`
	Cents int    `json:"cents"`

	InTune    bool    `json:"in_tune"`
	Direction string  `json:"direction,omitempty"`
	Feedback  string  `json:"feedback,omitempty"`
	Needle    float64 `json:"needle"`
}

// NewTunerView derives the render model from the detector state.
func NewTunerView(active bool, s pitch.Sample) TunerView {
	v := TunerView{Active: active, Label: WaitingLabel, Note: NoNote}
	if !s.Signal {
		return v
	}

	v.Signal = true
	v.Frequency = math.Round(s.Frequency)
	v.Label = fmt.Sprintf("%.0f Hz", v.Frequency)
	v.Note = s.NoteName
	v.Cents = s.Cents
	v.Needle = max(-NeedleLimit, min(NeedleLimit, float64(s.Cents*NeedleScale)))

	switch {
	case s.Cents < 0:
		v.Direction = DirectionFlat
	case s.Cents > 0:
		v.Direction = DirectionSharp
	}

	switch {
	case abs(s.Cents) < InTuneCents:
		v.InTune = true
		v.Feedback = FeedbackInTune
	case s.Cents < 0:
		v.Feedback = FeedbackFlat
	default:
		v.Feedback = FeedbackSharp
	}
	return v
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
