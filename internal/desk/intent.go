package desk

import (
	"context"
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/MrWong99/metrotune/internal/shell"
	"github.com/MrWong99/metrotune/pkg/audio"
)

// Intent is a user action on the desk.
type Intent int

const (
	ToggleMetronome Intent = iota + 1
	TempoUp
	TempoDown
	TempoUpFast
	TempoDownFast
	ToggleTuner
)

func (i Intent) String() string {
	switch i {
	case ToggleMetronome:
		return "toggle-metronome"
	case TempoUp:
		return "tempo-up"
	case TempoDown:
		return "tempo-down"
	case TempoUpFast:
		return "tempo-up-fast"
	case TempoDownFast:
		return "tempo-down-fast"
	case ToggleTuner:
		return "toggle-tuner"
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// fastStep is the tempo change of the page keys.
const fastStep = 10

// Keymap binds keys to intents.
var Keymap = map[ebiten.Key]Intent{
	ebiten.KeySpace:     ToggleMetronome,
	ebiten.KeyArrowUp:   TempoUp,
	ebiten.KeyArrowDown: TempoDown,
	ebiten.KeyEqual:     TempoUp,
	ebiten.KeyMinus:     TempoDown,
	ebiten.KeyPageUp:    TempoUpFast,
	ebiten.KeyPageDown:  TempoDownFast,
	ebiten.KeyT:         ToggleTuner,
}

// IntentsFor maps pressed keys to intents, dropping unbound keys.
func IntentsFor(keys []ebiten.Key) []Intent {
	var out []Intent
	for _, k := range keys {
		if in, ok := Keymap[k]; ok {
			out = append(out, in)
		}
	}
	return out
}

// Controller applies intents to the engines.
type Controller struct {
	Metronome shell.Metronome
	Tuner     shell.Tuner
}

// Apply performs in. Only the toggles can fail; a failed toggle leaves the
// engine off.
func (c *Controller) Apply(ctx context.Context, in Intent) error {
	switch in {
	case ToggleMetronome:
		if c.Metronome.Sync().Running {
			c.Metronome.Stop()
			return nil
		}
		return c.Metronome.Start(ctx)
	case TempoUp:
		c.Metronome.StepTempo(1)
	case TempoDown:
		c.Metronome.StepTempo(-1)
	case TempoUpFast:
		c.Metronome.StepTempo(fastStep)
	case TempoDownFast:
		c.Metronome.StepTempo(-fastStep)
	case ToggleTuner:
		if c.Tuner.Active() {
			return c.Tuner.Deactivate()
		}
		return c.Tuner.Activate(ctx)
	}
	return nil
}

// Status messages shown for failed intents.
const (
	StatusAudioUnavailable = "Áudio indisponível"
	StatusMicrophoneDenied = "Acesso ao microfone negado"
	StatusFailed           = "Erro de áudio"
)

// StatusFor turns an intent error into the status line text.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, audio.ErrAudioUnavailable):
		return StatusAudioUnavailable
	case errors.Is(err, audio.ErrMicrophoneAccessDenied):
		return StatusMicrophoneDenied
	default:
		return StatusFailed
	}
}
