// Package desk is the desktop window of metrotune, drawn with ebiten. It
// renders the same snapshot as the HTTP shell and turns key presses into
// metronome and tuner intents.
package desk

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/MrWong99/metrotune/internal/metronome"
	"github.com/MrWong99/metrotune/internal/shell"
)

// Logical screen size.
const (
	ScreenWidth  = 640
	ScreenHeight = 360
)

var (
	colorBackground = color.RGBA{0x0f, 0x17, 0x2a, 0xff}
	colorTrack      = color.RGBA{0x1e, 0x29, 0x3b, 0xff}
	colorIdle       = color.RGBA{0x33, 0x41, 0x55, 0xff}
	colorBeat       = color.RGBA{0x63, 0x66, 0xf1, 0xff}
	colorAccent     = color.RGBA{0xf5, 0x9e, 0x0b, 0xff}
	colorInTune     = color.RGBA{0x4a, 0xde, 0x80, 0xff}
	colorDetuned    = color.RGBA{0xef, 0x44, 0x44, 0xff}
)

// KeySource reports the keys pressed since the previous frame.
type KeySource func() []ebiten.Key

func justPressed() []ebiten.Key { return inpututil.AppendJustPressedKeys(nil) }

// Option configures a [Game].
type Option func(*Game)

// WithKeySource replaces the keyboard. Tests use it to script input.
func WithKeySource(k KeySource) Option {
	return func(g *Game) { g.keys = k }
}

// Game implements [ebiten.Game].
type Game struct {
	ctx  context.Context
	ctrl *Controller
	keys KeySource

	snap shell.Snapshot

	wg     sync.WaitGroup
	mu     sync.Mutex
	busy   bool
	status string
}

var _ ebiten.Game = (*Game)(nil)

// New creates a Game driving m and t. The window closes once ctx is done.
func New(ctx context.Context, m shell.Metronome, t shell.Tuner, opts ...Option) *Game {
	g := &Game{
		ctx:  ctx,
		ctrl: &Controller{Metronome: m, Tuner: t},
		keys: justPressed,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Update applies pending intents and refreshes the snapshot.
func (g *Game) Update() error {
	if err := g.ctx.Err(); err != nil {
		return err
	}
	for _, in := range IntentsFor(g.keys()) {
		g.dispatch(in)
	}
	g.snap = shell.Capture(g.ctrl.Metronome, g.ctrl.Tuner)
	return nil
}

// dispatch runs in off the game loop; opening devices may block on a
// permission prompt. Intents arriving while one is in flight are dropped.
func (g *Game) dispatch(in Intent) {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return
	}
	g.busy = true
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		err := g.ctrl.Apply(g.ctx, in)
		if err != nil {
			slog.Warn("desk: intent failed", "intent", in, "err", err)
		}
		g.mu.Lock()
		g.busy = false
		g.status = StatusFor(err)
		g.mu.Unlock()
	}()
}

// Wait blocks until every dispatched intent has completed.
func (g *Game) Wait() { g.wg.Wait() }

// Status returns the status line text of the last completed intent.
func (g *Game) Status() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Snapshot returns the state rendered by the last Update.
func (g *Game) Snapshot() shell.Snapshot { return g.snap }

// Layout fixes the logical screen size; ebiten scales it to the window.
func (g *Game) Layout(_, _ int) (int, int) {
	return ScreenWidth, ScreenHeight
}

// Draw renders the metronome on the left half and the tuner on the right.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(colorBackground)
	g.drawMetronome(screen, g.snap.Metronome)
	g.drawTuner(screen, g.snap.Tuner)
	if s := g.Status(); s != "" {
		ebitenutil.DebugPrintAt(screen, s, 16, ScreenHeight-24)
	}
}

func (g *Game) drawMetronome(screen *ebiten.Image, v shell.MetronomeView) {
	ebitenutil.DebugPrintAt(screen, "METRONOMO", 16, 16)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%d BPM", v.BPM), 16, 40)

	for i := range v.BeatsPerMeasure {
		x, y := BeatCenter(i)
		clr := colorIdle
		if i == v.Beat {
			clr = colorBeat
			if v.Accent {
				clr = colorAccent
			}
		}
		vector.DrawFilledCircle(screen, x, y, beatRadius, clr, true)
	}

	vector.DrawFilledRect(screen, sliderX, sliderY, sliderWidth, sliderHeight, colorTrack, false)
	vector.DrawFilledRect(screen, sliderX, sliderY, SliderFill(v.Slider), sliderHeight, colorBeat, false)
	ebitenutil.DebugPrintAt(screen, fmt.Sprint(metronome.MinBPM), sliderX, sliderY+12)
	ebitenutil.DebugPrintAt(screen, fmt.Sprint(metronome.MaxBPM), sliderX+sliderWidth-18, sliderY+12)

	hint := "[espaco] iniciar"
	if v.Running {
		hint = "[espaco] parar"
	}
	ebitenutil.DebugPrintAt(screen, hint+"  [setas] tempo", 16, 280)
}

func (g *Game) drawTuner(screen *ebiten.Image, v shell.TunerView) {
	const left = ScreenWidth / 2
	ebitenutil.DebugPrintAt(screen, "AFINADOR", left+16, 16)
	ebitenutil.DebugPrintAt(screen, v.Label, left+16, 40)
	ebitenutil.DebugPrintAt(screen, v.Note, left+150, 100)

	vector.DrawFilledRect(screen, gaugeX, gaugeY, gaugeWidth, gaugeHeight, colorTrack, false)
	vector.DrawFilledRect(screen, gaugeCenter-1, gaugeY, 2, gaugeHeight, colorInTune, false)
	if v.Signal {
		clr := colorDetuned
		if v.InTune {
			clr = colorInTune
		}
		vector.DrawFilledCircle(screen, NeedleX(v.Needle), gaugeY+gaugeHeight/2, needleRadius, clr, true)
		ebitenutil.DebugPrintAt(screen, v.Feedback, left+16, gaugeY+24)
	}

	hint := "[T] ativar afinador"
	if v.Active {
		hint = "[T] desligar microfone"
	}
	ebitenutil.DebugPrintAt(screen, hint, left+16, 280)
}

// ─── Geometry ─────────────────────────────────────────────────────────────────

const (
	beatRadius   = 18
	beatSpacing  = 56
	beatY        = 120
	sliderX      = 16
	sliderY      = 200
	sliderWidth  = ScreenWidth/2 - 48
	sliderHeight = 8
	needleRadius = 8
	gaugeWidth   = 2*shell.NeedleLimit + 2*needleRadius
	gaugeX       = ScreenWidth/2 + (ScreenWidth/2-gaugeWidth)/2
	gaugeY       = 180
	gaugeHeight  = 16
	gaugeCenter  = gaugeX + gaugeWidth/2
)

// BeatCenter is the centre of beat indicator i.
func BeatCenter(i int) (x, y float32) {
	return float32(16 + beatRadius + i*beatSpacing), beatY
}

// SliderFill is the filled width of the tempo slider at fraction f.
func SliderFill(f float64) float32 {
	return float32(max(0, min(1, f)) * sliderWidth)
}

// NeedleX is the horizontal needle position for a needle offset in display
// units. One display unit is one pixel.
func NeedleX(needle float64) float32 {
	return float32(gaugeCenter + needle)
}
