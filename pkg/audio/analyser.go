package audio

import (
	"errors"
	"sync"

	"github.com/andrepxx/go-dsp-guitar/circular"
)

// Analyser keeps the most recent window of captured samples so that a reader
// can pull a fixed-size time-domain frame at its own pace. It is the
// capture-side equivalent of an analysis node: connect it to an [Input], then
// read frames with [Analyser.Frame].
//
// All methods are safe for concurrent use.
type Analyser struct {
	size int

	mu      sync.Mutex
	buf     circular.Buffer
	convert []float64
	window  []float64
	tap     Tap
}

// NewAnalyser creates an analyser holding the last size samples. The window
// starts out silent (all zeros).
func NewAnalyser(size int) *Analyser {
	if size < 1 {
		size = 1
	}
	return &Analyser{
		size:   size,
		buf:    circular.CreateBuffer(size),
		window: make([]float64, size),
	}
}

// Size returns the window length in samples.
func (a *Analyser) Size() int { return a.size }

// Connect attaches the analyser to in. Connecting twice without an
// intervening [Analyser.Disconnect] is an error, as is connecting to a track
// that has already ended.
func (a *Analyser) Connect(in Input) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tap != nil {
		return errors.New("audio: analyser already connected")
	}
	if !in.Live() {
		return errors.New("audio: input track has ended")
	}
	a.tap = in.Attach(a.Write)
	return nil
}

// Disconnect detaches the analyser from its input. Safe to call when not
// connected.
func (a *Analyser) Disconnect() {
	a.mu.Lock()
	tap := a.tap
	a.tap = nil
	a.mu.Unlock()
	if tap != nil {
		tap.Detach()
	}
}

// Connected reports whether the analyser is attached to an input.
func (a *Analyser) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tap != nil
}

// Write appends the frame's samples to the window. It satisfies [Sink].
func (a *Analyser) Write(f Frame) {
	if len(f.Samples) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if cap(a.convert) < len(f.Samples) {
		a.convert = make([]float64, len(f.Samples))
	}
	conv := a.convert[:len(f.Samples)]
	for i, s := range f.Samples {
		conv[i] = float64(s)
	}
	a.buf.Enqueue(conv...)
}

// Frame copies the current window, oldest sample first, into dst and returns
// the number of samples copied. When dst is shorter than the window the most
// recent len(dst) samples are copied.
func (a *Analyser) Frame(dst []float32) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.buf.Retrieve(a.window); err != nil {
		return 0
	}
	src := a.window
	if len(dst) < len(src) {
		src = src[len(src)-len(dst):]
	}
	for i, v := range src {
		dst[i] = float32(v)
	}
	return len(src)
}
