// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Output], and [audio.Input] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	out := mock.NewOutput(44100)
//	in := mock.NewInput(44100)
//	platform := &mock.Platform{OutputResult: out, InputResult: in}
//	sched := metronome.New(platform)
//	out.Advance(0.025)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/metrotune/pkg/audio"
)

// ─── Output ───────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Output.Play] invocation.
type PlayCall struct {
	// Voice is the voice passed to Play.
	Voice audio.Voice
	// At is the scheduled clock timestamp.
	At float64
}

// Output is a mock implementation of [audio.Output] with a manually driven
// clock. The clock starts at zero and only moves via [Output.Advance] or
// [Output.SetTime].
type Output struct {
	mu sync.Mutex

	rate int
	now  float64

	// CloseError is returned by [Output.Close].
	CloseError error

	// PlayCalls records all Play invocations in order.
	PlayCalls []PlayCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

var _ audio.Output = (*Output)(nil)

// NewOutput returns an Output reporting the given sample rate.
func NewOutput(sampleRate int) *Output {
	return &Output{rate: sampleRate}
}

// CurrentTime implements [audio.Clock].
func (o *Output) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// SampleRate implements [audio.Output].
func (o *Output) SampleRate() int { return o.rate }

// Play implements [audio.Output]. The call is recorded; nothing is rendered.
func (o *Output) Play(v audio.Voice, at float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PlayCalls = append(o.PlayCalls, PlayCall{Voice: v, At: at})
}

// Close implements [audio.Output]. Returns CloseError.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	return o.CloseError
}

// Advance moves the clock forward by d seconds.
func (o *Output) Advance(d float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += d
}

// SetTime sets the clock to an absolute timestamp.
func (o *Output) SetTime(t float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = t
}

// Plays returns a copy of the recorded Play calls.
func (o *Output) Plays() []PlayCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PlayCall, len(o.PlayCalls))
	copy(out, o.PlayCalls)
	return out
}

// ─── Input ────────────────────────────────────────────────────────────────────

// Input is a mock implementation of [audio.Input]. Samples are injected with
// [Input.Emit] and delivered synchronously to every attached sink.
type Input struct {
	mu sync.Mutex

	rate    int
	nextID  int
	sinks   map[int]audio.Sink
	stopped bool
	closed  bool

	// StopError is returned by [Input.Stop].
	StopError error

	// CloseError is returned by [Input.Close].
	CloseError error

	// CallCountAttach records how many times Attach was called.
	CallCountAttach int

	// CallCountDetach records how many taps were detached.
	CallCountDetach int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// Order records release operations ("detach", "stop", "close") in the
	// order they happened.
	Order []string
}

var _ audio.Input = (*Input)(nil)

// NewInput returns a live Input reporting the given sample rate.
func NewInput(sampleRate int) *Input {
	return &Input{rate: sampleRate, sinks: make(map[int]audio.Sink)}
}

// SampleRate implements [audio.Input].
func (i *Input) SampleRate() int { return i.rate }

// Attach implements [audio.Input].
func (i *Input) Attach(sink audio.Sink) audio.Tap {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountAttach++
	id := i.nextID
	i.nextID++
	i.sinks[id] = sink
	return &tap{in: i, id: id}
}

// Live implements [audio.Input].
func (i *Input) Live() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return !i.stopped
}

// Stop implements [audio.Input]. Returns StopError.
func (i *Input) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountStop++
	i.Order = append(i.Order, "stop")
	i.stopped = true
	return i.StopError
}

// Close implements [audio.Input]. Returns CloseError.
func (i *Input) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountClose++
	i.Order = append(i.Order, "close")
	i.closed = true
	return i.CloseError
}

// Closed reports whether Close has been called.
func (i *Input) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Taps returns the number of currently attached sinks.
func (i *Input) Taps() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.sinks)
}

// Emit delivers samples to all attached sinks. Emitting on a stopped input
// is a no-op.
func (i *Input) Emit(samples []float32) {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return
	}
	sinks := make([]audio.Sink, 0, len(i.sinks))
	for _, s := range i.sinks {
		sinks = append(sinks, s)
	}
	rate := i.rate
	i.mu.Unlock()

	f := audio.Frame{Samples: samples, SampleRate: rate}
	for _, s := range sinks {
		s(f)
	}
}

// ReleaseOrder returns a copy of Order.
func (i *Input) ReleaseOrder() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.Order))
	copy(out, i.Order)
	return out
}

type tap struct {
	in   *Input
	id   int
	once sync.Once
}

func (t *tap) Detach() {
	t.once.Do(func() {
		t.in.mu.Lock()
		defer t.in.mu.Unlock()
		delete(t.in.sinks, t.id)
		t.in.CallCountDetach++
		t.in.Order = append(t.in.Order, "detach")
	})
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform] and [audio.Prober].
type Platform struct {
	mu sync.Mutex

	// OutputResult is the [audio.Output] returned by OpenOutput. When nil and
	// OutputError is nil, a fresh [Output] at 44100 Hz is returned per call.
	OutputResult audio.Output

	// OutputError is the error returned by OpenOutput.
	OutputError error

	// InputResult is the [audio.Input] returned by OpenInput. When nil and
	// InputError is nil, a fresh [Input] at 44100 Hz is returned per call.
	InputResult audio.Input

	// InputError is the error returned by OpenInput.
	InputError error

	// ProbeError is returned by Probe.
	ProbeError error

	// OpenGate, when non-nil, holds OpenOutput and OpenInput until it is
	// closed, like a device that is slow to open or a pending permission
	// prompt. A cancelled ctx ends the wait with ctx.Err().
	OpenGate chan struct{}

	// OpenEntered, when non-nil, receives a value each time an open call
	// starts waiting on OpenGate.
	OpenEntered chan struct{}

	// IgnoreCancel makes a gated open wait for OpenGate even after its
	// context is cancelled, like a driver that cannot be interrupted.
	IgnoreCancel bool

	// CallCountOpenOutput records how many times OpenOutput was called.
	CallCountOpenOutput int

	// CallCountOpenInput records how many times OpenInput was called.
	CallCountOpenInput int

	// CallCountProbe records how many times Probe was called.
	CallCountProbe int

	// Inputs records every Input handed out, in order.
	Inputs []audio.Input
}

var (
	_ audio.Platform = (*Platform)(nil)
	_ audio.Prober   = (*Platform)(nil)
)

// wait blocks on OpenGate without holding p.mu.
func (p *Platform) wait(ctx context.Context) error {
	p.mu.Lock()
	gate, entered, stubborn := p.OpenGate, p.OpenEntered, p.IgnoreCancel
	p.mu.Unlock()
	if gate == nil {
		return nil
	}
	if entered != nil {
		entered <- struct{}{}
	}
	if stubborn {
		<-gate
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(ctx context.Context) (audio.Output, error) {
	p.mu.Lock()
	p.CallCountOpenOutput++
	p.mu.Unlock()
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OutputError != nil {
		return nil, p.OutputError
	}
	if p.OutputResult == nil {
		return NewOutput(44100), nil
	}
	return p.OutputResult, nil
}

// OpenInput implements [audio.Platform].
func (p *Platform) OpenInput(ctx context.Context) (audio.Input, error) {
	p.mu.Lock()
	p.CallCountOpenInput++
	p.mu.Unlock()
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.InputError != nil {
		return nil, p.InputError
	}
	in := p.InputResult
	if in == nil {
		in = NewInput(44100)
	}
	p.Inputs = append(p.Inputs, in)
	return in, nil
}

// Probe implements [audio.Prober]. Returns ProbeError.
func (p *Platform) Probe(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountProbe++
	return p.ProbeError
}
