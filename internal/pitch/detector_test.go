package pitch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/metrotune/internal/observe"
	"github.com/MrWong99/metrotune/pkg/audio"
	"github.com/MrWong99/metrotune/pkg/audio/mock"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// manualTicker delivers ticks only when the test calls Tick.
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *manualTicker) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Tick blocks until the analysis loop has received the tick.
func (m *manualTicker) Tick() { m.ch <- time.Now() }

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestDetector(t *testing.T, p InputProvider) (*Detector, *manualTicker) {
	t.Helper()
	tk := &manualTicker{ch: make(chan time.Time)}
	d := New(p,
		WithTicker(func(time.Duration) Ticker { return tk }),
		WithMetrics(testMetrics(t)),
	)
	t.Cleanup(func() { _ = d.Deactivate() })
	return d, tk
}

// waitSample polls until cond holds for the published sample.
func waitSample(t *testing.T, d *Detector, cond func(Sample) bool) Sample {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := d.Sample(); cond(s) {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for sample, last: %+v", d.Sample())
	return Sample{}
}

func TestDetector_PublishesPitch(t *testing.T) {
	t.Parallel()

	in := mock.NewInput(44100)
	d, tk := newTestDetector(t, &mock.Platform{InputResult: in})

	if err := d.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !d.Active() {
		t.Fatal("expected detector to be active")
	}
	if d.Sample().Signal {
		t.Error("fresh session should report no signal")
	}

	in.Emit(sine(440, 44100, 0.5, DefaultFrameSize))
	tk.Tick()

	s := waitSample(t, d, func(s Sample) bool { return s.Signal })
	if math.Abs(s.Frequency-440) > 2 {
		t.Errorf("frequency: got %v, want ~440", s.Frequency)
	}
	if s.NoteName != "A" || s.Note != 69 {
		t.Errorf("note: got %s/%d, want A/69", s.NoteName, s.Note)
	}
}

func TestDetector_SilenceClearsSample(t *testing.T) {
	t.Parallel()

	in := mock.NewInput(44100)
	d, tk := newTestDetector(t, &mock.Platform{InputResult: in})
	if err := d.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	in.Emit(sine(440, 44100, 0.5, DefaultFrameSize))
	tk.Tick()
	waitSample(t, d, func(s Sample) bool { return s.Signal })

	in.Emit(make([]float32, DefaultFrameSize))
	tk.Tick()
	waitSample(t, d, func(s Sample) bool { return !s.Signal })
}

func TestDetector_DeactivateReleasesEverything(t *testing.T) {
	t.Parallel()

	in := mock.NewInput(44100)
	d, tk := newTestDetector(t, &mock.Platform{InputResult: in})
	if err := d.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	in.Emit(sine(440, 44100, 0.5, DefaultFrameSize))
	tk.Tick()
	waitSample(t, d, func(s Sample) bool { return s.Signal })

	if err := d.Deactivate(); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	if d.Active() {
		t.Error("detector still active")
	}
	if d.Sample() != NoSignal() {
		t.Errorf("sample after deactivate: got %+v, want no signal", d.Sample())
	}
	if in.Live() {
		t.Error("microphone track still live")
	}
	if !in.Closed() {
		t.Error("device context not released")
	}
	if in.Taps() != 0 {
		t.Errorf("analyser taps: got %d, want 0", in.Taps())
	}
	if !tk.Stopped() {
		t.Error("analysis ticker not stopped")
	}
}

func TestDetector_DeactivateIdempotent(t *testing.T) {
	t.Parallel()

	in := mock.NewInput(44100)
	d, _ := newTestDetector(t, &mock.Platform{InputResult: in})

	if err := d.Deactivate(); err != nil {
		t.Fatalf("Deactivate before Activate: %v", err)
	}
	if err := d.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := d.Deactivate(); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := d.Deactivate(); err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}
	if in.CallCountStop != 1 || in.CallCountClose != 1 {
		t.Errorf("stop/close calls: got %d/%d, want 1/1", in.CallCountStop, in.CallCountClose)
	}
}

func TestDetector_ActivateTwiceIsNoop(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{}
	d, _ := newTestDetector(t, p)
	for range 2 {
		if err := d.Activate(context.Background()); err != nil {
			t.Fatalf("Activate: %v", err)
		}
	}
	if p.CallCountOpenInput != 1 {
		t.Errorf("OpenInput calls: got %d, want 1", p.CallCountOpenInput)
	}
}

func TestDetector_ReactivateOpensFreshSession(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{}
	d, _ := newTestDetector(t, p)
	for range 2 {
		if err := d.Activate(context.Background()); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if err := d.Deactivate(); err != nil {
			t.Fatalf("Deactivate: %v", err)
		}
	}
	if len(p.Inputs) != 2 {
		t.Fatalf("inputs opened: got %d, want 2", len(p.Inputs))
	}
	for i, in := range p.Inputs {
		if in.Live() {
			t.Errorf("input %d still live", i)
		}
	}
}

func TestDetector_MicrophoneDenied(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{InputError: audio.ErrMicrophoneAccessDenied}
	d, _ := newTestDetector(t, p)

	err := d.Activate(context.Background())
	if !errors.Is(err, audio.ErrMicrophoneAccessDenied) {
		t.Fatalf("got %v, want ErrMicrophoneAccessDenied", err)
	}
	if d.Active() {
		t.Error("detector active after denied activation")
	}
	if d.Sample().Signal {
		t.Error("denied activation published a signal")
	}
}

// answersPromptly fails the test if f does not return within a second.
func answersPromptly(t *testing.T, what string, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s blocked while the microphone was pending", what)
	}
}

func activateGated(t *testing.T, p *mock.Platform, d *Detector) <-chan error {
	t.Helper()
	entered := make(chan struct{}, 1)
	p.OpenEntered = entered
	activated := make(chan error, 1)
	go func() { activated <- d.Activate(context.Background()) }()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("microphone was never requested")
	}
	return activated
}

func waitActivated(t *testing.T, activated <-chan error) error {
	t.Helper()
	select {
	case err := <-activated:
		return err
	case <-time.After(time.Second):
		t.Fatal("Activate did not return")
		return nil
	}
}

func TestDetector_ReadersAnswerWhileMicrophonePending(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	in := mock.NewInput(44100)
	p := &mock.Platform{InputResult: in, OpenGate: gate}
	d, _ := newTestDetector(t, p)
	activated := activateGated(t, p, d)

	answersPromptly(t, "Active", func() {
		if d.Active() {
			t.Error("active before the microphone was granted")
		}
	})
	answersPromptly(t, "Sample", func() {
		if d.Sample() != NoSignal() {
			t.Errorf("sample while pending: got %+v, want no signal", d.Sample())
		}
	})
	answersPromptly(t, "concurrent Activate", func() {
		if err := d.Activate(context.Background()); err != nil {
			t.Errorf("concurrent Activate: %v", err)
		}
	})

	close(gate)
	if err := waitActivated(t, activated); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !d.Active() {
		t.Error("not active after the microphone was granted")
	}
	if p.CallCountOpenInput != 1 {
		t.Errorf("OpenInput calls: got %d, want 1", p.CallCountOpenInput)
	}
}

func TestDetector_DeactivateAbandonsPendingActivate(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{OpenGate: make(chan struct{})}
	d, _ := newTestDetector(t, p)
	activated := activateGated(t, p, d)

	answersPromptly(t, "Deactivate", func() {
		if err := d.Deactivate(); err != nil {
			t.Errorf("Deactivate: %v", err)
		}
	})
	if err := waitActivated(t, activated); err != nil {
		t.Fatalf("abandoned Activate: got %v, want nil", err)
	}
	if d.Active() {
		t.Error("active after Deactivate during the request")
	}
	if len(p.Inputs) != 0 {
		t.Errorf("inputs opened: got %d, want 0", len(p.Inputs))
	}
}

func TestDetector_DeactivateReleasesLateSession(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	in := mock.NewInput(44100)
	p := &mock.Platform{InputResult: in, OpenGate: gate, IgnoreCancel: true}
	d, _ := newTestDetector(t, p)
	activated := activateGated(t, p, d)

	answersPromptly(t, "Deactivate", func() {
		if err := d.Deactivate(); err != nil {
			t.Errorf("Deactivate: %v", err)
		}
	})
	close(gate)
	if err := waitActivated(t, activated); err != nil {
		t.Fatalf("abandoned Activate: got %v, want nil", err)
	}
	if d.Active() {
		t.Error("active after Deactivate during the request")
	}
	if in.Live() {
		t.Error("late microphone track still live")
	}
	if !in.Closed() {
		t.Error("late device context not released")
	}
	if in.Taps() != 0 {
		t.Errorf("analyser taps: got %d, want 0", in.Taps())
	}
}
