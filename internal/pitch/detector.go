package pitch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/metrotune/internal/observe"
)

const (
	// DefaultFrameSize is the analysis window length in samples.
	DefaultFrameSize = 2048

	// DefaultRefreshRate is the analysis loop rate in Hz.
	DefaultRefreshRate = 60
)

// Ticker drives the analysis loop. *time.Ticker is adapted by [NewTicker].
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a [Ticker] firing every d.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTicker is the default [TickerFunc] backed by [time.NewTicker].
func NewTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

// Option configures a [Detector].
type Option func(*Detector)

// WithFrameSize sets the analysis window length in samples.
func WithFrameSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.frameSize = n
		}
	}
}

// WithNoiseFloor sets the RMS silence threshold.
func WithNoiseFloor(v float64) Option {
	return func(d *Detector) {
		if v > 0 {
			d.noiseFloor = v
		}
	}
}

// WithRefreshRate sets how many frames per second are analysed.
func WithRefreshRate(hz int) Option {
	return func(d *Detector) {
		if hz > 0 {
			d.interval = time.Second / time.Duration(hz)
		}
	}
}

// WithTicker replaces the loop ticker. Tests use this to step frames by hand.
func WithTicker(f TickerFunc) Option {
	return func(d *Detector) {
		d.newTicker = f
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// Detector is the tuner engine. Activate opens a [CaptureSession] and starts
// an analysis loop that publishes one [Sample] per tick; Deactivate tears
// both down.
//
// All methods are safe for concurrent use.
type Detector struct {
	provider   InputProvider
	frameSize  int
	noiseFloor float64
	interval   time.Duration
	newTicker  TickerFunc
	metrics    *observe.Metrics

	mu      sync.Mutex
	session *CaptureSession
	sample  Sample
	cancel  context.CancelFunc
	done    chan struct{}
	opening *activation
}

// New creates an inactive Detector that acquires microphones from p.
func New(p InputProvider, opts ...Option) *Detector {
	d := &Detector{
		provider:   p,
		frameSize:  DefaultFrameSize,
		noiseFloor: NoiseFloor,
		interval:   time.Second / DefaultRefreshRate,
		newTicker:  NewTicker,
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Activate requests the microphone, opens a capture session and schedules
// the analysis loop. Calling Activate while active, or while another
// Activate is still waiting for the microphone, is a no-op. The supplied ctx
// governs the acquisition only; the loop runs until [Detector.Deactivate].
// Errors wrap [audio.ErrMicrophoneAccessDenied].
//
// The microphone is requested without holding the detector lock, so Active
// and Sample keep answering while a permission prompt is up. A Deactivate
// issued during that time wins: the late session is released and Activate
// returns nil with the detector inactive.
func (d *Detector) Activate(ctx context.Context) (err error) {
	d.mu.Lock()
	if d.session != nil || d.opening != nil {
		d.mu.Unlock()
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "tuner.activate")
	defer func() { observe.EndSpan(span, err) }()

	openCtx, cancelOpen := context.WithCancel(ctx)
	defer cancelOpen()
	attempt := &activation{cancel: cancelOpen}
	d.opening = attempt
	d.mu.Unlock()

	sess, err := OpenCaptureSession(openCtx, d.provider, d.frameSize)

	d.mu.Lock()
	d.opening = nil
	if attempt.aborted {
		d.mu.Unlock()
		if err != nil {
			observe.Logger(ctx).Debug("tuner activation abandoned", "err", err)
			return nil
		}
		if rerr := sess.Release(); rerr != nil {
			observe.Logger(ctx).Warn("tuner: release abandoned session", "err", rerr)
		}
		return nil
	}
	if err != nil {
		d.mu.Unlock()
		d.metrics.RecordAudioError(ctx, observe.ErrorKindMicrophone)
		observe.Logger(ctx).Warn("tuner activation failed", "err", err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ticker := d.newTicker(d.interval)

	d.session = sess
	d.sample = NoSignal()
	d.cancel = cancel
	d.done = done
	d.metrics.TunerSessions.Add(ctx, 1)
	go d.loop(loopCtx, sess, ticker, done)
	d.mu.Unlock()

	observe.Logger(ctx).Info("tuner activated",
		"sample_rate", sess.SampleRate(),
		"frame_size", d.frameSize,
		"interval", d.interval,
	)
	return nil
}

// activation tracks an Activate that is waiting for the microphone.
type activation struct {
	cancel  context.CancelFunc
	aborted bool
}

// Deactivate stops the analysis loop, releases the capture session and
// resets the published sample to no-signal. It returns only after the loop
// has exited. An Activate still waiting for the microphone is abandoned.
// Calling Deactivate while inactive is a no-op.
//
// A non-nil error means the platform failed to release a device; the
// session is still considered gone.
func (d *Detector) Deactivate() error {
	d.mu.Lock()
	if d.opening != nil {
		d.opening.aborted = true
		d.opening.cancel()
	}
	sess := d.session
	if sess == nil {
		d.mu.Unlock()
		return nil
	}
	cancel, done := d.cancel, d.done
	d.session = nil
	d.sample = NoSignal()
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()

	cancel()
	<-done

	d.metrics.TunerSessions.Add(context.Background(), -1)
	err := sess.Release()
	if err != nil {
		slog.Warn("tuner release failed", "err", err)
	} else {
		slog.Info("tuner deactivated")
	}
	return err
}

// Active reports whether a capture session is open.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session != nil
}

// Sample returns the latest published reading.
func (d *Detector) Sample() Sample {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sample
}

func (d *Detector) loop(ctx context.Context, sess *CaptureSession, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	est := NewEstimator(d.noiseFloor)
	buf := make([]float32, d.frameSize)
	rate := float64(sess.SampleRate())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
		n := sess.Read(buf)
		s := NoSignal()
		if freq, ok := est.Estimate(buf[:n], rate); ok {
			s = FromFrequency(freq)
		}
		d.metrics.RecordTunerFrame(ctx, s.Signal)
		d.publish(sess, s)
	}
}

// publish stores s unless sess has been deactivated in the meantime.
func (d *Detector) publish(sess *CaptureSession, s Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != sess {
		return
	}
	d.sample = s
}
