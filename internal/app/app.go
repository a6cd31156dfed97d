// Package app wires the metrotune subsystems into a running application.
//
// New builds the metronome scheduler, the pitch detector, the HTTP shell and
// the health probes on top of one audio platform. Run serves HTTP until the
// context ends and Shutdown releases every device in order.
//
// For testing, inject a mock platform and tune the engines through the
// functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/metrotune/internal/config"
	"github.com/MrWong99/metrotune/internal/health"
	"github.com/MrWong99/metrotune/internal/metronome"
	"github.com/MrWong99/metrotune/internal/observe"
	"github.com/MrWong99/metrotune/internal/pitch"
	"github.com/MrWong99/metrotune/internal/shell"
	"github.com/MrWong99/metrotune/pkg/audio"
)

const (
	readHeaderTimeout = 5 * time.Second
	drainTimeout      = 5 * time.Second
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	platform audio.Platform
	metrics  *observe.Metrics

	scheduler *metronome.Scheduler
	detector  *pitch.Detector
	shell     *shell.Server
	health    *health.Handler
	handler   http.Handler

	metricsHandler http.Handler
	listener       net.Listener
	schedulerOpts  []metronome.Option
	detectorOpts   []pitch.Option

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics, typically promhttp over the
// registry fed by the OpenTelemetry Prometheus exporter.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithSchedulerOptions appends options to the scheduler built from config.
func WithSchedulerOptions(opts ...metronome.Option) Option {
	return func(a *App) { a.schedulerOpts = append(a.schedulerOpts, opts...) }
}

// WithDetectorOptions appends options to the detector built from config.
func WithDetectorOptions(opts ...pitch.Option) Option {
	return func(a *App) { a.detectorOpts = append(a.detectorOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App on top of platform. No device is opened here; the
// output opens on the first metronome start and the microphone on each tuner
// activation.
func New(ctx context.Context, cfg *config.Config, platform audio.Platform, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if platform == nil {
		return nil, errors.New("app: audio platform is nil")
	}
	a := &App{cfg: cfg, platform: platform}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Engines ───────────────────────────────────────────────────────
	m := cfg.Metronome
	a.scheduler = metronome.New(platform, append([]metronome.Option{
		metronome.WithTempo(m.DefaultBPM),
		metronome.WithLookahead(m.Lookahead),
		metronome.WithScheduleInterval(m.ScheduleInterval),
		metronome.WithStartLatency(m.StartLatency),
		metronome.WithClick(ClickFromConfig(m.Click)),
		metronome.WithMetrics(a.metrics),
	}, a.schedulerOpts...)...)

	t := cfg.Tuner
	a.detector = pitch.New(platform, append([]pitch.Option{
		pitch.WithFrameSize(t.FrameSize),
		pitch.WithNoiseFloor(t.NoiseFloor),
		pitch.WithRefreshRate(t.RefreshRate),
		pitch.WithMetrics(a.metrics),
	}, a.detectorOpts...)...)

	// ── 2. HTTP surface ──────────────────────────────────────────────────
	a.shell = shell.New(a.scheduler, a.detector, shell.WithRefreshRate(cfg.Shell.RefreshRate))
	a.health = health.New(health.AudioChecker(platform))

	mux := http.NewServeMux()
	a.shell.Register(mux)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.handler = observe.Middleware(a.metrics,
		observe.WithQuietPaths("/healthz", "/readyz", "/metrics", "/api/state", "/api/stream"),
	)(mux)

	// ── 3. Teardown order ────────────────────────────────────────────────
	a.closers = append(a.closers,
		a.scheduler.Close,
		a.detector.Deactivate,
	)
	if c, ok := platform.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	observe.Logger(ctx).Debug("app initialised",
		"backend", cfg.Audio.Backend,
		"bpm", m.DefaultBPM,
		"frame_size", t.FrameSize,
	)
	return a, nil
}

// ClickFromConfig builds the click voice for a config section. Envelope
// timings keep their defaults.
func ClickFromConfig(c config.ClickConfig) metronome.Click {
	click := metronome.DefaultClick()
	if c.Frequency > 0 {
		click.Frequency = c.Frequency
	}
	if c.Volume > 0 {
		click.Volume = c.Volume
	}
	return click
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Metronome returns the beat scheduler.
func (a *App) Metronome() *metronome.Scheduler { return a.scheduler }

// Tuner returns the pitch detector.
func (a *App) Tuner() *pitch.Detector { return a.detector }

// Handler returns the full HTTP handler including middleware.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the live-reloadable differences between old and new and
// returns the diff. Settings that need a restart are logged and ignored.
// The log level is owned by the caller, which holds the [slog.LevelVar].
func (a *App) Reload(old, new *config.Config) config.ConfigDiff {
	d := config.Diff(old, new)
	if d.ClickChanged {
		a.scheduler.SetClick(ClickFromConfig(d.NewClick))
		slog.Info("click updated", "frequency", d.NewClick.Frequency, "volume", d.NewClick.Volume)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "settings", d.RestartRequired)
	}
	return d
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP shell and blocks until ctx is cancelled or the server
// fails. On cancellation it returns ctx.Err() after draining requests.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		// Streams end with the app rather than with Shutdown, which does not
		// wait for hijacked connections.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		var err error
		if a.listener != nil {
			err = srv.Serve(a.listener)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: drain http: %w", err)
		}
		return nil
	})

	addr := a.cfg.Server.ListenAddr
	if a.listener != nil {
		addr = a.listener.Addr().String()
	}
	slog.Info("app running", "addr", addr)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the metronome, releases the microphone and closes the audio
// platform, in that order. It respects the context deadline: if ctx expires
// before all closers finish, remaining closers are skipped and the context
// error is returned. Subsequent calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
