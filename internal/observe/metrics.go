// Package observe provides application-wide observability primitives for
// metrotune: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrotune metrics.
const meterName = "github.com/MrWong99/metrotune"

// Audio error kinds used with [Metrics.RecordAudioError].
const (
	ErrorKindOutput     = "output"
	ErrorKindMicrophone = "microphone"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Metronome ---

	// BeatsScheduled counts clicks handed to the audio output. Use with
	// attribute:
	//   attribute.Int("beat", ...)
	BeatsScheduled metric.Int64Counter

	// ScheduleLead tracks how far ahead of the audio clock each click was
	// scheduled, in seconds.
	ScheduleLead metric.Float64Histogram

	// MetronomeRunning is 1 while the metronome is running, 0 otherwise.
	MetronomeRunning metric.Int64UpDownCounter

	// --- Tuner ---

	// TunerFrames counts analysed frames. Use with attribute:
	//   attribute.Bool("signal", ...)
	TunerFrames metric.Int64Counter

	// TunerSessions tracks the number of open capture sessions.
	TunerSessions metric.Int64UpDownCounter

	// --- Errors ---

	// AudioErrors counts device acquisition failures. Use with attribute:
	//   attribute.String("kind", ...)
	AudioErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// leadBuckets defines histogram bucket boundaries (in seconds) around the
// scheduler's look-ahead window.
var leadBuckets = []float64{
	0, 0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Metronome.
	if met.BeatsScheduled, err = m.Int64Counter("metrotune.metronome.beats",
		metric.WithDescription("Total clicks scheduled on the audio clock by beat index."),
	); err != nil {
		return nil, err
	}
	if met.ScheduleLead, err = m.Float64Histogram("metrotune.metronome.lead",
		metric.WithDescription("Distance between the audio clock and the scheduled click time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(leadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MetronomeRunning, err = m.Int64UpDownCounter("metrotune.metronome.running",
		metric.WithDescription("Whether the metronome is running."),
	); err != nil {
		return nil, err
	}

	// Tuner.
	if met.TunerFrames, err = m.Int64Counter("metrotune.tuner.frames",
		metric.WithDescription("Total analysed tuner frames by signal presence."),
	); err != nil {
		return nil, err
	}
	if met.TunerSessions, err = m.Int64UpDownCounter("metrotune.tuner.sessions",
		metric.WithDescription("Number of open microphone capture sessions."),
	); err != nil {
		return nil, err
	}

	// Errors.
	if met.AudioErrors, err = m.Int64Counter("metrotune.audio.errors",
		metric.WithDescription("Total audio device acquisition failures by kind."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("metrotune.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBeat records one scheduled click and its lead over the audio clock.
func (m *Metrics) RecordBeat(ctx context.Context, beat int, lead float64) {
	m.BeatsScheduled.Add(ctx, 1, metric.WithAttributes(attribute.Int("beat", beat)))
	m.ScheduleLead.Record(ctx, lead)
}

// RecordTunerFrame records one analysed frame.
func (m *Metrics) RecordTunerFrame(ctx context.Context, signal bool) {
	m.TunerFrames.Add(ctx, 1, metric.WithAttributes(attribute.Bool("signal", signal)))
}

// RecordAudioError records an audio acquisition failure of the given kind
// ([ErrorKindOutput] or [ErrorKindMicrophone]).
func (m *Metrics) RecordAudioError(ctx context.Context, kind string) {
	m.AudioErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
