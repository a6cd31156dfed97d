package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumPoint returns the value of the int64 sum data point carrying attr, or
// false when absent.
func sumPoint(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordBeat(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBeat(ctx, 0, 0.05)
	m.RecordBeat(ctx, 1, 0.075)
	m.RecordBeat(ctx, 0, 0.02)

	rm := collect(t, reader)
	got, ok := sumPoint(t, rm, "metrotune.metronome.beats", attribute.Int("beat", 0))
	if !ok {
		t.Fatal("data point with beat=0 not found")
	}
	if got != 2 {
		t.Errorf("counter value = %d, want 2", got)
	}

	met := findMetric(rm, "metrotune.metronome.lead")
	if met == nil {
		t.Fatal("lead histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("lead metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("lead histogram has no data points")
	}
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("sample count = %d, want 3", got)
	}
}

func TestRecordTunerFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTunerFrame(ctx, true)
	m.RecordTunerFrame(ctx, false)
	m.RecordTunerFrame(ctx, false)

	rm := collect(t, reader)
	got, ok := sumPoint(t, rm, "metrotune.tuner.frames", attribute.Bool("signal", false))
	if !ok {
		t.Fatal("data point with signal=false not found")
	}
	if got != 2 {
		t.Errorf("counter value = %d, want 2", got)
	}
}

func TestRecordAudioError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAudioError(ctx, ErrorKindMicrophone)

	rm := collect(t, reader)
	got, ok := sumPoint(t, rm, "metrotune.audio.errors", attribute.String("kind", ErrorKindMicrophone))
	if !ok {
		t.Fatal("data point with kind=microphone not found")
	}
	if got != 1 {
		t.Errorf("counter value = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.MetronomeRunning.Add(ctx, 1)
	m.TunerSessions.Add(ctx, 1)
	m.TunerSessions.Add(ctx, 1)
	m.TunerSessions.Add(ctx, -1)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"metrotune.metronome.running": 1,
		"metrotune.tuner.sessions":    1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) == 0 {
			t.Fatalf("metric %q has no sum data", name)
		}
		if got := sum.DataPoints[0].Value; got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
