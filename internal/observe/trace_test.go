package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer swaps the global tracer provider for one backed by an
// in-memory exporter until the test ends.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points the default logger at a buffer until the test ends.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestTraceID(t *testing.T) {
	exp := installTracer(t)

	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID without span: got %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "tuner.activate")
	tid := TraceID(ctx)
	span.End()

	if len(tid) != 32 {
		t.Errorf("trace id length: got %d, want 32", len(tid))
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans: got %d, want 1", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != tid {
		t.Errorf("exported trace id: got %q, want %q", got, tid)
	}
}

func TestEndSpan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   codes.Code
		wantEvents bool
	}{
		{name: "success", wantCode: codes.Ok},
		{name: "failure", err: errors.New("microphone busy"), wantCode: codes.Error, wantEvents: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := installTracer(t)

			_, span := StartSpan(context.Background(), "metronome.start")
			EndSpan(span, tt.err)

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans: got %d, want 1", len(spans))
			}
			if spans[0].Name != "metronome.start" {
				t.Errorf("name: got %q, want %q", spans[0].Name, "metronome.start")
			}
			if spans[0].Status.Code != tt.wantCode {
				t.Errorf("status: got %v, want %v", spans[0].Status.Code, tt.wantCode)
			}
			if got := len(spans[0].Events) > 0; got != tt.wantEvents {
				t.Errorf("has error event: got %v, want %v", got, tt.wantEvents)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	installTracer(t)
	buf := captureLogs(t, slog.LevelInfo)

	Logger(context.Background()).Info("tuner idle")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span carries trace_id: %s", buf.String())
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "tuner.activate")
	defer span.End()
	Logger(ctx).Info("tuner activated")

	out := buf.String()
	if !strings.Contains(out, "trace_id="+TraceID(ctx)) {
		t.Errorf("log missing trace_id: %s", out)
	}
	if !strings.Contains(out, "span_id=") {
		t.Errorf("log missing span_id: %s", out)
	}
}
