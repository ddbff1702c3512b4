package monitoring

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func restoreTracerProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		otel.SetTextMapPropagator(prevProp)
	})
}

func TestInitTracing_ExportsSpans(t *testing.T) {
	restoreTracerProvider(t)
	original := Logf
	defer func() { Logf = original }()
	SetLogger(nil)

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		SampleRatio: 1,
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "survey.cycle")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"Name":"survey.cycle"`) {
		t.Errorf("span not exported: %q", out)
	}
	if !strings.Contains(out, "rangemap") {
		t.Errorf("default service name missing from export: %q", out)
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	restoreTracerProvider(t)

	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracing produced a recording span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}

func TestInitTracing_BadRatio(t *testing.T) {
	restoreTracerProvider(t)
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, SampleRatio: 1.5}); err == nil {
		t.Error("expected error for ratio above 1")
	}
}

func TestShutdownTracing_LogsFailure(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })

	ShutdownTracing(context.Background(), func(context.Context) error { return context.Canceled })
	if !strings.Contains(got, "shutdown failed") {
		t.Errorf("logged %q", got)
	}
	ShutdownTracing(context.Background(), nil)
}

func TestTracingConfig_WriterDefaultsToStderr(t *testing.T) {
	if w := (TracingConfig{}).writer(); w != os.Stderr {
		t.Errorf("default span writer = %v, want os.Stderr", w)
	}
	var buf strings.Builder
	if w := (TracingConfig{Writer: &buf}).writer(); w != &buf {
		t.Error("explicit writer not used")
	}
}
