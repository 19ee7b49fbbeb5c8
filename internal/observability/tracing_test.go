package observability

import (
	"context"
	"testing"

	"github.com/signalsfoundry/displacement-playback/internal/logging"
)

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("PLAYBACK_TRACING_ENABLED", "true")
	t.Setenv("PLAYBACK_TRACING_EXPORTER", "OTLP")
	t.Setenv("PLAYBACK_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("PLAYBACK_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("PLAYBACK_TRACING_SERVICE_NAME", "")

	cfg := TracingConfigFromEnv("playback-server")
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Endpoint != "collector:4317" || cfg.ServiceName != "playback-server" {
		t.Fatalf("unexpected endpoint/service: %+v", cfg)
	}
}

func TestTracingConfigRejectsBadRatio(t *testing.T) {
	t.Setenv("PLAYBACK_TRACING_SAMPLE_RATIO", "7")
	if cfg := TracingConfigFromEnv("replay"); cfg.SampleRatio != 1 || cfg.Enabled {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	_, span := Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Fatalf("expected noop span when tracing is disabled")
	}
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}
