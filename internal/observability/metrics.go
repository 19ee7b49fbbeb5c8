package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// PlaybackCollector bundles the Prometheus metrics of the playback service:
// RPC traffic, session lifecycle, frame resolution and data quality.
type PlaybackCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
	Streams      *prometheus.CounterVec

	Sessions       *prometheus.GaugeVec
	FramesResolved prometheus.Counter
	PlaybackTicks  prometheus.Counter
	DataWarnings   *prometheus.CounterVec
}

// NewPlaybackCollector registers the playback metrics against reg, defaulting
// to the global registry when nil. Registering twice against the same
// registry reuses the existing collectors.
func NewPlaybackCollector(reg prometheus.Registerer) (*PlaybackCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_requests_total",
		Help: "Total number of handled playback RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "playback_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playback_request_duration_seconds",
		Help:    "Playback RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"service", "method"}), "playback_request_duration_seconds")
	if err != nil {
		return nil, err
	}
	streams, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_streams_total",
		Help: "Total number of finished streaming RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "playback_streams_total")
	if err != nil {
		return nil, err
	}
	sessions, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playback_sessions",
		Help: "Current number of playback sessions by status.",
	}, []string{"status"}), "playback_sessions")
	if err != nil {
		return nil, err
	}
	frames, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_frames_resolved_total",
		Help: "Total number of frames resolved from result rows.",
	}), "playback_frames_resolved_total")
	if err != nil {
		return nil, err
	}
	ticks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_ticks_total",
		Help: "Total number of auto-advance steps across all sessions.",
	}), "playback_ticks_total")
	if err != nil {
		return nil, err
	}
	warnings, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_data_warnings_total",
		Help: "Data-quality warnings raised while loading sessions, labeled by kind.",
	}, []string{"kind"}), "playback_data_warnings_total")
	if err != nil {
		return nil, err
	}

	return &PlaybackCollector{
		gatherer:       gatherer,
		RPCRequests:    requests,
		RPCDurations:   durations,
		Streams:        streams,
		Sessions:       sessions,
		FramesResolved: frames,
		PlaybackTicks:  ticks,
		DataWarnings:   warnings,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *PlaybackCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// StreamServerInterceptor counts finished server streams by status code.
func (c *PlaybackCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		if c == nil {
			return err
		}
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.Streams.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlaybackCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetSessionCounts drives the session gauges from the session manager.
func (c *PlaybackCollector) SetSessionCounts(loading, ready, failed int) {
	if c == nil {
		return
	}
	c.Sessions.WithLabelValues("loading").Set(float64(loading))
	c.Sessions.WithLabelValues("ready").Set(float64(ready))
	c.Sessions.WithLabelValues("failed").Set(float64(failed))
}

func (c *PlaybackCollector) IncFramesResolved() {
	if c == nil {
		return
	}
	c.FramesResolved.Inc()
}

func (c *PlaybackCollector) IncPlaybackTicks() {
	if c == nil {
		return
	}
	c.PlaybackTicks.Inc()
}

// AddDataWarnings adds n warnings of the given kind.
func (c *PlaybackCollector) AddDataWarnings(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.DataWarnings.WithLabelValues(kind).Add(float64(n))
}

// SplitMethod parses a fully-qualified gRPC method name into service and
// method components, returning "unknown" for parts that cannot be parsed.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func resolveRegistry(reg prometheus.Registerer) (prometheus.Registerer, prometheus.Gatherer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return reg, gatherer
}

// register adds c to reg. When an equivalent collector is already
// registered, that collector is returned instead.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
