package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/signalsfoundry/displacement-playback/internal/api"
	"github.com/signalsfoundry/displacement-playback/internal/backend"
	"github.com/signalsfoundry/displacement-playback/internal/logging"
	"github.com/signalsfoundry/displacement-playback/internal/observability"
	"github.com/signalsfoundry/displacement-playback/internal/session"
	"github.com/signalsfoundry/displacement-playback/timectrl"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Config is the resolved server configuration.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	BackendURL     string
	TickInterval   time.Duration
	// Cache is "", "memory" or "redis".
	Cache        string
	RedisAddress string
	CacheTTL     time.Duration
	// FetchTimeout bounds one backend request.
	FetchTimeout time.Duration
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("playback-server"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "playback server exited", logging.Err(err))
		os.Exit(1)
	}
}

// parseConfig reads flags, taking defaults from PLAYBACK_* variables.
func parseConfig(args []string, getenv func(string) string) (Config, error) {
	fs := flag.NewFlagSet("playback-server", flag.ContinueOnError)

	tick := timectrl.DefaultInterval
	if raw := getenv("PLAYBACK_TICK"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("PLAYBACK_TICK: %w", err)
		}
		tick = d
	}

	var cfg Config
	fs.StringVar(&cfg.ListenAddress, "grpc-addr", ":50061", "TCP address the playback gRPC server listens on")
	fs.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9091", "HTTP address for Prometheus /metrics (empty disables)")
	fs.StringVar(&cfg.BackendURL, "backend-url", envOr(getenv, "PLAYBACK_BACKEND_URL", "http://localhost:8000"), "base URL of the simulation backend")
	fs.DurationVar(&cfg.TickInterval, "tick", tick, "wall-clock time between auto-advanced days")
	fs.StringVar(&cfg.Cache, "cache", getenv("PLAYBACK_CACHE"), "backend document cache: memory, redis or empty for none")
	fs.StringVar(&cfg.RedisAddress, "redis-addr", envOr(getenv, "PLAYBACK_REDIS_ADDR", "localhost:6379"), "Redis address when -cache=redis")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", 10*time.Minute, "lifetime of cached backend documents")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", 30*time.Second, "timeout for one backend request")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Cache = strings.ToLower(cfg.Cache)
	switch cfg.Cache {
	case "", "none", "memory", "redis":
	default:
		return Config{}, fmt.Errorf("unsupported cache %q", cfg.Cache)
	}
	if cfg.TickInterval <= 0 {
		return Config{}, fmt.Errorf("tick interval must be positive, got %s", cfg.TickInterval)
	}
	if cfg.FetchTimeout <= 0 {
		return Config{}, fmt.Errorf("fetch timeout must be positive, got %s", cfg.FetchTimeout)
	}
	return cfg, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

// run serves the playback API on lis until ctx is cancelled.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	collector, err := observability.NewPlaybackCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	backendMetrics, err := observability.NewBackendCollector(nil)
	if err != nil {
		return fmt.Errorf("backend metrics collector: %w", err)
	}

	clientOpts := []backend.ClientOption{
		backend.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		backend.WithLogger(log),
		backend.WithMetricsRecorder(backendMetrics),
	}
	switch cfg.Cache {
	case "memory":
		clientOpts = append(clientOpts, backend.WithCache(backend.NewMemoryCache(), cfg.CacheTTL))
	case "redis":
		cache, err := backend.NewRedisCache(ctx, cfg.RedisAddress)
		if err != nil {
			return err
		}
		defer cache.Close()
		clientOpts = append(clientOpts, backend.WithCache(cache, cfg.CacheTTL))
	}
	fetcher, err := backend.NewClient(cfg.BackendURL, clientOpts...)
	if err != nil {
		return err
	}

	sessions := session.NewManager(fetcher, log,
		session.WithMetricsRecorder(collector),
		session.WithTickInterval(cfg.TickInterval),
	)
	defer sessions.CloseAll()

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			api.RequestIDUnaryServerInterceptor(log),
			api.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			api.RequestIDStreamServerInterceptor(log),
			collector.StreamServerInterceptor(),
		),
	)
	api.RegisterPlaybackServer(server, api.NewServer(sessions, log))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting playback gRPC server",
			logging.String("addr", lis.Addr().String()),
			logging.String("backend", cfg.BackendURL),
			logging.Duration("tick", cfg.TickInterval),
			logging.String("cache", cfg.Cache),
			logging.Bool("metrics", metricsSrv != nil),
		)
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			log.Info(gctx, "serving Prometheus metrics", logging.String("addr", cfg.MetricsAddress))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down playback server")
		healthSrv.Shutdown()
		server.GracefulStop()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
