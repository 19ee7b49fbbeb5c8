package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/signalsfoundry/displacement-playback/internal/logging"
	"github.com/signalsfoundry/displacement-playback/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	tracerName = "github.com/signalsfoundry/displacement-playback/internal/backend"

	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 10 * time.Minute
	// maxBodyBytes bounds a single document; results for long simulations
	// with many locations stay well below it.
	maxBodyBytes = 64 << 20
)

var resourcePaths = map[string]string{
	ResourceResult:        "simulation_results",
	ResourceConfiguration: "simulations",
}

// Client is a Fetcher over the backend's REST API. Concurrent fetches of the
// same document share one request, and documents are optionally cached.
type Client struct {
	base     *url.URL
	http     *http.Client
	log      logging.Logger
	metrics  MetricsRecorder
	cache    Cache
	cacheTTL time.Duration
	flight   singleflight.Group
}

// ClientOption customises a Client.
type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetricsRecorder(m MetricsRecorder) ClientOption {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCache stores fetched documents in cache for ttl. A non-positive ttl
// uses a ten minute default.
func WithCache(cache Cache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// NewClient returns a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:     base,
		http:     &http.Client{Timeout: defaultTimeout},
		log:      logging.Noop(),
		metrics:  noopMetrics{},
		cacheTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// FetchResult retrieves GET {base}/simulation_results/{id}.
func (c *Client) FetchResult(ctx context.Context, id string) (*model.Result, error) {
	var result model.Result
	if err := c.fetch(ctx, ResourceResult, id, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchConfiguration retrieves GET {base}/simulations/{id}.
func (c *Client) FetchConfiguration(ctx context.Context, id string) (*model.Configuration, error) {
	var cfg model.Configuration
	if err := c.fetch(ctx, ResourceConfiguration, id, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) fetch(ctx context.Context, resource, id string, out any) error {
	if id == "" {
		return fmt.Errorf("fetch %s: %w: empty id", resource, ErrNotFound)
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "backend.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("backend.resource", resource),
			attribute.String("backend.id", id),
		))
	defer span.End()

	body, err := c.document(ctx, resource, id)
	if err == nil {
		if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
			err = fmt.Errorf("fetch %s %s: %w: decode: %v", resource, id, ErrUpstream, decodeErr)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.FromContext(ctx, c.log).Warn(ctx, "backend fetch failed",
			logging.String("resource", resource),
			logging.String("id", id),
			logging.Err(err),
		)
	}
	return err
}

// document returns the raw JSON body, from cache when possible.
func (c *Client) document(ctx context.Context, resource, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", resource, id, err)
	}
	key := resource + ":" + id
	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.log.Warn(ctx, "backend cache read failed", logging.String("key", key), logging.Err(err))
		}
		c.metrics.ObserveCache(resource, ok)
		if ok {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("backend.cache_hit", true))
			return body, nil
		}
	}

	// The shared request must outlive any single caller; each caller still
	// stops waiting when its own ctx ends.
	flight := c.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()

		start := time.Now()
		body, err := c.get(fctx, resource, id)
		c.metrics.ObserveFetch(resource, outcome(err), time.Since(start))
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(fctx, key, body, c.cacheTTL); err != nil {
				c.log.Warn(fctx, "backend cache write failed", logging.String("key", key), logging.Err(err))
			}
		}
		return body, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s %s: %w", resource, id, ctx.Err())
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) get(ctx context.Context, resource, id string) ([]byte, error) {
	u := c.base.JoinPath(resourcePaths[resource], id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", resource, id, err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s %s: %w", resource, id, ctx.Err())
		}
		return nil, fmt.Errorf("fetch %s %s: %w: %v", resource, id, ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %s %s: %w", resource, id, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch %s %s: %w: status %d", resource, id, ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w: read body: %v", resource, id, ErrUpstream, err)
	}
	return body, nil
}
