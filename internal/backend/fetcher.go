// Package backend fetches simulation results and configurations from the
// upstream REST service that persists them.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/displacement-playback/model"
)

var (
	// ErrNotFound is returned when the backend has no document for an ID.
	ErrNotFound = errors.New("document not found")
	// ErrUpstream covers transport failures, unexpected statuses and
	// undecodable bodies.
	ErrUpstream = errors.New("upstream backend failure")
)

// Resource names, used for URL paths, cache keys and metric labels.
const (
	ResourceResult        = "result"
	ResourceConfiguration = "configuration"
)

// Fetcher retrieves the two documents a playback session needs.
type Fetcher interface {
	FetchResult(ctx context.Context, id string) (*model.Result, error)
	FetchConfiguration(ctx context.Context, id string) (*model.Configuration, error)
}

// MetricsRecorder receives fetch and cache observations.
type MetricsRecorder interface {
	ObserveFetch(resource, outcome string, d time.Duration)
	ObserveCache(resource string, hit bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFetch(string, string, time.Duration) {}
func (noopMetrics) ObserveCache(string, bool)                  {}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
