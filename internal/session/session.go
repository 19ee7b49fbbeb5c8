// Package session holds result-viewing sessions: one loaded result, its
// configuration, the aligned validation data and a playback controller.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/displacement-playback/core"
	"github.com/signalsfoundry/displacement-playback/internal/backend"
	"github.com/signalsfoundry/displacement-playback/internal/logging"
	"github.com/signalsfoundry/displacement-playback/internal/observability"
	"github.com/signalsfoundry/displacement-playback/model"
	"github.com/signalsfoundry/displacement-playback/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/signalsfoundry/displacement-playback/internal/session"

var (
	// ErrSessionNotFound indicates no open session has the requested ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotReady indicates a playback operation on a session that is still
	// loading or failed to load.
	ErrNotReady = errors.New("session not ready")
	// ErrNotFailed indicates Retry on a session that has not failed.
	ErrNotFailed = errors.New("session has not failed")
	// ErrClosed indicates an operation on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrInvalidResultID indicates an empty result identifier.
	ErrInvalidResultID = errors.New("invalid result id")
)

// Status is the lifecycle state of a session.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MetricsRecorder receives session-level observations.
type MetricsRecorder interface {
	SetSessionCounts(loading, ready, failed int)
	IncFramesResolved()
	IncPlaybackTicks()
	AddDataWarnings(kind string, n int)
}

type noopMetrics struct{}

func (noopMetrics) SetSessionCounts(int, int, int) {}
func (noopMetrics) IncFramesResolved()             {}
func (noopMetrics) IncPlaybackTicks()              {}
func (noopMetrics) AddDataWarnings(string, int)    {}

// deps are shared by every session of a Manager.
type deps struct {
	fetcher   backend.Fetcher
	log       logging.Logger
	metrics   MetricsRecorder
	interval  time.Duration
	newTicker timectrl.TickerFunc
	onStatus  func()
}

// Session is one viewer of one simulation result. All methods are safe for
// concurrent use.
type Session struct {
	id string
	deps

	mu        sync.Mutex
	resultID  string
	status    Status
	loadErr   error
	gen       uint64
	result    *model.Result
	cfg       *model.Configuration
	alignment core.Alignment
	warnings  []core.DataWarning
	playback  *timectrl.Playback
	detach    func()

	subs    map[int]func(View)
	nextSub int
	done    chan struct{}
}

func newSession(id, resultID string, d deps) *Session {
	return &Session{
		id:       id,
		deps:     d,
		resultID: resultID,
		status:   StatusLoading,
		subs:     make(map[int]func(View)),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Warnings returns the data warnings raised by the last successful load.
func (s *Session) Warnings() []core.DataWarning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.DataWarning(nil), s.warnings...)
}

// Subscribe registers fn to receive a fresh View after every status or
// playback change. fn may run on the playback ticker goroutine.
func (s *Session) Subscribe(fn func(View)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// load fetches the result and then its configuration, and installs them
// unless the session moved on (switched, retried or closed) meanwhile.
func (s *Session) load(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	gen := s.gen
	resultID := s.resultID
	s.mu.Unlock()

	ctx, span := observability.Tracer(tracerName).Start(ctx, "session.load")
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("result.id", resultID),
	)
	defer span.End()
	log := logging.FromContext(ctx, s.log).With(
		logging.String("session_id", s.id),
		logging.String("result_id", resultID),
	)

	result, cfg, err := s.fetch(ctx, resultID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "session load failed", logging.Err(err))
		if s.fail(gen, err) {
			s.changed()
		}
		return err
	}

	warnings := core.CheckInputs(cfg, result)
	start, startErr := timectrl.ParseDate(cfg.SimPeriod.Date)
	if startErr != nil {
		warnings = append(warnings, core.DataWarning{
			Kind:    core.WarningStartDate,
			Subject: cfg.ID,
			Detail:  fmt.Sprintf("simulation start %q is not a calendar date; validation marks are offset from year 1", cfg.SimPeriod.Date),
		})
	}
	alignment := core.AlignValidation(cfg.Validation, start)
	warnings = append(warnings, alignment.Warnings...)

	playback := timectrl.NewPlayback(len(result.Data),
		timectrl.WithInterval(s.interval),
		timectrl.WithTicker(s.newTicker),
	)

	s.mu.Lock()
	if s.status == StatusClosed || s.gen != gen {
		s.mu.Unlock()
		playback.Close()
		if s.Status() == StatusClosed {
			return ErrClosed
		}
		return nil
	}
	s.result = result
	s.cfg = cfg
	s.alignment = alignment
	s.warnings = warnings
	s.playback = playback
	s.detach = playback.Subscribe(s.onPosition)
	s.status = StatusReady
	s.loadErr = nil
	s.mu.Unlock()

	counts := make(map[core.WarningKind]int)
	for _, w := range warnings {
		counts[w.Kind]++
		log.Debug(ctx, "data warning", logging.String("kind", string(w.Kind)), logging.String("detail", w.String()))
	}
	for kind, n := range counts {
		s.metrics.AddDataWarnings(string(kind), n)
	}
	span.SetAttributes(
		attribute.Int("result.rows", len(result.Data)),
		attribute.Int("configuration.locations", len(cfg.Locations)),
		attribute.Int("data.warnings", len(warnings)),
	)
	log.Info(ctx, "session ready",
		logging.String("configuration_id", cfg.ID),
		logging.Int("rows", len(result.Data)),
		logging.Int("locations", len(cfg.Locations)),
		logging.Int("validation_marks", len(alignment.Marks)),
		logging.Int("warnings", len(warnings)),
		logging.Duration("tick", playback.Interval()),
	)
	s.changed()
	return nil
}

// fetch retrieves the result first; the configuration ID is only known from
// the result.
func (s *Session) fetch(ctx context.Context, resultID string) (*model.Result, *model.Configuration, error) {
	result, err := s.fetcher.FetchResult(ctx, resultID)
	if err != nil {
		return nil, nil, fmt.Errorf("load result %s: %w", resultID, err)
	}
	cfg, err := s.fetcher.FetchConfiguration(ctx, result.SimulationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration %s for result %s: %w", result.SimulationID, resultID, err)
	}
	return result, cfg, nil
}

func (s *Session) fail(gen uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed || s.gen != gen {
		return false
	}
	s.status = StatusFailed
	s.loadErr = err
	return true
}

// Retry reloads a Failed session.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case StatusClosed:
		s.mu.Unlock()
		return ErrClosed
	case StatusFailed:
	default:
		s.mu.Unlock()
		return fmt.Errorf("retry session %s in status %s: %w", s.id, s.status, ErrNotFailed)
	}
	s.status = StatusLoading
	s.loadErr = nil
	s.gen++
	s.mu.Unlock()

	s.changed()
	return s.load(ctx)
}

// SwitchResult replaces the viewed result. The current playback stops
// immediately and the session reloads for resultID.
func (s *Session) SwitchResult(ctx context.Context, resultID string) error {
	if resultID == "" {
		return ErrInvalidResultID
	}
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, detach := s.resetLocked()
	s.resultID = resultID
	s.status = StatusLoading
	s.gen++
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	if old != nil {
		old.Close()
	}
	s.changed()
	return s.load(ctx)
}

// Close stops playback and detaches every listener. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	old, detach := s.resetLocked()
	s.status = StatusClosed
	s.gen++
	s.subs = make(map[int]func(View))
	close(s.done)
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	if old != nil {
		old.Close()
	}
	if s.onStatus != nil {
		s.onStatus()
	}
}

func (s *Session) resetLocked() (*timectrl.Playback, func()) {
	old, detach := s.playback, s.detach
	s.playback = nil
	s.detach = nil
	s.result = nil
	s.cfg = nil
	s.alignment = core.Alignment{}
	s.warnings = nil
	s.loadErr = nil
	return old, detach
}

// Play starts auto-advance; see timectrl.Playback.Play.
func (s *Session) Play() (View, error) {
	p, err := s.readyPlayback()
	if err != nil {
		return View{}, err
	}
	p.Play()
	return s.View(), nil
}

// Pause stops auto-advance and keeps the current day.
func (s *Session) Pause() (View, error) {
	p, err := s.readyPlayback()
	if err != nil {
		return View{}, err
	}
	p.Pause()
	return s.View(), nil
}

// Scrub moves to day index i, clamped into the result's rows.
func (s *Session) Scrub(i int) (View, error) {
	p, err := s.readyPlayback()
	if err != nil {
		return View{}, err
	}
	p.Scrub(i)
	return s.View(), nil
}

// readyPlayback returns the controller without holding the session lock;
// controller calls notify listeners synchronously.
func (s *Session) readyPlayback() (*timectrl.Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusReady:
		return s.playback, nil
	case StatusClosed:
		return nil, ErrClosed
	default:
		return nil, fmt.Errorf("session %s is %s: %w", s.id, s.status, ErrNotReady)
	}
}

func (s *Session) onPosition(pos timectrl.Position) {
	if pos.Ticked {
		s.metrics.IncPlaybackTicks()
	}
	s.publish()
}

// changed notifies the manager and listeners of a status change.
func (s *Session) changed() {
	if s.onStatus != nil {
		s.onStatus()
	}
	s.publish()
}

func (s *Session) publish() {
	s.mu.Lock()
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	subs := make([]func(View), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	view := s.View()
	for _, fn := range subs {
		fn(view)
	}
}
