package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/displacement-playback/internal/backend"
	"github.com/signalsfoundry/displacement-playback/internal/logging"
	"github.com/signalsfoundry/displacement-playback/timectrl"
)

// Manager owns the open sessions of a server process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     deps
	newID    func() string
}

// Option customises Manager construction.
type Option func(*Manager)

// WithMetricsRecorder attaches a recorder for session gauges and counters.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(mgr *Manager) {
		if m != nil {
			mgr.deps.metrics = m
		}
	}
}

// WithTickInterval sets the auto-advance interval of new sessions.
func WithTickInterval(d time.Duration) Option {
	return func(mgr *Manager) {
		if d > 0 {
			mgr.deps.interval = d
		}
	}
}

// WithTicker replaces the wall-clock ticker of new sessions.
func WithTicker(fn timectrl.TickerFunc) Option {
	return func(mgr *Manager) {
		if fn != nil {
			mgr.deps.newTicker = fn
		}
	}
}

// NewManager returns an empty Manager loading documents through fetcher.
func NewManager(fetcher backend.Fetcher, log logging.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		deps: deps{
			fetcher:   fetcher,
			log:       log,
			metrics:   noopMetrics{},
			interval:  timectrl.DefaultInterval,
			newTicker: timectrl.NewWallTicker,
		},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.deps.onStatus = m.recordCounts
	m.recordCounts()
	return m
}

// Open creates a session for resultID and loads it. A load failure leaves
// the session registered in StatusFailed so it can be retried; the returned
// error is only non-nil when no session was created.
func (m *Manager) Open(ctx context.Context, resultID string) (*Session, error) {
	if resultID == "" {
		return nil, ErrInvalidResultID
	}
	s := newSession(m.newID(), resultID, m.deps)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.recordCounts()

	logging.FromContext(ctx, m.deps.log).Info(ctx, "session opened",
		logging.String("session_id", s.id),
		logging.String("result_id", resultID),
	)
	_ = s.load(ctx)
	return s, nil
}

// Get returns the open session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// Close closes and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}
	s.Close()
	return nil
}

// CloseAll closes every session; used on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.recordCounts()
}

// IDs returns the open session IDs in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) recordCounts() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var loading, ready, failed int
	for _, s := range sessions {
		switch s.Status() {
		case StatusLoading:
			loading++
		case StatusReady:
			ready++
		case StatusFailed:
			failed++
		}
	}
	m.deps.metrics.SetSessionCounts(loading, ready, failed)
}
