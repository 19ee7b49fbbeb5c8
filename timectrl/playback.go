package timectrl

import (
	"sync"
	"time"
)

// DefaultInterval is the wall-clock time between auto-advanced frames.
const DefaultInterval = 100 * time.Millisecond

// State describes whether a Playback is advancing on its own.
type State int

const (
	// Paused is the initial state; the index only moves via Scrub.
	Paused State = iota
	// Playing advances the index once per tick until the last row.
	Playing
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Ticker is the subset of time.Ticker used by Playback. Tests supply a
// manual implementation so ticks are deterministic.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc constructs a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// NewWallTicker returns a Ticker backed by time.NewTicker.
func NewWallTicker(d time.Duration) Ticker {
	return wallTicker{t: time.NewTicker(d)}
}

// Position is a snapshot of playback state handed to callers and listeners.
// Seq increases with every change so consumers can drop stale snapshots
// delivered out of order.
type Position struct {
	Index   int
	Length  int
	Playing bool
	Seq     uint64
	// Ticked is set on notifications caused by auto-advance.
	Ticked bool
}

// Last returns the highest valid index, or 0 for an empty timeline.
func (p Position) Last() int {
	if p.Length == 0 {
		return 0
	}
	return p.Length - 1
}

// Option customises Playback construction.
type Option func(*Playback)

// WithInterval overrides DefaultInterval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(p *Playback) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTicker replaces the wall-clock ticker factory.
func WithTicker(fn TickerFunc) Option {
	return func(p *Playback) {
		if fn != nil {
			p.newTicker = fn
		}
	}
}

// Playback drives a frame index over a fixed-length timeline of simulated
// days. It owns the index and the single active ticker; tick handling reads
// the current state through the controller, and a tick belonging to a run
// that was paused or closed is discarded.
type Playback struct {
	mu sync.Mutex

	length    int
	index     int
	state     State
	interval  time.Duration
	newTicker TickerFunc

	// run identifies the active ticker goroutine; it changes on every Play.
	run  uint64
	stop chan struct{}
	seq  uint64

	closed  bool
	subs    map[int]func(Position)
	nextSub int
}

// NewPlayback constructs a paused controller at index 0 over length rows.
func NewPlayback(length int, opts ...Option) *Playback {
	if length < 0 {
		length = 0
	}
	p := &Playback{
		length:    length,
		interval:  DefaultInterval,
		newTicker: NewWallTicker,
		subs:      make(map[int]func(Position)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Position returns the current playback snapshot.
func (p *Playback) Position() Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// State returns Paused or Playing.
func (p *Playback) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Interval returns the configured tick interval.
func (p *Playback) Interval() time.Duration {
	return p.interval
}

// Subscribe registers fn to receive a Position after every change. fn runs
// outside the controller lock, possibly on the ticker goroutine.
func (p *Playback) Subscribe(fn func(Position)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Scrub moves the index to i clamped into [0, length-1]. The play state is
// left unchanged.
func (p *Playback) Scrub(i int) Position {
	p.mu.Lock()
	if p.closed {
		pos := p.positionLocked()
		p.mu.Unlock()
		return pos
	}
	p.index = p.clampLocked(i)
	pos, subs := p.changedLocked(false)
	p.mu.Unlock()

	notify(subs, pos)
	return pos
}

// Play starts auto-advance from Paused. At the last row the index first
// rewinds to 0. A timeline with fewer than two rows cannot advance, so Play
// only rewinds it. Play reports whether the controller entered Playing; a
// call while already Playing is a no-op.
func (p *Playback) Play() bool {
	p.mu.Lock()
	if p.closed || p.state == Playing || p.length == 0 {
		p.mu.Unlock()
		return false
	}
	if p.index >= p.length-1 {
		p.index = 0
	}
	if p.length < 2 {
		pos, subs := p.changedLocked(false)
		p.mu.Unlock()
		notify(subs, pos)
		return false
	}

	p.state = Playing
	p.run++
	run := p.run
	stop := make(chan struct{})
	p.stop = stop
	ticker := p.newTicker(p.interval)
	pos, subs := p.changedLocked(false)
	p.mu.Unlock()

	go p.loop(run, ticker, stop)
	notify(subs, pos)
	return true
}

// Pause stops auto-advance and keeps the current index. It reports whether
// the controller left Playing; a call while Paused is a no-op.
func (p *Playback) Pause() bool {
	p.mu.Lock()
	if p.state != Playing {
		p.mu.Unlock()
		return false
	}
	p.haltLocked()
	pos, subs := p.changedLocked(false)
	p.mu.Unlock()

	notify(subs, pos)
	return true
}

// Close stops any active ticker and detaches all listeners. A closed
// controller ignores further Play, Scrub and ticks.
func (p *Playback) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.haltLocked()
	p.closed = true
	p.subs = make(map[int]func(Position))
}

func (p *Playback) loop(run uint64, t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if !p.advance(run) {
				return
			}
		}
	}
}

// advance applies one tick for run and reports whether the run continues.
func (p *Playback) advance(run uint64) bool {
	p.mu.Lock()
	if p.closed || p.state != Playing || p.run != run {
		p.mu.Unlock()
		return false
	}
	last := p.length - 1
	p.index++
	if p.index >= last {
		p.index = last
		p.haltLocked()
	}
	playing := p.state == Playing
	pos, subs := p.changedLocked(true)
	p.mu.Unlock()

	notify(subs, pos)
	return playing
}

func (p *Playback) haltLocked() {
	p.state = Paused
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *Playback) clampLocked(i int) int {
	if p.length == 0 || i < 0 {
		return 0
	}
	if i > p.length-1 {
		return p.length - 1
	}
	return i
}

func (p *Playback) positionLocked() Position {
	return Position{
		Index:   p.index,
		Length:  p.length,
		Playing: p.state == Playing,
		Seq:     p.seq,
	}
}

func (p *Playback) changedLocked(ticked bool) (Position, []func(Position)) {
	p.seq++
	subs := make([]func(Position), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	pos := p.positionLocked()
	pos.Ticked = ticked
	return pos, subs
}

func notify(subs []func(Position), pos Position) {
	for _, fn := range subs {
		fn(pos)
	}
}
