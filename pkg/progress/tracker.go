// Package progress does byte accounting for long transfers: rate, ETA and
// throttled emission of progress events. It knows nothing about the
// transport or about how events are rendered.
package progress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between two emitted events
const DefaultInterval = 3 * time.Second

// Event is a progress snapshot handed to the emitter
type Event struct {
	Stage    string
	Done     int64
	Total    int64
	Percent  float64
	Rate     float64 // bytes per second since the transfer started
	Elapsed  time.Duration
	ETA      time.Duration
	ETAKnown bool
	Final    bool
}

// State is the raw accounting of one transfer
type State struct {
	Done         int64
	Total        int64
	StartedAt    time.Time
	LastReportAt time.Time
}

// EmitFunc receives throttled events. It runs on the reporting goroutine
// and must not block for long.
type EmitFunc func(Event)

// CheckFunc runs before every report; a non-nil error aborts the transfer
type CheckFunc func() error

// Tracker accounts a single download or upload
type Tracker struct {
	stage   string
	emit    EmitFunc
	check   CheckFunc
	now     func() time.Time
	limiter *rate.Limiter

	mu        sync.Mutex
	state     State
	finalSent bool
}

// Option configures a Tracker
type Option func(*Tracker)

// WithInterval sets the minimum spacing between emitted events
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithCheck installs a hook consulted before every report
func WithCheck(check CheckFunc) Option {
	return func(t *Tracker) { t.check = check }
}

// WithClock replaces time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker starts accounting a transfer now
func NewTracker(stage string, emit EmitFunc, opts ...Option) *Tracker {
	t := &Tracker{
		stage:   stage,
		emit:    emit,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(DefaultInterval), 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.state.StartedAt = t.now()
	return t
}

// Report records progress. An event is emitted when the throttle allows it
// and always once when done reaches a known total. The check hook runs
// first and its error is returned unchanged.
func (t *Tracker) Report(done, total int64) error {
	if t.check != nil {
		if err := t.check(); err != nil {
			return err
		}
	}

	now := t.now()

	t.mu.Lock()
	t.state.Done = done
	t.state.Total = total
	t.state.LastReportAt = now

	final := total > 0 && done >= total
	emit := false
	switch {
	case final:
		emit = !t.finalSent
		t.finalSent = true
	default:
		emit = t.limiter.AllowN(now, 1)
	}

	var ev Event
	if emit {
		ev = t.eventLocked(now, final)
	}
	t.mu.Unlock()

	if emit && t.emit != nil {
		t.emit(ev)
	}
	return nil
}

// Complete emits the final event for transfers whose total was unknown.
// It is a no-op once a final event has been sent.
func (t *Tracker) Complete() {
	now := t.now()

	t.mu.Lock()
	if t.finalSent {
		t.mu.Unlock()
		return
	}
	t.finalSent = true
	if t.state.Total < t.state.Done {
		t.state.Total = t.state.Done
	}
	t.state.LastReportAt = now
	ev := t.eventLocked(now, true)
	t.mu.Unlock()

	if t.emit != nil {
		t.emit(ev)
	}
}

// State returns a copy of the accounting state
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) eventLocked(now time.Time, final bool) Event {
	s := t.state
	elapsed := now.Sub(s.StartedAt)

	ev := Event{
		Stage:   t.stage,
		Done:    s.Done,
		Total:   s.Total,
		Elapsed: elapsed,
		Final:   final,
	}

	if s.Total > 0 {
		ev.Percent = float64(s.Done) * 100 / float64(s.Total)
		if ev.Percent > 100 {
			ev.Percent = 100
		}
	}

	if elapsed > 0 {
		ev.Rate = float64(s.Done) / elapsed.Seconds()
	}

	switch {
	case final:
		ev.ETAKnown = true
	case ev.Rate > 0 && s.Total > 0:
		remaining := float64(s.Total - s.Done)
		if remaining < 0 {
			remaining = 0
		}
		ev.ETA = time.Duration(remaining / ev.Rate * float64(time.Second))
		ev.ETAKnown = true
	}

	return ev
}
