package rename

import (
	"sync"
	"time"

	"renamebot/internal/domain/rename"
	"renamebot/internal/metrics"
)

const (
	// DefaultSessionTTL is the idle window of a session
	DefaultSessionTTL = 30 * time.Minute
	// DefaultSweepThreshold triggers a sweep from Create once the table is larger
	DefaultSweepThreshold = 100
)

// Registry holds at most one live session per (chat, user). Operations are
// map-level and never do I/O while holding the lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[rename.Key]*Session

	ttl            time.Duration
	sweepThreshold int
	now            func() time.Time
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithSessionTTL overrides the idle window
func WithSessionTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithSweepThreshold overrides the table size that triggers a sweep
func WithSweepThreshold(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.sweepThreshold = n
		}
	}
}

// WithRegistryClock replaces time.Now (tests)
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:       make(map[rename.Key]*Session),
		ttl:            DefaultSessionTTL,
		sweepThreshold: DefaultSweepThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new session for key, replacing any existing one. The
// replaced session is marked expired so its buttons and replies stop working.
func (r *Registry) Create(key rename.Key, file rename.FileRef, messageID int) *Session {
	now := r.now()
	s := newSession(key, file, messageID, now, r.ttl)

	r.mu.Lock()
	prev, replaced := r.sessions[key]
	r.sessions[key] = s
	sweep := len(r.sessions) > r.sweepThreshold
	r.mu.Unlock()

	if replaced {
		prev.markExpired()
		metrics.RenameSessions.WithLabelValues("replaced").Inc()
	}
	metrics.RenameSessions.WithLabelValues("created").Inc()

	if sweep {
		r.Sweep()
	}
	return s
}

// Get returns the live session for key. Expired entries are evicted.
func (r *Registry) Get(key rename.Key) (*Session, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return nil, rename.ErrSessionNotFound
	}
	if s.expired(now) {
		delete(r.sessions, key)
		s.markExpired()
		metrics.RenameSessions.WithLabelValues("expired").Inc()
		return nil, rename.ErrSessionNotFound
	}
	return s, nil
}

// Sweep drops every session past its idle window and returns how many
// were removed. Sessions that are transferring are kept alive by progress
// reports and are only swept when they stall for a whole TTL.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	var stale []*Session
	for key, s := range r.sessions {
		if s.expired(now) {
			delete(r.sessions, key)
			stale = append(stale, s)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.markExpired()
	}
	if n := len(stale); n > 0 {
		metrics.RenameSessions.WithLabelValues("expired").Add(float64(n))
	}
	return len(stale)
}

// Delete removes the session for key, if any
func (r *Registry) Delete(key rename.Key) {
	r.mu.Lock()
	delete(r.sessions, key)
	r.mu.Unlock()
}

// Release removes s only if it is still the registered session for its key
func (r *Registry) Release(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.Key]; ok && cur == s {
		delete(r.sessions, s.Key)
		return true
	}
	return false
}

// Len returns the number of registered sessions, including ones not yet swept
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CountByState reports registered sessions by state
func (r *Registry) CountByState() map[rename.State]int {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	counts := make(map[rename.State]int)
	for _, s := range list {
		counts[s.State()]++
	}
	return counts
}

// TTL returns the configured idle window
func (r *Registry) TTL() time.Duration {
	return r.ttl
}
