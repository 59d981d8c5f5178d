// Package session keeps the in-progress conversational flow of each user.
// Sessions live only in memory; a restart drops them.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pacifica-bot/internal/flow"
)

type entry struct {
	mu       sync.Mutex
	session  *flow.Session
	lastSeen time.Time
	// removed is set once the entry has left the map. A holder of a removed
	// entry must look it up again.
	removed bool
}

// Registry maps user IDs to their active session. Updates for one user are
// serialized; different users never wait on each other beyond a map lookup.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]*entry
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry whose sessions expire after ttl of inactivity.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[int64]*entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) acquire(userID int64) *entry {
	for {
		r.mu.Lock()
		e, ok := r.entries[userID]
		if !ok {
			e = &entry{}
			r.entries[userID] = e
		}
		r.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// release unlocks e, dropping it from the map when it holds no session.
// Callers hold e.mu.
func (r *Registry) release(userID int64, e *entry) {
	if e.session == nil {
		r.mu.Lock()
		if r.entries[userID] == e {
			delete(r.entries, userID)
		}
		r.mu.Unlock()
		e.removed = true
	}
	e.mu.Unlock()
}

func (r *Registry) expired(e *entry) bool {
	return e.session != nil && r.now().Sub(e.lastSeen) > r.ttl
}

// Update runs fn with the user's current session (nil when none or expired)
// and stores what it returns. Returning nil clears the session. fn runs
// under the user's lock and must not block.
func (r *Registry) Update(userID int64, fn func(cur *flow.Session) *flow.Session) {
	e := r.acquire(userID)
	defer r.release(userID, e)

	if r.expired(e) {
		r.logger.Debug("Session expired", "user_id", userID, "flow", e.session.Kind)
		e.session = nil
	}

	var cur *flow.Session
	if e.session != nil {
		c := *e.session
		cur = &c
	}

	next := fn(cur)
	if next == nil || next.Terminal() {
		e.session = nil
		return
	}
	s := *next
	e.session = &s
	e.lastSeen = r.now()
}

// Get returns a copy of the user's active session.
func (r *Registry) Get(userID int64) (flow.Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	r.mu.Unlock()
	if !ok {
		return flow.Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.session == nil || r.expired(e) {
		return flow.Session{}, false
	}
	return *e.session, true
}

// Clear discards the user's session. It reports whether one was active.
func (r *Registry) Clear(userID int64) bool {
	var had bool
	r.Update(userID, func(cur *flow.Session) *flow.Session {
		had = cur != nil
		return nil
	})
	return had
}

// Len returns the number of tracked users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
