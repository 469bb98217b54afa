// Package ratelimit bounds submission frequency per client identity.
//
// The limiter uses a fixed reset window, not a sliding one: the first call
// for an identity inside a lapsed (or nonexistent) window resets the counter
// to 1 and records a fresh resetAt; later calls inside the window increment
// the counter until the cap is hit. Bursts of up to twice the nominal cap
// clustered around a window boundary are therefore possible. This is a known,
// accepted limitation of the design, not a bug.
//
// State lives in process memory by default and is lost on restart, which
// silently refills everyone's quota. A deployment running multiple processes
// must supply a Store backed by shared storage to keep the cap invariant
// across instances.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the reference window duration.
const DefaultWindow = time.Hour

// Decision is the outcome of a single check-and-increment.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Store holds per-identity window state. Take must be atomic per key:
// two concurrent calls for the same identity must never both observe
// count < cap when only one slot remains.
type Store interface {
	Take(key string, cap int, window time.Duration, now time.Time) Decision
}

// Limiter gates submissions for one endpoint. It owns its cap and window;
// the clock and the store are injected so tests can run on a fake clock with
// fresh state per test.
type Limiter struct {
	store  Store
	cap    int
	window time.Duration
	now    func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock. Test use only.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithStore replaces the in-memory window store, e.g. with one backed by the
// persistence layer when running multiple processes.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// New creates a limiter with the given cap per window. A non-positive cap or
// window falls back to 10 per DefaultWindow.
func New(cap int, window time.Duration, opts ...Option) *Limiter {
	if cap <= 0 {
		cap = 10
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		store:  NewMemoryStore(),
		cap:    cap,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check performs the atomic check-and-increment for identity. When the cap is
// already spent, Allowed is false, Remaining is 0, and ResetIn says how long
// until the window lapses.
func (l *Limiter) Check(identity string) Decision {
	return l.store.Take(identity, l.cap, l.window, l.now())
}

// window is the per-identity counter state.
type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore is the default in-process Store. A single mutex guards the map;
// at the request volumes a feedback widget sees this is cheaper than striped
// locks, though it does serialize all checks.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

// Take implements Store.
func (s *MemoryStore) Take(key string, cap int, window time.Duration, now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return Decision{Allowed: true, Remaining: cap - 1, ResetIn: window}
	}

	if e.count >= cap {
		return Decision{Allowed: false, Remaining: 0, ResetIn: e.resetAt.Sub(now)}
	}

	e.count++
	return Decision{Allowed: true, Remaining: cap - e.count, ResetIn: e.resetAt.Sub(now)}
}

// Len reports how many identities currently hold a window. Used by tests and
// the stats endpoint.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
