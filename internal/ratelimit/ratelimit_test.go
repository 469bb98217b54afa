package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock steps time manually so window expiry is deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiterCapWithinWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(3, time.Hour, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		d := l.Check("client-a")
		assert.True(t, d.Allowed, "call %d should be admitted", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d := l.Check("client-a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.ResetIn, time.Duration(0))
}

func TestLimiterWindowReset(t *testing.T) {
	clock := newFakeClock()
	l := New(2, time.Hour, WithClock(clock.Now))

	require.True(t, l.Check("client-a").Allowed)
	require.True(t, l.Check("client-a").Allowed)
	require.False(t, l.Check("client-a").Allowed)

	// Once the window lapses the counter starts over at 1.
	clock.Advance(time.Hour + time.Minute)
	d := l.Check("client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestLimiterIdentitiesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := New(1, time.Hour, WithClock(clock.Now))

	assert.True(t, l.Check("client-a").Allowed)
	assert.False(t, l.Check("client-a").Allowed)
	assert.True(t, l.Check("client-b").Allowed)
}

func TestLimiterResetInCountsDown(t *testing.T) {
	clock := newFakeClock()
	l := New(1, time.Hour, WithClock(clock.Now))

	first := l.Check("client-a")
	assert.Equal(t, time.Hour, first.ResetIn)

	clock.Advance(20 * time.Minute)
	blocked := l.Check("client-a")
	assert.False(t, blocked.Allowed)
	assert.Equal(t, 40*time.Minute, blocked.ResetIn)
}

// The cap invariant must hold when concurrent requests for the same identity
// race: check-and-increment is a single atomic step, so exactly cap calls may
// win no matter the interleaving.
func TestLimiterConcurrentSameIdentity(t *testing.T) {
	const cap = 25
	const attempts = 200

	l := New(cap, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared").Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, cap, admitted)
}

func TestMemoryStoreLen(t *testing.T) {
	store := NewMemoryStore()
	l := New(5, time.Hour, WithStore(store))

	l.Check("a")
	l.Check("b")
	l.Check("a")
	assert.Equal(t, 2, store.Len())
}

func TestNewDefaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, 10, l.cap)
	assert.Equal(t, DefaultWindow, l.window)
}
