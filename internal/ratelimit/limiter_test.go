package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLimiterCeilingWithinWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	l := New(3, time.Minute)
	l.now = func() time.Time { return clock }

	tenant := uuid.New()

	// Three requests inside sixty seconds all pass
	r := l.TryConsume(tenant)
	assert.True(t, r.Allowed)
	assert.Equal(t, 2, r.Remaining)
	assert.Equal(t, base.Add(time.Minute), r.ResetAt)

	clock = base.Add(10 * time.Second)
	assert.True(t, l.TryConsume(tenant).Allowed)

	clock = base.Add(20 * time.Second)
	r = l.TryConsume(tenant)
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)

	// The fourth is denied with the original reset instant
	clock = base.Add(30 * time.Second)
	r = l.TryConsume(tenant)
	assert.False(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)
	assert.Equal(t, base.Add(time.Minute), r.ResetAt)

	// A request issued exactly at the boundary starts a fresh window
	clock = base.Add(time.Minute)
	r = l.TryConsume(tenant)
	assert.True(t, r.Allowed)
	assert.Equal(t, 2, r.Remaining)
	assert.Equal(t, clock.Add(time.Minute), r.ResetAt)
}

func TestLimiterTenantsAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	acme := uuid.New()
	globex := uuid.New()

	assert.True(t, l.TryConsume(acme).Allowed)
	assert.False(t, l.TryConsume(acme).Allowed)

	// Another tenant's allowance is untouched
	assert.True(t, l.TryConsume(globex).Allowed)
}

func TestLimiterLazyResetAfterIdle(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	l := New(2, time.Minute)
	l.now = func() time.Time { return clock }

	tenant := uuid.New()
	l.TryConsume(tenant)
	l.TryConsume(tenant)
	assert.False(t, l.TryConsume(tenant).Allowed)

	// No timer fires; the first check after a long idle period restarts
	// the window
	clock = base.Add(time.Hour)
	r := l.TryConsume(tenant)
	assert.True(t, r.Allowed)
	assert.Equal(t, clock.Add(time.Minute), r.ResetAt)
}

func TestLimiterRemainingDoesNotConsume(t *testing.T) {
	l := New(3, time.Minute)
	tenant := uuid.New()

	r := l.Remaining(tenant)
	assert.True(t, r.Allowed)
	assert.Equal(t, 3, r.Remaining)

	l.TryConsume(tenant)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 2, l.Remaining(tenant).Remaining)
	}
}

func TestLimiterConcurrentConsume(t *testing.T) {
	l := New(10, time.Minute)
	tenant := uuid.New()

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryConsume(tenant).Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed)
}
