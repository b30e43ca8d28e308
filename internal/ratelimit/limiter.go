// Package ratelimit bounds the frequency of expensive per-tenant
// operations with a fixed-window counter. Denial is a normal outcome the
// caller handles by degrading to a cheaper path, never an error.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// window is one tenant's counter behind its own mutex. Expired windows
// are restarted by the next request that checks them; there is no
// timer-driven reset.
type window struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// Limiter is a per-tenant fixed-window rate limiter. The outer mutex
// only guards the tenant map; counting is serialized per tenant.
type Limiter struct {
	mu      sync.RWMutex
	windows map[uuid.UUID]*window

	ceiling int
	length  time.Duration
	now     func() time.Time
}

// New creates a limiter allowing ceiling calls per tenant per window.
func New(ceiling int, length time.Duration) *Limiter {
	return &Limiter{
		windows: make(map[uuid.UUID]*window),
		ceiling: ceiling,
		length:  length,
		now:     time.Now,
	}
}

// Result reports the outcome of a consume attempt
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func (l *Limiter) getOrCreateWindow(tenantID uuid.UUID) *window {
	l.mu.RLock()
	w, ok := l.windows[tenantID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[tenantID]; !ok {
		w = &window{}
		l.windows[tenantID] = w
	}
	return w
}

// TryConsume takes one unit of the tenant's allowance. A missing or
// expired window restarts at count 1 atomically with this check.
func (l *Limiter) TryConsume(tenantID uuid.UUID) Result {
	w := l.getOrCreateWindow(tenantID)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()

	if w.resetAt.IsZero() || !now.Before(w.resetAt) {
		w.count = 1
		w.resetAt = now.Add(l.length)
		return Result{Allowed: true, Remaining: l.ceiling - 1, ResetAt: w.resetAt}
	}

	if w.count >= l.ceiling {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return Result{Allowed: true, Remaining: l.ceiling - w.count, ResetAt: w.resetAt}
}

// Remaining reports the tenant's allowance without consuming it.
func (l *Limiter) Remaining(tenantID uuid.UUID) Result {
	w := l.getOrCreateWindow(tenantID)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()

	if w.resetAt.IsZero() || !now.Before(w.resetAt) {
		return Result{Allowed: true, Remaining: l.ceiling, ResetAt: now.Add(l.length)}
	}

	return Result{
		Allowed:   w.count < l.ceiling,
		Remaining: l.ceiling - w.count,
		ResetAt:   w.resetAt,
	}
}
