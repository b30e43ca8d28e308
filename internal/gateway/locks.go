package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock errors
var (
	// ErrNotLockOwner is returned when a connection tries to release a
	// lock held by someone else. Silently releasing would break the
	// mutual-exclusion invariant, so this is always surfaced.
	ErrNotLockOwner = errors.New("not lock owner")
)

// Lock represents exclusive advisory ownership of one editable entity
// within a tenant. Locks are cooperative: the entity can still be
// written through the ordinary CRUD surface by a non-participating
// client, and that bound is intentional.
type Lock struct {
	EntityID   string    `json:"entityId"`
	ConnID     string    `json:"connId"`
	UserID     uuid.UUID `json:"userId"`
	HolderName string    `json:"holderName"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// AcquireResult is the outcome of an acquire attempt. Contention is a
// normal result, not an error.
type AcquireResult struct {
	Acquired   bool
	HolderName string
	HolderID   uuid.UUID
}

// ReleasedLock identifies a lock freed by a disconnect sweep
type ReleasedLock struct {
	TenantID uuid.UUID
	EntityID string
}

type lockTable struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// LockManager enforces at most one concurrent editor per entity within a
// tenant. Tables are per tenant, each behind its own mutex.
type LockManager struct {
	mu     sync.RWMutex
	tables map[uuid.UUID]*lockTable
	now    func() time.Time
}

// NewLockManager creates a lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		tables: make(map[uuid.UUID]*lockTable),
		now:    time.Now,
	}
}

func (lm *LockManager) getOrCreateTable(tenantID uuid.UUID) *lockTable {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	t, ok := lm.tables[tenantID]
	if !ok {
		t = &lockTable{locks: make(map[string]*Lock)}
		lm.tables[tenantID] = t
	}
	return t
}

// Acquire attempts to take the (tenant, entity) lock for the connection.
// Re-acquiring a lock already held by the same connection succeeds.
func (lm *LockManager) Acquire(tenantID uuid.UUID, entityID, connID string, userID uuid.UUID, displayName string) AcquireResult {
	t := lm.getOrCreateTable(tenantID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if held, ok := t.locks[entityID]; ok {
		if held.ConnID == connID {
			return AcquireResult{Acquired: true}
		}
		return AcquireResult{
			Acquired:   false,
			HolderName: held.HolderName,
			HolderID:   held.UserID,
		}
	}

	t.locks[entityID] = &Lock{
		EntityID:   entityID,
		ConnID:     connID,
		UserID:     userID,
		HolderName: displayName,
		AcquiredAt: lm.now(),
	}
	return AcquireResult{Acquired: true}
}

// Release frees the (tenant, entity) lock if the connection owns it.
// Releasing a lock that does not exist is a no-op; releasing someone
// else's lock returns ErrNotLockOwner.
func (lm *LockManager) Release(tenantID uuid.UUID, entityID, connID string) error {
	lm.mu.RLock()
	t := lm.tables[tenantID]
	lm.mu.RUnlock()
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	held, ok := t.locks[entityID]
	if !ok {
		return nil
	}
	if held.ConnID != connID {
		return ErrNotLockOwner
	}

	delete(t.locks, entityID)
	return nil
}

// ReleaseAllFor frees every lock owned by the connection across all
// tenants and returns the freed entities so their availability can be
// broadcast. Called unconditionally on disconnect.
func (lm *LockManager) ReleaseAllFor(connID string) []ReleasedLock {
	lm.mu.RLock()
	tables := make(map[uuid.UUID]*lockTable, len(lm.tables))
	for id, t := range lm.tables {
		tables[id] = t
	}
	lm.mu.RUnlock()

	var released []ReleasedLock
	for tenantID, t := range tables {
		t.mu.Lock()
		for entityID, held := range t.locks {
			if held.ConnID == connID {
				delete(t.locks, entityID)
				released = append(released, ReleasedLock{TenantID: tenantID, EntityID: entityID})
			}
		}
		t.mu.Unlock()
	}
	return released
}

// Holder reports the current lock holder for introspection.
func (lm *LockManager) Holder(tenantID uuid.UUID, entityID string) (*Lock, bool) {
	lm.mu.RLock()
	t := lm.tables[tenantID]
	lm.mu.RUnlock()
	if t == nil {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	held, ok := t.locks[entityID]
	if !ok {
		return nil, false
	}
	cp := *held
	return &cp, true
}
