package gateway

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAcquireAndDeny(t *testing.T) {
	lm := NewLockManager()
	tenant := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	result := lm.Acquire(tenant, "item-1", "conn-a", alice, "Alice")
	assert.True(t, result.Acquired)

	result = lm.Acquire(tenant, "item-1", "conn-b", bob, "Bob")
	assert.False(t, result.Acquired)
	assert.Equal(t, "Alice", result.HolderName)
	assert.Equal(t, alice, result.HolderID)

	// Same entity id under a different tenant is an unrelated lock
	result = lm.Acquire(uuid.New(), "item-1", "conn-b", bob, "Bob")
	assert.True(t, result.Acquired)
}

func TestLockReacquireIsIdempotent(t *testing.T) {
	lm := NewLockManager()
	tenant := uuid.New()
	alice := uuid.New()

	assert.True(t, lm.Acquire(tenant, "item-1", "conn-a", alice, "Alice").Acquired)
	assert.True(t, lm.Acquire(tenant, "item-1", "conn-a", alice, "Alice").Acquired)
}

func TestLockMutualExclusionConcurrent(t *testing.T) {
	lm := NewLockManager()
	tenant := uuid.New()

	const attempts = 64

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			connID := uuid.New().String()
			if lm.Acquire(tenant, "contested", connID, uuid.New(), "user").Acquired {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestLockReleaseOwnership(t *testing.T) {
	lm := NewLockManager()
	tenant := uuid.New()

	lm.Acquire(tenant, "item-1", "conn-a", uuid.New(), "Alice")

	// Releasing someone else's lock is a caller error
	err := lm.Release(tenant, "item-1", "conn-b")
	require.ErrorIs(t, err, ErrNotLockOwner)

	// The lock survives the failed release
	_, held := lm.Holder(tenant, "item-1")
	assert.True(t, held)

	require.NoError(t, lm.Release(tenant, "item-1", "conn-a"))
	_, held = lm.Holder(tenant, "item-1")
	assert.False(t, held)

	// Releasing a lock that no longer exists is a no-op
	require.NoError(t, lm.Release(tenant, "item-1", "conn-a"))
}

func TestLockReleaseAllForConnection(t *testing.T) {
	lm := NewLockManager()
	tenantA := uuid.New()
	tenantB := uuid.New()
	alice := uuid.New()

	lm.Acquire(tenantA, "item-1", "conn-a", alice, "Alice")
	lm.Acquire(tenantA, "item-2", "conn-a", alice, "Alice")
	lm.Acquire(tenantB, "item-3", "conn-a", alice, "Alice")
	lm.Acquire(tenantA, "item-4", "conn-b", uuid.New(), "Bob")

	released := lm.ReleaseAllFor("conn-a")
	assert.Len(t, released, 3)

	// Every freed entity is immediately acquirable by another connection
	for _, rel := range released {
		result := lm.Acquire(rel.TenantID, rel.EntityID, "conn-c", uuid.New(), "Carol")
		assert.True(t, result.Acquired, "entity %s should be acquirable", rel.EntityID)
	}

	// Bob's lock is untouched
	holder, held := lm.Holder(tenantA, "item-4")
	require.True(t, held)
	assert.Equal(t, "conn-b", holder.ConnID)
}
