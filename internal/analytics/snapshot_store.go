package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/talent-forge/collab-server/internal/models"
)

// SnapshotStore holds the last computed metrics snapshot per tenant.
// Put is monotonic: a snapshot must never replace a newer one, so
// concurrent refills cannot regress the cache regardless of arrival
// order. The in-memory store serves a single process; the Redis store
// lets multiple gateway processes share one cache.
type SnapshotStore interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.MetricsSnapshot, error)
	Put(ctx context.Context, snapshot *models.MetricsSnapshot) error
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

// ErrNoSnapshot is returned when no snapshot is stored for the tenant.
var ErrNoSnapshot = errors.New("no snapshot")

// ========== In-memory store ==========

// MemorySnapshotStore keeps snapshots in process memory
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*models.MetricsSnapshot
}

// NewMemorySnapshotStore creates an in-memory snapshot store
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		snapshots: make(map[uuid.UUID]*models.MetricsSnapshot),
	}
}

// Get returns the stored snapshot for the tenant
func (s *MemorySnapshotStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.MetricsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[tenantID]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return snapshot, nil
}

// Put stores the snapshot unless a newer one is already present
func (s *MemorySnapshotStore) Put(ctx context.Context, snapshot *models.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.snapshots[snapshot.TenantID]; ok && cur.ComputedAt.After(snapshot.ComputedAt) {
		return nil
	}
	s.snapshots[snapshot.TenantID] = snapshot
	return nil
}

// Delete drops the tenant's snapshot
func (s *MemorySnapshotStore) Delete(ctx context.Context, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, tenantID)
	return nil
}

// ========== Redis store ==========

// RedisSnapshotStore shares snapshots between gateway processes.
// Monotonicity is enforced with a WATCH transaction on the key.
type RedisSnapshotStore struct {
	client *redis.Client
	// keyTTL bounds how long an abandoned snapshot lingers; it is a
	// safety net well above the cache TTL, not the freshness bound.
	keyTTL time.Duration
}

// NewRedisSnapshotStore creates a Redis-backed snapshot store
func NewRedisSnapshotStore(client *redis.Client, keyTTL time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, keyTTL: keyTTL}
}

func snapshotKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("collab:metrics:%s", tenantID)
}

// Get returns the stored snapshot for the tenant
func (s *RedisSnapshotStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.MetricsSnapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var snapshot models.MetricsSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// Put stores the snapshot unless a newer one is already present
func (s *RedisSnapshotStore) Put(ctx context.Context, snapshot *models.MetricsSnapshot) error {
	key := snapshotKey(snapshot.TenantID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var cur models.MetricsSnapshot
			if err := json.Unmarshal(data, &cur); err == nil && cur.ComputedAt.After(snapshot.ComputedAt) {
				return nil
			}
		}

		payload, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.keyTTL)
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txn, key); err != nil {
		return fmt.Errorf("redis put snapshot: %w", err)
	}
	return nil
}

// Delete drops the tenant's snapshot
func (s *RedisSnapshotStore) Delete(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.client.Del(ctx, snapshotKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("redis delete snapshot: %w", err)
	}
	return nil
}
