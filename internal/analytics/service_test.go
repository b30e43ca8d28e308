package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talent-forge/collab-server/internal/config"
	"github.com/talent-forge/collab-server/internal/models"
	"github.com/talent-forge/collab-server/internal/storage"
)

// flakyStore fails fetches for one module so degraded aggregation can
// be exercised.
type flakyStore struct {
	storage.Store
	failModule models.AnalyticsModule
}

func (s *flakyStore) ListAssessmentRecords(ctx context.Context, tenantID uuid.UUID, module models.AnalyticsModule, since time.Time) ([]*models.AssessmentRecord, error) {
	if module == s.failModule {
		return nil, errors.New("module store unavailable")
	}
	return s.Store.ListAssessmentRecords(ctx, tenantID, module, since)
}

func analyticsConfig() *config.AnalyticsConfig {
	return &config.AnalyticsConfig{
		CacheTTL:       30 * time.Second,
		TrendThreshold: 0.05,
		TrendWindow:    90 * 24 * time.Hour,
	}
}

func seedRecords(store *storage.MemoryStore, tenantID uuid.UUID, module models.AnalyticsModule, base time.Time, scores ...float64) {
	for i, score := range scores {
		store.AddAssessmentRecords(&models.AssessmentRecord{
			ID:        uuid.New(),
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
			TenantID:  tenantID,
			Module:    module,
			Score:     score,
		})
	}
}

func TestServiceComputesSnapshot(t *testing.T) {
	store := storage.NewMemoryStore()
	tenant := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	base := now.Add(-30 * 24 * time.Hour)

	seedRecords(store, tenant, models.ModuleAssessments, base, 60, 70, 80, 90)
	seedRecords(store, tenant, models.ModuleTurnoverRisk, base, 10, 20, 40, 50)
	store.AddEmployees(
		&models.Employee{ID: uuid.New(), TenantID: tenant, Name: "Alice", IsActive: true},
		&models.Employee{ID: uuid.New(), TenantID: tenant, Name: "Bob", IsActive: true},
		&models.Employee{ID: uuid.New(), TenantID: tenant, Name: "Carol", IsActive: false},
	)

	svc := NewService(store, NewMemorySnapshotStore(), analyticsConfig())
	svc.now = func() time.Time { return now }

	snapshot, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)

	assert.Equal(t, tenant, snapshot.TenantID)
	assert.Equal(t, 2, snapshot.Headcount)
	assert.Equal(t, now, snapshot.ComputedAt)
	assert.Len(t, snapshot.Modules, len(models.AllModules))

	assessments := snapshot.Modules[models.ModuleAssessments]
	assert.Equal(t, 4, assessments.Count)
	assert.InDelta(t, 75.0, assessments.Average, 0.001)
	assert.Equal(t, models.TrendUp, assessments.Trend)

	// Rising turnover risk reads as declining
	turnover := snapshot.Modules[models.ModuleTurnoverRisk]
	assert.Equal(t, models.TrendDown, turnover.Trend)

	// Modules with no records degrade to a zero summary
	compliance := snapshot.Modules[models.ModuleCompliance]
	assert.Equal(t, 0, compliance.Count)
	assert.Equal(t, models.TrendStable, compliance.Trend)
}

func TestServiceServesCachedSnapshotWithinTTL(t *testing.T) {
	store := storage.NewMemoryStore()
	tenant := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	seedRecords(store, tenant, models.ModuleAssessments, now.Add(-time.Hour), 50, 60)

	svc := NewService(store, NewMemorySnapshotStore(), analyticsConfig())
	svc.now = func() time.Time { return now }

	first, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)

	// New data inside the TTL is invisible
	seedRecords(store, tenant, models.ModuleAssessments, now, 90)

	now = now.Add(10 * time.Second)
	second, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
	assert.Equal(t, 2, second.Modules[models.ModuleAssessments].Count)

	// Once the snapshot ages past the TTL the next read recomputes
	now = now.Add(30 * time.Second)
	third, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)
	assert.True(t, third.ComputedAt.After(first.ComputedAt))
	assert.Equal(t, 3, third.Modules[models.ModuleAssessments].Count)
}

func TestServiceForceRefreshBypassesCache(t *testing.T) {
	store := storage.NewMemoryStore()
	tenant := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	svc := NewService(store, NewMemorySnapshotStore(), analyticsConfig())
	svc.now = func() time.Time { return now }

	first, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)

	seedRecords(store, tenant, models.ModuleEngagement, now, 80)

	now = now.Add(time.Second)
	refreshed, err := svc.GetMetrics(context.Background(), tenant, true)
	require.NoError(t, err)
	assert.True(t, refreshed.ComputedAt.After(first.ComputedAt))
	assert.Equal(t, 1, refreshed.Modules[models.ModuleEngagement].Count)

	// The forced result updates the cache: a passive read sees it
	passive, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)
	assert.Equal(t, refreshed.ComputedAt, passive.ComputedAt)
}

func TestServiceInvalidateForcesRecompute(t *testing.T) {
	store := storage.NewMemoryStore()
	tenant := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	svc := NewService(store, NewMemorySnapshotStore(), analyticsConfig())
	svc.now = func() time.Time { return now }

	first, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(context.Background(), tenant))

	now = now.Add(time.Second)
	second, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)
	assert.True(t, second.ComputedAt.After(first.ComputedAt))
}

func TestServiceFailedModuleDegradesToZeroSummary(t *testing.T) {
	base := storage.NewMemoryStore()
	tenant := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	seedRecords(base, tenant, models.ModuleAssessments, now.Add(-time.Hour), 70, 80)
	store := &flakyStore{Store: base, failModule: models.ModuleCompliance}

	svc := NewService(store, NewMemorySnapshotStore(), analyticsConfig())
	svc.now = func() time.Time { return now }

	snapshot, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)

	// The broken module is present but empty; healthy modules are intact
	compliance := snapshot.Modules[models.ModuleCompliance]
	assert.Equal(t, 0, compliance.Count)
	assert.Equal(t, models.TrendStable, compliance.Trend)

	assessments := snapshot.Modules[models.ModuleAssessments]
	assert.Equal(t, 2, assessments.Count)
}

// cancelAwareStore fails fetches once the request context is gone, the
// way a real driver does.
type cancelAwareStore struct {
	storage.Store
}

func (s *cancelAwareStore) ListAssessmentRecords(ctx context.Context, tenantID uuid.UUID, module models.AnalyticsModule, since time.Time) ([]*models.AssessmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.ListAssessmentRecords(ctx, tenantID, module, since)
}

func (s *cancelAwareStore) ListEmployees(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.ListEmployees(ctx, tenantID)
}

func TestServiceRefreshOutlivesCaller(t *testing.T) {
	base := storage.NewMemoryStore()
	tenant := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	seedRecords(base, tenant, models.ModuleAssessments, now.Add(-time.Hour), 60, 70, 80, 90)
	base.AddEmployees(&models.Employee{ID: uuid.New(), TenantID: tenant, Name: "Alice", IsActive: true})
	store := &cancelAwareStore{Store: base}

	svc := NewService(store, NewMemorySnapshotStore(), analyticsConfig())
	svc.now = func() time.Time { return now }

	// The client is already gone when the refill starts
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	snapshot, err := svc.GetMetrics(cancelled, tenant, false)
	require.NoError(t, err)
	assert.Equal(t, 4, snapshot.Modules[models.ModuleAssessments].Count)
	assert.Equal(t, 1, snapshot.Headcount)

	// The cache holds the real aggregation, not a poisoned zero snapshot
	cached, err := svc.GetMetrics(context.Background(), tenant, false)
	require.NoError(t, err)
	assert.Equal(t, snapshot.ComputedAt, cached.ComputedAt)
	assert.Equal(t, 4, cached.Modules[models.ModuleAssessments].Count)
}

func TestMemorySnapshotStorePutIsMonotonic(t *testing.T) {
	snapshots := NewMemorySnapshotStore()
	tenant := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	newer := &models.MetricsSnapshot{TenantID: tenant, Headcount: 5, ComputedAt: now}
	older := &models.MetricsSnapshot{TenantID: tenant, Headcount: 3, ComputedAt: now.Add(-time.Minute)}

	require.NoError(t, snapshots.Put(context.Background(), newer))
	require.NoError(t, snapshots.Put(context.Background(), older))

	stored, err := snapshots.Get(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Headcount)
}

func TestInsightsDigest(t *testing.T) {
	tenant := uuid.New()
	snapshot := &models.MetricsSnapshot{
		TenantID:  tenant,
		Headcount: 12,
		Modules: map[models.AnalyticsModule]models.ModuleSummary{
			models.ModuleAssessments:  {Module: models.ModuleAssessments, Count: 4, Average: 75, Trend: models.TrendUp},
			models.ModuleTurnoverRisk: {Module: models.ModuleTurnoverRisk, Count: 3, Average: 30, Trend: models.TrendDown},
			models.ModuleCompliance:   {Module: models.ModuleCompliance, Trend: models.TrendStable},
		},
		ComputedAt: time.Now(),
	}

	lines := Insights(snapshot)
	require.Len(t, lines, 3)
	assert.Equal(t, "12 active employees tracked", lines[0])
	assert.Contains(t, lines[1], "assessments improving")
	assert.Contains(t, lines[2], "turnover risk declining")
}
