// Package analytics provides the bounded-staleness metrics cache for
// cross-module dashboard aggregates and their trend classification.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/talent-forge/collab-server/internal/config"
	"github.com/talent-forge/collab-server/internal/models"
	"github.com/talent-forge/collab-server/internal/storage"
)

// Service computes and caches per-tenant metrics snapshots
type Service struct {
	store     storage.Store
	snapshots SnapshotStore

	ttl            time.Duration
	trendThreshold float64
	trendWindow    time.Duration

	// group collapses concurrent refills for the same tenant into one
	// fan-out; the losers share the winner's snapshot.
	group singleflight.Group
	now   func() time.Time
}

// NewService creates the metrics cache service
func NewService(store storage.Store, snapshots SnapshotStore, cfg *config.AnalyticsConfig) *Service {
	return &Service{
		store:          store,
		snapshots:      snapshots,
		ttl:            cfg.CacheTTL,
		trendThreshold: cfg.TrendThreshold,
		trendWindow:    cfg.TrendWindow,
		now:            time.Now,
	}
}

// TTL reports the configured freshness bound.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// GetMetrics returns the tenant's metrics snapshot, recomputing when the
// cached one is missing or older than the TTL. forceRefresh bypasses the
// cache and updates it so subsequent passive reads see the fresh value.
func (s *Service) GetMetrics(ctx context.Context, tenantID uuid.UUID, forceRefresh bool) (*models.MetricsSnapshot, error) {
	if !forceRefresh {
		snapshot, err := s.snapshots.Get(ctx, tenantID)
		if err == nil && snapshot.Fresh(s.ttl, s.now()) {
			return snapshot, nil
		}
		if err != nil && !errors.Is(err, ErrNoSnapshot) {
			log.Warn().Err(err).Str("tenant", tenantID.String()).Msg("Snapshot store read failed, recomputing")
		}
	}

	// The refill is detached from the caller: a dropped client must not
	// cancel the fan-out mid-flight, or the half-failed aggregation
	// would be cached as a fresh all-zero snapshot for every other
	// viewer of the tenant. The call completes and the caller's result
	// is simply discarded if it is gone.
	v, err, _ := s.group.Do(tenantID.String(), func() (interface{}, error) {
		return s.refresh(context.Background(), tenantID)
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.MetricsSnapshot), nil
}

// Invalidate drops the tenant's snapshot so the next read recomputes.
func (s *Service) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	return s.snapshots.Delete(ctx, tenantID)
}

// refresh fans out to the data store for every module concurrently,
// assembles a new snapshot and stores it. A failed module fetch
// degrades to a zero summary rather than aborting the aggregation.
func (s *Service) refresh(ctx context.Context, tenantID uuid.UUID) (*models.MetricsSnapshot, error) {
	since := s.now().Add(-s.trendWindow)

	summaries := make([]models.ModuleSummary, len(models.AllModules))
	var headcount int

	g, gctx := errgroup.WithContext(ctx)

	for i, module := range models.AllModules {
		i, module := i, module
		g.Go(func() error {
			records, err := s.store.ListAssessmentRecords(gctx, tenantID, module, since)
			if err != nil {
				log.Error().Err(err).
					Str("tenant", tenantID.String()).
					Str("module", string(module)).
					Msg("Module fetch failed, using empty summary")
				summaries[i] = models.ModuleSummary{Module: module, Trend: models.TrendStable}
				return nil
			}
			summaries[i] = s.summarize(module, records)
			return nil
		})
	}

	g.Go(func() error {
		employees, err := s.store.ListEmployees(gctx, tenantID)
		if err != nil {
			log.Error().Err(err).Str("tenant", tenantID.String()).Msg("Employee fetch failed")
			return nil
		}
		headcount = len(employees)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate metrics: %w", err)
	}

	snapshot := &models.MetricsSnapshot{
		TenantID:   tenantID,
		Modules:    make(map[models.AnalyticsModule]models.ModuleSummary, len(summaries)),
		Headcount:  headcount,
		ComputedAt: s.now(),
	}
	for _, summary := range summaries {
		snapshot.Modules[summary.Module] = summary
	}

	// Best effort: a failed store still returns the fresh snapshot.
	if err := s.snapshots.Put(ctx, snapshot); err != nil {
		log.Warn().Err(err).Str("tenant", tenantID.String()).Msg("Snapshot store write failed")
	}

	return snapshot, nil
}

func (s *Service) summarize(module models.AnalyticsModule, records []*models.AssessmentRecord) models.ModuleSummary {
	summary := models.ModuleSummary{
		Module: module,
		Count:  len(records),
		Trend:  models.TrendStable,
	}

	if len(records) == 0 {
		return summary
	}

	points := make([]trendPoint, len(records))
	var sum float64
	for i, r := range records {
		points[i] = trendPoint{at: r.CreatedAt, value: r.Score}
		sum += r.Score
	}

	summary.Average = sum / float64(len(records))
	summary.Trend = classifyTrend(points, s.trendThreshold, invertedModules[module])
	return summary
}

// Insights renders a cheap deterministic digest of the snapshot. It is
// the fallback path when the external reasoning service is throttled,
// and the input handed to it when it is not.
func Insights(snapshot *models.MetricsSnapshot) []string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%d active employees tracked", snapshot.Headcount))

	for _, module := range models.AllModules {
		summary, ok := snapshot.Modules[module]
		if !ok || summary.Count == 0 {
			continue
		}

		name := strings.ReplaceAll(string(module), "_", " ")
		switch summary.Trend {
		case models.TrendUp:
			lines = append(lines, fmt.Sprintf("%s improving (avg %.1f over %d records)", name, summary.Average, summary.Count))
		case models.TrendDown:
			lines = append(lines, fmt.Sprintf("%s declining (avg %.1f over %d records)", name, summary.Average, summary.Count))
		default:
			lines = append(lines, fmt.Sprintf("%s stable (avg %.1f over %d records)", name, summary.Average, summary.Count))
		}
	}

	return lines
}
