package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalyticsModule identifies one aggregated dashboard module
type AnalyticsModule string

const (
	ModuleAssessments  AnalyticsModule = "assessments"
	ModuleTurnoverRisk AnalyticsModule = "turnover_risk"
	ModuleCompliance   AnalyticsModule = "compliance"
	ModuleEngagement   AnalyticsModule = "engagement"
)

// AllModules lists the modules aggregated into a dashboard snapshot.
var AllModules = []AnalyticsModule{
	ModuleAssessments,
	ModuleTurnoverRisk,
	ModuleCompliance,
	ModuleEngagement,
}

// AssessmentRecord represents one scored record produced by a platform module
type AssessmentRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	TenantID   uuid.UUID       `json:"tenantId" db:"tenant_id"`
	EmployeeID *uuid.UUID      `json:"employeeId,omitempty" db:"employee_id"`
	Module     AnalyticsModule `json:"module" db:"module"`

	Score float64 `json:"score" db:"score"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// Employee represents an employee row used for headcount aggregation
type Employee struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	TenantID uuid.UUID `json:"tenantId" db:"tenant_id"`

	Name     string `json:"name" db:"name"`
	Team     string `json:"team" db:"team"`
	Role     string `json:"role" db:"role"`
	IsActive bool   `json:"isActive" db:"is_active"`
}

// Trend classifies the direction of a metric series
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// ModuleSummary is the aggregated result for one module
type ModuleSummary struct {
	Module  AnalyticsModule `json:"module"`
	Count   int             `json:"count"`
	Average float64         `json:"average"`
	Trend   Trend           `json:"trend"`
}

// MetricsSnapshot is an immutable per-tenant aggregation result.
// Snapshots are always replaced wholesale, never partially mutated.
type MetricsSnapshot struct {
	TenantID   uuid.UUID                         `json:"tenantId"`
	Modules    map[AnalyticsModule]ModuleSummary `json:"modules"`
	Headcount  int                               `json:"headcount"`
	ComputedAt time.Time                         `json:"computedAt"`
}

// Fresh reports whether the snapshot is within its time-to-live.
func (s *MetricsSnapshot) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.ComputedAt) < ttl
}
