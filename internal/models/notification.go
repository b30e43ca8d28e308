package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification represents a persisted event notice delivered to a tenant room
type Notification struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	TenantID uuid.UUID `json:"tenantId" db:"tenant_id"`

	// UserID is the target user; nil means the notification is visible
	// to every user of the tenant.
	UserID *uuid.UUID `json:"userId,omitempty" db:"user_id"`

	Category NotificationCategory `json:"category" db:"category"`
	Severity NotificationSeverity `json:"severity" db:"severity"`

	Title   string `json:"title" db:"title"`
	Message string `json:"message" db:"message"`
	Link    string `json:"link,omitempty" db:"link"`

	// Read is a single flag shared by all viewers of an untargeted
	// notification; per-user read tracking is a data-store concern.
	Read bool `json:"read" db:"read"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// NotificationCategory represents notification categories
type NotificationCategory string

const (
	NotificationCategoryAssessment NotificationCategory = "ASSESSMENT"
	NotificationCategoryPipeline   NotificationCategory = "PIPELINE"
	NotificationCategoryAnalytics  NotificationCategory = "ANALYTICS"
	NotificationCategoryComment    NotificationCategory = "COMMENT"
	NotificationCategorySystem     NotificationCategory = "SYSTEM"
)

// NotificationSeverity represents notification severity levels
type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "INFO"
	NotificationSeveritySuccess NotificationSeverity = "SUCCESS"
	NotificationSeverityWarning NotificationSeverity = "WARNING"
	NotificationSeverityError   NotificationSeverity = "ERROR"
)
