package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/talent-forge/collab-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the data-store collaborator interface. The gateway core
// only reads module records for aggregation and writes notification rows;
// the CRUD surface for jobs, candidates and applications lives elsewhere.
type Store interface {
	// Notification methods
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	ListNotifications(ctx context.Context, filters NotificationFilters, limit, offset int) ([]*models.Notification, int64, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (int64, error)
	CountUnreadNotifications(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (int64, error)

	// Analytics source methods
	ListAssessmentRecords(ctx context.Context, tenantID uuid.UUID, module models.AnalyticsModule, since time.Time) ([]*models.AssessmentRecord, error)
	CreateAssessmentRecord(ctx context.Context, record *models.AssessmentRecord) error
	ListEmployees(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error)

	// Close the store
	Close() error
}

// NotificationFilters represents filters for notification listings
type NotificationFilters struct {
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	Category   *models.NotificationCategory
	UnreadOnly bool
}
