// Package notify creates and persists notification records for a tenant
// room. Delivery and durability are decoupled: the record is handed to
// the gateway coordinator for broadcast whether or not the write
// succeeded.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/talent-forge/collab-server/internal/integration"
	"github.com/talent-forge/collab-server/internal/models"
	"github.com/talent-forge/collab-server/internal/storage"
)

// Dispatcher creates, persists and tracks read state of notifications
type Dispatcher struct {
	store     storage.Store
	forwarder *integration.WebhookForwarder
}

// NewDispatcher creates a notification dispatcher. forwarder may be nil
// when no outbound webhooks are configured.
func NewDispatcher(store storage.Store, forwarder *integration.WebhookForwarder) *Dispatcher {
	return &Dispatcher{store: store, forwarder: forwarder}
}

// CreateInput describes a notification to create
type CreateInput struct {
	TenantID uuid.UUID
	UserID   *uuid.UUID
	Category models.NotificationCategory
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Link     string
	Details  models.Variables
}

// Create assigns an id and timestamp and persists the record
// best-effort. The returned notification is always usable for broadcast;
// a persistence failure is logged, not propagated.
func (d *Dispatcher) Create(ctx context.Context, input CreateInput) *models.Notification {
	n := &models.Notification{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		TenantID:  input.TenantID,
		UserID:    input.UserID,
		Category:  input.Category,
		Severity:  input.Severity,
		Title:     input.Title,
		Message:   input.Message,
		Link:      input.Link,
		Details:   input.Details,
	}

	if err := d.store.CreateNotification(ctx, n); err != nil {
		log.Error().Err(err).
			Str("tenant", n.TenantID.String()).
			Str("category", string(n.Category)).
			Msg("Failed to persist notification, broadcasting anyway")
	}

	if d.forwarder != nil {
		// Detached from the caller: webhook delivery outlives the
		// originating request.
		go d.forwarder.ForwardNotification(context.Background(), n)
	}

	return n
}

// MarkRead flips the read flag on one notification
func (d *Dispatcher) MarkRead(ctx context.Context, id uuid.UUID) error {
	return d.store.MarkNotificationRead(ctx, id)
}

// MarkAllRead marks every unread notification visible to the user (or
// the whole tenant when userID is nil) as read
func (d *Dispatcher) MarkAllRead(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (int64, error) {
	return d.store.MarkAllNotificationsRead(ctx, tenantID, userID)
}

// UnreadCount counts unread notifications visible to the user
func (d *Dispatcher) UnreadCount(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (int64, error) {
	return d.store.CountUnreadNotifications(ctx, tenantID, userID)
}

// List returns notifications for a tenant, newest first
func (d *Dispatcher) List(ctx context.Context, filters storage.NotificationFilters, limit, offset int) ([]*models.Notification, int64, error) {
	return d.store.ListNotifications(ctx, filters, limit, offset)
}
