package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talent-forge/collab-server/internal/models"
)

// CreateNotification creates a notification row
func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO notifications (
            id, created_at, tenant_id, user_id, category,
            severity, title, message, link, read, details
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.CreatedAt, n.TenantID, n.UserID, n.Category,
		n.Severity, n.Title, n.Message, n.Link, n.Read, n.Details,
	)

	return err
}

// GetNotification gets a notification by ID
func (s *PostgresStore) GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	query := `
        SELECT id, created_at, tenant_id, user_id, category,
               severity, title, message, link, read, details
        FROM notifications WHERE id = $1`

	n := &models.Notification{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.CreatedAt, &n.TenantID, &n.UserID, &n.Category,
		&n.Severity, &n.Title, &n.Message, &n.Link, &n.Read, &n.Details,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return n, nil
}

// ListNotifications lists notifications with filters. The user filter
// matches both targeted rows and tenant-wide rows (user_id IS NULL).
func (s *PostgresStore) ListNotifications(ctx context.Context, filters NotificationFilters, limit, offset int) ([]*models.Notification, int64, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{filters.TenantID}
	argCount := 1

	if filters.UserID != nil {
		argCount++
		where += fmt.Sprintf(" AND (user_id = $%d OR user_id IS NULL)", argCount)
		args = append(args, *filters.UserID)
	}

	if filters.Category != nil {
		argCount++
		where += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, *filters.Category)
	}

	if filters.UnreadOnly {
		where += " AND read = false"
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM notifications " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
        SELECT id, created_at, tenant_id, user_id, category,
               severity, title, message, link, read, details
        FROM notifications %s
        ORDER BY created_at DESC
        LIMIT $%d OFFSET $%d`, where, argCount+1, argCount+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(
			&n.ID, &n.CreatedAt, &n.TenantID, &n.UserID, &n.Category,
			&n.Severity, &n.Title, &n.Message, &n.Link, &n.Read, &n.Details,
		); err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}

	return notifications, total, rows.Err()
}

// MarkNotificationRead flips the read flag on a notification
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = true WHERE id = $1", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkAllNotificationsRead marks every unread notification visible to the
// user (or the whole tenant when userID is nil) as read
func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (int64, error) {
	query := "UPDATE notifications SET read = true WHERE tenant_id = $1 AND read = false"
	args := []interface{}{tenantID}

	if userID != nil {
		query += " AND (user_id = $2 OR user_id IS NULL)"
		args = append(args, *userID)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// CountUnreadNotifications counts unread notifications visible to the user
func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (int64, error) {
	query := "SELECT COUNT(*) FROM notifications WHERE tenant_id = $1 AND read = false"
	args := []interface{}{tenantID}

	if userID != nil {
		query += " AND (user_id = $2 OR user_id IS NULL)"
		args = append(args, *userID)
	}

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}
