package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talent-forge/collab-server/internal/models"
)

// MemoryStore is an in-memory Store used by tests and single-node
// development setups.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*models.Notification
	records       []*models.AssessmentRecord
	employees     []*models.Employee
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[uuid.UUID]*models.Notification),
	}
}

// CreateNotification stores a notification
func (s *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

// GetNotification gets a notification by ID
func (s *MemoryStore) GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func visibleTo(n *models.Notification, userID *uuid.UUID) bool {
	if userID == nil || n.UserID == nil {
		return true
	}
	return *n.UserID == *userID
}

// ListNotifications lists notifications with filters, newest first
func (s *MemoryStore) ListNotifications(ctx context.Context, filters NotificationFilters, limit, offset int) ([]*models.Notification, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Notification
	for _, n := range s.notifications {
		if n.TenantID != filters.TenantID {
			continue
		}
		if !visibleTo(n, filters.UserID) {
			continue
		}
		if filters.Category != nil && n.Category != *filters.Category {
			continue
		}
		if filters.UnreadOnly && n.Read {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, total, nil
}

// MarkNotificationRead flips the read flag
func (s *MemoryStore) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

// MarkAllNotificationsRead marks every unread notification visible to
// the user as read
func (s *MemoryStore) MarkAllNotificationsRead(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, n := range s.notifications {
		if n.TenantID != tenantID || n.Read {
			continue
		}
		if !visibleTo(n, userID) {
			continue
		}
		n.Read = true
		updated++
	}
	return updated, nil
}

// CountUnreadNotifications counts unread notifications visible to the user
func (s *MemoryStore) CountUnreadNotifications(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, n := range s.notifications {
		if n.TenantID != tenantID || n.Read {
			continue
		}
		if !visibleTo(n, userID) {
			continue
		}
		count++
	}
	return count, nil
}

// AddAssessmentRecords seeds module records for tests
func (s *MemoryStore) AddAssessmentRecords(records ...*models.AssessmentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// CreateAssessmentRecord stores an assessment record
func (s *MemoryStore) CreateAssessmentRecord(ctx context.Context, record *models.AssessmentRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records = append(s.records, &cp)
	return nil
}

// ListAssessmentRecords lists one module's records oldest first
func (s *MemoryStore) ListAssessmentRecords(ctx context.Context, tenantID uuid.UUID, module models.AnalyticsModule, since time.Time) ([]*models.AssessmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.AssessmentRecord
	for _, r := range s.records {
		if r.TenantID != tenantID || r.Module != module || r.CreatedAt.Before(since) {
			continue
		}
		cp := *r
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// AddEmployees seeds employee rows for tests
func (s *MemoryStore) AddEmployees(employees ...*models.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees = append(s.employees, employees...)
}

// ListEmployees lists active employees of a tenant
func (s *MemoryStore) ListEmployees(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Employee
	for _, e := range s.employees {
		if e.TenantID != tenantID || !e.IsActive {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	return matched, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
