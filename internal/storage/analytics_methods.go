package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/talent-forge/collab-server/internal/models"
)

// ListAssessmentRecords lists one module's records for a tenant, oldest
// first, bounded by the since cutoff. Ascending order is what the trend
// computation expects.
func (s *PostgresStore) ListAssessmentRecords(ctx context.Context, tenantID uuid.UUID, module models.AnalyticsModule, since time.Time) ([]*models.AssessmentRecord, error) {
	query := `
        SELECT id, created_at, tenant_id, employee_id, module, score, details
        FROM assessment_records
        WHERE tenant_id = $1 AND module = $2 AND created_at >= $3
        ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, tenantID, module, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AssessmentRecord
	for rows.Next() {
		r := &models.AssessmentRecord{}
		if err := rows.Scan(
			&r.ID, &r.CreatedAt, &r.TenantID, &r.EmployeeID,
			&r.Module, &r.Score, &r.Details,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// CreateAssessmentRecord creates an assessment record
func (s *PostgresStore) CreateAssessmentRecord(ctx context.Context, record *models.AssessmentRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO assessment_records (
            id, created_at, tenant_id, employee_id, module, score, details
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.CreatedAt, record.TenantID, record.EmployeeID,
		record.Module, record.Score, record.Details,
	)

	return err
}

// ListEmployees lists active employees of a tenant
func (s *PostgresStore) ListEmployees(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error) {
	query := `
        SELECT id, created_at, tenant_id, name, team, role, is_active
        FROM employees
        WHERE tenant_id = $1 AND is_active = true
        ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []*models.Employee
	for rows.Next() {
		e := &models.Employee{}
		if err := rows.Scan(
			&e.ID, &e.CreatedAt, &e.TenantID, &e.Name,
			&e.Team, &e.Role, &e.IsActive,
		); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}

	return employees, rows.Err()
}
