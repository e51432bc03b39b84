package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
)

var ErrAuditEngagementNotFound = errors.New("audit engagement not found")

// AuditEngagementRepository handles audit engagement database operations
type AuditEngagementRepository struct {
	db DBTX
}

// NewAuditEngagementRepository creates a new audit engagement repository
func NewAuditEngagementRepository(db DBTX) *AuditEngagementRepository {
	return &AuditEngagementRepository{db: db}
}

const engagementColumns = `id, organization_id, title, type, auditor,
	       scheduled_start, scheduled_end, status, outcome_summary,
	       created_by_id, created_at, updated_at`

func scanEngagement(scan func(...interface{}) error) (*models.AuditEngagement, error) {
	eng := &models.AuditEngagement{}
	err := scan(
		&eng.ID,
		&eng.OrgID,
		&eng.Title,
		&eng.Type,
		&eng.Auditor,
		&eng.ScheduledStart,
		&eng.ScheduledEnd,
		&eng.Status,
		&eng.OutcomeSummary,
		&eng.CreatedByID,
		&eng.CreatedAt,
		&eng.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return eng, nil
}

// Create inserts an audit engagement
func (r *AuditEngagementRepository) Create(eng *models.AuditEngagement) error {
	query := `
		INSERT INTO audit_engagements (organization_id, title, type, auditor,
			scheduled_start, scheduled_end, status, outcome_summary, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(
		query,
		eng.OrgID,
		eng.Title,
		eng.Type,
		eng.Auditor,
		eng.ScheduledStart,
		eng.ScheduledEnd,
		eng.Status,
		eng.OutcomeSummary,
		eng.CreatedByID,
		now,
		now,
	).Scan(&eng.ID)

	if err != nil {
		return fmt.Errorf("failed to create audit engagement: %w", err)
	}

	eng.CreatedAt = now
	eng.UpdatedAt = now
	return nil
}

// GetByID retrieves an audit engagement by ID within an organization
func (r *AuditEngagementRepository) GetByID(orgID, id uint) (*models.AuditEngagement, error) {
	query := `SELECT ` + engagementColumns + ` FROM audit_engagements WHERE id = $1 AND organization_id = $2`

	eng, err := scanEngagement(r.db.QueryRow(query, id, orgID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrAuditEngagementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit engagement: %w", err)
	}

	return eng, nil
}

// Update updates an audit engagement
func (r *AuditEngagementRepository) Update(eng *models.AuditEngagement) error {
	query := `
		UPDATE audit_engagements
		SET title = $1, type = $2, auditor = $3, scheduled_start = $4,
		    scheduled_end = $5, status = $6, outcome_summary = $7, updated_at = $8
		WHERE id = $9 AND organization_id = $10
	`

	eng.UpdatedAt = time.Now()
	result, err := r.db.Exec(
		query,
		eng.Title,
		eng.Type,
		eng.Auditor,
		eng.ScheduledStart,
		eng.ScheduledEnd,
		eng.Status,
		eng.OutcomeSummary,
		eng.UpdatedAt,
		eng.ID,
		eng.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to update audit engagement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAuditEngagementNotFound
	}

	return nil
}

// Delete deletes an audit engagement
func (r *AuditEngagementRepository) Delete(orgID, id uint) error {
	query := `DELETE FROM audit_engagements WHERE id = $1 AND organization_id = $2`
	result, err := r.db.Exec(query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete audit engagement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAuditEngagementNotFound
	}
	return nil
}

// ListByOrg retrieves audit engagements for an organization
func (r *AuditEngagementRepository) ListByOrg(orgID uint) ([]models.AuditEngagement, error) {
	query := `SELECT ` + engagementColumns + ` FROM audit_engagements
		WHERE organization_id = $1
		ORDER BY scheduled_start DESC NULLS LAST, created_at DESC`

	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit engagements: %w", err)
	}
	defer rows.Close()

	var engagements []models.AuditEngagement
	for rows.Next() {
		eng, err := scanEngagement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit engagement: %w", err)
		}
		engagements = append(engagements, *eng)
	}

	return engagements, rows.Err()
}
