package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

var ErrExemptionNotFound = errors.New("exemption not found")

// ExemptionRepository handles exemption database operations
type ExemptionRepository struct {
	db DBTX
}

// NewExemptionRepository creates a new exemption repository
func NewExemptionRepository(db DBTX) *ExemptionRepository {
	return &ExemptionRepository{db: db}
}

const exemptionColumns = `id, organization_id, title, control_id, justification,
	       expires_at, approval_status, version, created_by_id, created_at, updated_at`

func scanExemption(scan func(...interface{}) error) (*models.Exemption, error) {
	ex := &models.Exemption{}
	err := scan(
		&ex.ID,
		&ex.OrgID,
		&ex.Title,
		&ex.ControlID,
		&ex.Justification,
		&ex.ExpiresAt,
		&ex.Status,
		&ex.Version,
		&ex.CreatedByID,
		&ex.CreatedAt,
		&ex.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ex, nil
}

// Create inserts a new exemption in DRAFT at the initial version
func (r *ExemptionRepository) Create(ex *models.Exemption) error {
	query := `
		INSERT INTO exemptions (organization_id, title, control_id, justification,
			expires_at, approval_status, version, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()
	ex.Status = workflow.StatusDraft
	ex.Version = workflow.InitialVersion
	err := r.db.QueryRow(
		query,
		ex.OrgID,
		ex.Title,
		ex.ControlID,
		ex.Justification,
		ex.ExpiresAt,
		ex.Status,
		ex.Version,
		ex.CreatedByID,
		now,
		now,
	).Scan(&ex.ID)

	if err != nil {
		return fmt.Errorf("failed to create exemption: %w", err)
	}

	ex.CreatedAt = now
	ex.UpdatedAt = now
	return nil
}

// GetByID retrieves an exemption by ID within an organization
func (r *ExemptionRepository) GetByID(orgID, id uint) (*models.Exemption, error) {
	query := `SELECT ` + exemptionColumns + ` FROM exemptions WHERE id = $1 AND organization_id = $2`

	ex, err := scanExemption(r.db.QueryRow(query, id, orgID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrExemptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exemption: %w", err)
	}

	return ex, nil
}

// Update writes all mutable fields plus the workflow columns,
// conditional on the previously loaded (status, version) pair.
func (r *ExemptionRepository) Update(ex *models.Exemption, fromStatus workflow.Status, fromVersion workflow.Version) error {
	query := `
		UPDATE exemptions
		SET title = $1, control_id = $2, justification = $3, expires_at = $4,
		    approval_status = $5, version = $6, updated_at = $7
		WHERE id = $8 AND organization_id = $9 AND approval_status = $10 AND version = $11
	`

	ex.UpdatedAt = time.Now()
	result, err := r.db.Exec(
		query,
		ex.Title,
		ex.ControlID,
		ex.Justification,
		ex.ExpiresAt,
		ex.Status,
		ex.Version,
		ex.UpdatedAt,
		ex.ID,
		ex.OrgID,
		fromStatus,
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update exemption: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return workflow.NewConflictError(workflow.KindExemption, ex.ID)
	}

	return nil
}

// Delete deletes an exemption
func (r *ExemptionRepository) Delete(orgID, id uint) error {
	query := `DELETE FROM exemptions WHERE id = $1 AND organization_id = $2`
	result, err := r.db.Exec(query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete exemption: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrExemptionNotFound
	}
	return nil
}

// ListByOrg retrieves exemptions for an organization
func (r *ExemptionRepository) ListByOrg(orgID uint, limit, offset int) ([]models.Exemption, error) {
	query := `SELECT ` + exemptionColumns + ` FROM exemptions
		WHERE organization_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list exemptions: %w", err)
	}
	defer rows.Close()

	var exemptions []models.Exemption
	for rows.Next() {
		ex, err := scanExemption(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exemption: %w", err)
		}
		exemptions = append(exemptions, *ex)
	}

	return exemptions, rows.Err()
}

// ListExpiring retrieves approved exemptions expiring within the
// window, used by the expiry-warning scheduler.
func (r *ExemptionRepository) ListExpiring(until time.Time) ([]models.Exemption, error) {
	query := `SELECT ` + exemptionColumns + ` FROM exemptions
		WHERE approval_status = $1 AND expires_at IS NOT NULL AND expires_at <= $2 AND expires_at > NOW()
		ORDER BY expires_at`

	rows, err := r.db.Query(query, workflow.StatusApproved, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring exemptions: %w", err)
	}
	defer rows.Close()

	var exemptions []models.Exemption
	for rows.Next() {
		ex, err := scanExemption(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exemption: %w", err)
		}
		exemptions = append(exemptions, *ex)
	}

	return exemptions, rows.Err()
}
