package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

var ErrRiskNotFound = errors.New("risk not found")

// RiskRepository handles risk database operations
type RiskRepository struct {
	db DBTX
}

// NewRiskRepository creates a new risk repository
func NewRiskRepository(db DBTX) *RiskRepository {
	return &RiskRepository{db: db}
}

const riskColumns = `id, organization_id, title, description, category, owner,
	       likelihood, impact, inherent_risk, treatment_plan,
	       approval_status, version, retired_reason, retired_by_id, retired_at,
	       created_by_id, created_at, updated_at`

func scanRisk(scan func(...interface{}) error) (*models.Risk, error) {
	risk := &models.Risk{}
	err := scan(
		&risk.ID,
		&risk.OrgID,
		&risk.Title,
		&risk.Description,
		&risk.Category,
		&risk.Owner,
		&risk.Likelihood,
		&risk.Impact,
		&risk.InherentRisk,
		&risk.TreatmentPlan,
		&risk.Status,
		&risk.Version,
		&risk.RetiredReason,
		&risk.RetiredByID,
		&risk.RetiredAt,
		&risk.CreatedByID,
		&risk.CreatedAt,
		&risk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return risk, nil
}

// Create inserts a new risk in DRAFT at the initial version
func (r *RiskRepository) Create(risk *models.Risk) error {
	query := `
		INSERT INTO risks (organization_id, title, description, category, owner,
			likelihood, impact, inherent_risk, treatment_plan,
			approval_status, version, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	now := time.Now()
	risk.Status = workflow.StatusDraft
	risk.Version = workflow.InitialVersion
	err := r.db.QueryRow(
		query,
		risk.OrgID,
		risk.Title,
		risk.Description,
		risk.Category,
		risk.Owner,
		risk.Likelihood,
		risk.Impact,
		risk.InherentRisk,
		risk.TreatmentPlan,
		risk.Status,
		risk.Version,
		risk.CreatedByID,
		now,
		now,
	).Scan(&risk.ID)

	if err != nil {
		return fmt.Errorf("failed to create risk: %w", err)
	}

	risk.CreatedAt = now
	risk.UpdatedAt = now
	return nil
}

// GetByID retrieves a risk by ID within an organization
func (r *RiskRepository) GetByID(orgID, id uint) (*models.Risk, error) {
	query := `SELECT ` + riskColumns + ` FROM risks WHERE id = $1 AND organization_id = $2`

	risk, err := scanRisk(r.db.QueryRow(query, id, orgID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrRiskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk: %w", err)
	}

	return risk, nil
}

// Update writes all mutable fields plus the workflow columns. The
// update is conditional on the previously loaded (status, version)
// pair; losing that race yields a ConflictError.
func (r *RiskRepository) Update(risk *models.Risk, fromStatus workflow.Status, fromVersion workflow.Version) error {
	query := `
		UPDATE risks
		SET title = $1, description = $2, category = $3, owner = $4,
		    likelihood = $5, impact = $6, inherent_risk = $7, treatment_plan = $8,
		    approval_status = $9, version = $10,
		    retired_reason = $11, retired_by_id = $12, retired_at = $13,
		    updated_at = $14
		WHERE id = $15 AND organization_id = $16 AND approval_status = $17 AND version = $18
	`

	risk.UpdatedAt = time.Now()
	result, err := r.db.Exec(
		query,
		risk.Title,
		risk.Description,
		risk.Category,
		risk.Owner,
		risk.Likelihood,
		risk.Impact,
		risk.InherentRisk,
		risk.TreatmentPlan,
		risk.Status,
		risk.Version,
		risk.RetiredReason,
		risk.RetiredByID,
		risk.RetiredAt,
		risk.UpdatedAt,
		risk.ID,
		risk.OrgID,
		fromStatus,
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update risk: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return workflow.NewConflictError(workflow.KindRisk, risk.ID)
	}

	return nil
}

// Delete deletes a risk (DRAFT only, enforced by the service)
func (r *RiskRepository) Delete(orgID, id uint) error {
	query := `DELETE FROM risks WHERE id = $1 AND organization_id = $2`
	result, err := r.db.Exec(query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete risk: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrRiskNotFound
	}
	return nil
}

// ListByOrg retrieves risks for an organization, optionally filtered by status
func (r *RiskRepository) ListByOrg(orgID uint, status workflow.Status, limit, offset int) ([]models.Risk, error) {
	query := `SELECT ` + riskColumns + ` FROM risks WHERE organization_id = $1`
	args := []interface{}{orgID}

	if status != "" {
		query += ` AND approval_status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY inherent_risk DESC, created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list risks: %w", err)
	}
	defer rows.Close()

	var risks []models.Risk
	for rows.Next() {
		risk, err := scanRisk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk: %w", err)
		}
		risks = append(risks, *risk)
	}

	return risks, rows.Err()
}

// ListPendingApproval retrieves risks awaiting first or second approval
// across all organizations, used by the reminder scheduler.
func (r *RiskRepository) ListPendingApproval(olderThan time.Time) ([]models.Risk, error) {
	query := `SELECT ` + riskColumns + ` FROM risks
		WHERE approval_status IN ($1, $2) AND updated_at < $3
		ORDER BY organization_id, updated_at`

	rows, err := r.db.Query(query, workflow.StatusPendingFirstApproval, workflow.StatusPendingSecondApproval, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending risks: %w", err)
	}
	defer rows.Close()

	var risks []models.Risk
	for rows.Next() {
		risk, err := scanRisk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk: %w", err)
		}
		risks = append(risks, *risk)
	}

	return risks, rows.Err()
}
