package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

var (
	ErrSoAItemNotFound = errors.New("statement of applicability item not found")
	ErrSoAItemExists   = errors.New("statement of applicability item already exists for this control")
)

// SoARepository handles statement-of-applicability database operations
type SoARepository struct {
	db DBTX
}

// NewSoARepository creates a new SoA repository
func NewSoARepository(db DBTX) *SoARepository {
	return &SoARepository{db: db}
}

const soaColumns = `id, organization_id, control_id, applicable, justification,
	       implementation_status, approval_status, version, created_by_id, created_at, updated_at`

func scanSoAItem(scan func(...interface{}) error) (*models.SoAItem, error) {
	item := &models.SoAItem{}
	err := scan(
		&item.ID,
		&item.OrgID,
		&item.ControlID,
		&item.Applicable,
		&item.Justification,
		&item.ImplementationStatus,
		&item.Status,
		&item.Version,
		&item.CreatedByID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Create inserts a new SoA item in DRAFT at the initial version
func (r *SoARepository) Create(item *models.SoAItem) error {
	query := `
		INSERT INTO soa_items (organization_id, control_id, applicable, justification,
			implementation_status, approval_status, version, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id, control_id) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	item.Status = workflow.StatusDraft
	item.Version = workflow.InitialVersion
	err := r.db.QueryRow(
		query,
		item.OrgID,
		item.ControlID,
		item.Applicable,
		item.Justification,
		item.ImplementationStatus,
		item.Status,
		item.Version,
		item.CreatedByID,
		now,
		now,
	).Scan(&item.ID)

	if err == sql.ErrNoRows {
		return ErrSoAItemExists
	}
	if err != nil {
		return fmt.Errorf("failed to create soa item: %w", err)
	}

	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// GetByID retrieves an SoA item by ID within an organization
func (r *SoARepository) GetByID(orgID, id uint) (*models.SoAItem, error) {
	query := `SELECT ` + soaColumns + ` FROM soa_items WHERE id = $1 AND organization_id = $2`

	item, err := scanSoAItem(r.db.QueryRow(query, id, orgID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrSoAItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get soa item: %w", err)
	}

	return item, nil
}

// Update writes all mutable fields plus the workflow columns,
// conditional on the previously loaded (status, version) pair.
func (r *SoARepository) Update(item *models.SoAItem, fromStatus workflow.Status, fromVersion workflow.Version) error {
	query := `
		UPDATE soa_items
		SET applicable = $1, justification = $2, implementation_status = $3,
		    approval_status = $4, version = $5, updated_at = $6
		WHERE id = $7 AND organization_id = $8 AND approval_status = $9 AND version = $10
	`

	item.UpdatedAt = time.Now()
	result, err := r.db.Exec(
		query,
		item.Applicable,
		item.Justification,
		item.ImplementationStatus,
		item.Status,
		item.Version,
		item.UpdatedAt,
		item.ID,
		item.OrgID,
		fromStatus,
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update soa item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return workflow.NewConflictError(workflow.KindSoAItem, item.ID)
	}

	return nil
}

// Delete deletes an SoA item
func (r *SoARepository) Delete(orgID, id uint) error {
	query := `DELETE FROM soa_items WHERE id = $1 AND organization_id = $2`
	result, err := r.db.Exec(query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete soa item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrSoAItemNotFound
	}
	return nil
}

// ListByOrg retrieves all SoA items for an organization joined with
// their catalog controls, ordered by control code.
func (r *SoARepository) ListByOrg(orgID uint) ([]models.SoAItemWithControl, error) {
	query := `
		SELECT s.id, s.organization_id, s.control_id, s.applicable, s.justification,
		       s.implementation_status, s.approval_status, s.version, s.created_by_id,
		       s.created_at, s.updated_at, c.code, c.title
		FROM soa_items s
		INNER JOIN controls c ON c.id = s.control_id
		WHERE s.organization_id = $1
		ORDER BY c.code
	`

	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list soa items: %w", err)
	}
	defer rows.Close()

	var items []models.SoAItemWithControl
	for rows.Next() {
		var item models.SoAItemWithControl
		if err := rows.Scan(
			&item.ID,
			&item.OrgID,
			&item.ControlID,
			&item.Applicable,
			&item.Justification,
			&item.ImplementationStatus,
			&item.Status,
			&item.Version,
			&item.CreatedByID,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.ControlCode,
			&item.ControlTitle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan soa item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
