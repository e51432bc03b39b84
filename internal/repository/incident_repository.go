package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
)

var ErrIncidentNotFound = errors.New("incident not found")

// IncidentRepository handles incident database operations. Details are
// stored as ciphertext; encryption happens in the service layer.
type IncidentRepository struct {
	db DBTX
}

// NewIncidentRepository creates a new incident repository
func NewIncidentRepository(db DBTX) *IncidentRepository {
	return &IncidentRepository{db: db}
}

const incidentColumns = `id, organization_id, title, severity, status,
	       details_encrypted, details_nonce, occurred_at, resolved_at,
	       reported_by_id, created_at, updated_at`

func scanIncident(scan func(...interface{}) error) (*models.Incident, error) {
	inc := &models.Incident{}
	err := scan(
		&inc.ID,
		&inc.OrgID,
		&inc.Title,
		&inc.Severity,
		&inc.Status,
		&inc.DetailsEncrypted,
		&inc.DetailsNonce,
		&inc.OccurredAt,
		&inc.ResolvedAt,
		&inc.ReportedByID,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// Create inserts a new incident
func (r *IncidentRepository) Create(inc *models.Incident) error {
	query := `
		INSERT INTO incidents (organization_id, title, severity, status,
			details_encrypted, details_nonce, occurred_at, reported_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(
		query,
		inc.OrgID,
		inc.Title,
		inc.Severity,
		inc.Status,
		inc.DetailsEncrypted,
		inc.DetailsNonce,
		inc.OccurredAt,
		inc.ReportedByID,
		now,
		now,
	).Scan(&inc.ID)

	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}

	inc.CreatedAt = now
	inc.UpdatedAt = now
	return nil
}

// GetByID retrieves an incident by ID within an organization
func (r *IncidentRepository) GetByID(orgID, id uint) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 AND organization_id = $2`

	inc, err := scanIncident(r.db.QueryRow(query, id, orgID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}

	return inc, nil
}

// Update updates an incident
func (r *IncidentRepository) Update(inc *models.Incident) error {
	query := `
		UPDATE incidents
		SET title = $1, severity = $2, status = $3,
		    details_encrypted = $4, details_nonce = $5,
		    occurred_at = $6, resolved_at = $7, updated_at = $8
		WHERE id = $9 AND organization_id = $10
	`

	inc.UpdatedAt = time.Now()
	result, err := r.db.Exec(
		query,
		inc.Title,
		inc.Severity,
		inc.Status,
		inc.DetailsEncrypted,
		inc.DetailsNonce,
		inc.OccurredAt,
		inc.ResolvedAt,
		inc.UpdatedAt,
		inc.ID,
		inc.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrIncidentNotFound
	}

	return nil
}

// Delete deletes an incident
func (r *IncidentRepository) Delete(orgID, id uint) error {
	query := `DELETE FROM incidents WHERE id = $1 AND organization_id = $2`
	result, err := r.db.Exec(query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete incident: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

// ListByOrg retrieves incidents for an organization, optionally
// filtered by lifecycle status.
func (r *IncidentRepository) ListByOrg(orgID uint, status string, limit, offset int) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE organization_id = $1`
	args := []interface{}{orgID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}

	return incidents, rows.Err()
}
