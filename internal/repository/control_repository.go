package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
)

var ErrControlNotFound = errors.New("control not found")

// ControlRepository handles the global control catalog
type ControlRepository struct {
	db DBTX
}

// NewControlRepository creates a new control repository
func NewControlRepository(db DBTX) *ControlRepository {
	return &ControlRepository{db: db}
}

// Create inserts a control catalog row
func (r *ControlRepository) Create(control *models.Control) error {
	query := `
		INSERT INTO controls (code, clause, title, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, control.Code, control.Clause, control.Title, control.Description, now, now).Scan(&control.ID)
	if err != nil {
		return fmt.Errorf("failed to create control: %w", err)
	}

	control.CreatedAt = now
	control.UpdatedAt = now
	return nil
}

// GetByID retrieves a control by ID
func (r *ControlRepository) GetByID(id uint) (*models.Control, error) {
	query := `
		SELECT id, code, clause, title, description, created_at, updated_at
		FROM controls
		WHERE id = $1
	`

	control := &models.Control{}
	err := r.db.QueryRow(query, id).Scan(
		&control.ID,
		&control.Code,
		&control.Clause,
		&control.Title,
		&control.Description,
		&control.CreatedAt,
		&control.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrControlNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get control: %w", err)
	}

	return control, nil
}

// GetByCode retrieves a control by its catalog code
func (r *ControlRepository) GetByCode(code string) (*models.Control, error) {
	query := `
		SELECT id, code, clause, title, description, created_at, updated_at
		FROM controls
		WHERE code = $1
	`

	control := &models.Control{}
	err := r.db.QueryRow(query, code).Scan(
		&control.ID,
		&control.Code,
		&control.Clause,
		&control.Title,
		&control.Description,
		&control.CreatedAt,
		&control.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrControlNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get control by code: %w", err)
	}

	return control, nil
}

// GetAll retrieves the full control catalog ordered by code
func (r *ControlRepository) GetAll() ([]models.Control, error) {
	query := `
		SELECT id, code, clause, title, description, created_at, updated_at
		FROM controls
		ORDER BY code
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get controls: %w", err)
	}
	defer rows.Close()

	var controls []models.Control
	for rows.Next() {
		var control models.Control
		if err := rows.Scan(
			&control.ID,
			&control.Code,
			&control.Clause,
			&control.Title,
			&control.Description,
			&control.CreatedAt,
			&control.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan control: %w", err)
		}
		controls = append(controls, control)
	}

	return controls, rows.Err()
}
