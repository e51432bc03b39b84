package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository handles governance document database operations
type DocumentRepository struct {
	db DBTX
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db DBTX) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, organization_id, kind, title, summary,
	       approval_status, version, created_by_id, created_at, updated_at`

func scanDocument(scan func(...interface{}) error) (*models.Document, error) {
	doc := &models.Document{}
	err := scan(
		&doc.ID,
		&doc.OrgID,
		&doc.Kind,
		&doc.Title,
		&doc.Summary,
		&doc.Status,
		&doc.Version,
		&doc.CreatedByID,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Create inserts a new document in DRAFT at the initial version
func (r *DocumentRepository) Create(doc *models.Document) error {
	query := `
		INSERT INTO documents (organization_id, kind, title, summary,
			approval_status, version, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	doc.Status = workflow.StatusDraft
	doc.Version = workflow.InitialVersion
	err := r.db.QueryRow(
		query,
		doc.OrgID,
		doc.Kind,
		doc.Title,
		doc.Summary,
		doc.Status,
		doc.Version,
		doc.CreatedByID,
		now,
		now,
	).Scan(&doc.ID)

	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// GetByID retrieves a document by ID within an organization
func (r *DocumentRepository) GetByID(orgID, id uint) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND organization_id = $2`

	doc, err := scanDocument(r.db.QueryRow(query, id, orgID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// Update writes all mutable fields plus the workflow columns,
// conditional on the previously loaded (status, version) pair.
func (r *DocumentRepository) Update(doc *models.Document, fromStatus workflow.Status, fromVersion workflow.Version) error {
	query := `
		UPDATE documents
		SET title = $1, summary = $2, approval_status = $3, version = $4, updated_at = $5
		WHERE id = $6 AND organization_id = $7 AND approval_status = $8 AND version = $9
	`

	doc.UpdatedAt = time.Now()
	result, err := r.db.Exec(
		query,
		doc.Title,
		doc.Summary,
		doc.Status,
		doc.Version,
		doc.UpdatedAt,
		doc.ID,
		doc.OrgID,
		fromStatus,
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return workflow.NewConflictError(doc.Kind, doc.ID)
	}

	return nil
}

// Delete deletes a document
func (r *DocumentRepository) Delete(orgID, id uint) error {
	query := `DELETE FROM documents WHERE id = $1 AND organization_id = $2`
	result, err := r.db.Exec(query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// ListByOrg retrieves documents for an organization, optionally
// filtered by kind.
func (r *DocumentRepository) ListByOrg(orgID uint, kind string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE organization_id = $1`
	args := []interface{}{orgID}

	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}
	query += ` ORDER BY kind, title`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}

	return docs, rows.Err()
}
