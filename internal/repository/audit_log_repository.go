package repository

import (
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
)

// AuditLogRepository handles audit log database operations
type AuditLogRepository struct {
	db DBTX
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db DBTX) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create inserts an audit log entry
func (r *AuditLogRepository) Create(entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, user_email, organization_id, action, resource, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(
		query,
		entry.UserID,
		entry.UserEmail,
		entry.OrgID,
		entry.Action,
		entry.Resource,
		entry.Details,
		entry.IPAddress,
		entry.UserAgent,
		now,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}

	entry.CreatedAt = now
	return nil
}

// AuditLogFilters holds filter parameters for audit log queries
type AuditLogFilters struct {
	UserID   *uint
	OrgID    *uint
	Action   string
	Resource string
	From     *time.Time
	To       *time.Time
}

// List retrieves audit log entries matching the filters, newest first
func (r *AuditLogRepository) List(filters AuditLogFilters, limit, offset int) ([]models.AuditLog, error) {
	query := `
		SELECT id, user_id, user_email, organization_id, action, resource, details, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE 1=1
	`

	args := []interface{}{}
	argPos := 1

	if filters.UserID != nil {
		query += fmt.Sprintf(` AND user_id = $%d`, argPos)
		args = append(args, *filters.UserID)
		argPos++
	}
	if filters.OrgID != nil {
		query += fmt.Sprintf(` AND organization_id = $%d`, argPos)
		args = append(args, *filters.OrgID)
		argPos++
	}
	if filters.Action != "" {
		query += fmt.Sprintf(` AND action = $%d`, argPos)
		args = append(args, filters.Action)
		argPos++
	}
	if filters.Resource != "" {
		query += fmt.Sprintf(` AND resource = $%d`, argPos)
		args = append(args, filters.Resource)
		argPos++
	}
	if filters.From != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, argPos)
		args = append(args, *filters.From)
		argPos++
	}
	if filters.To != nil {
		query += fmt.Sprintf(` AND created_at <= $%d`, argPos)
		args = append(args, *filters.To)
		argPos++
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.UserEmail,
			&entry.OrgID,
			&entry.Action,
			&entry.Resource,
			&entry.Details,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
