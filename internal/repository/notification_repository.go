package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository handles the notification outbox. Rows are
// inserted in the same transaction as the change they announce; the
// delivery pass runs after commit.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification outbox row
func (r *NotificationRepository) Create(n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, organization_id, kind, entity_kind, entity_id, subject, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(
		query,
		n.UserID,
		n.OrgID,
		n.Kind,
		n.EntityKind,
		n.EntityID,
		n.Subject,
		n.Body,
		now,
	).Scan(&n.ID)

	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	n.CreatedAt = now
	return nil
}

// ListForUser retrieves notifications for a user, newest first
func (r *NotificationRepository) ListForUser(userID uint, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, organization_id, kind, entity_kind, entity_id, subject, body, read_at, delivered_at, created_at
		FROM notifications
		WHERE user_id = $1
	`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.OrgID,
			&n.Kind,
			&n.EntityKind,
			&n.EntityID,
			&n.Subject,
			&n.Body,
			&n.ReadAt,
			&n.DeliveredAt,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkRead marks a notification as read by its owner
func (r *NotificationRepository) MarkRead(userID, id uint) error {
	query := `
		UPDATE notifications
		SET read_at = $1
		WHERE id = $2 AND user_id = $3 AND read_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// ListUndelivered retrieves notifications that have not been emailed yet
func (r *NotificationRepository) ListUndelivered(limit int) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, organization_id, kind, entity_kind, entity_id, subject, body, read_at, delivered_at, created_at
		FROM notifications
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.OrgID,
			&n.Kind,
			&n.EntityKind,
			&n.EntityID,
			&n.Subject,
			&n.Body,
			&n.ReadAt,
			&n.DeliveredAt,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkDelivered records that a notification email went out
func (r *NotificationRepository) MarkDelivered(id uint) error {
	query := `UPDATE notifications SET delivered_at = $1 WHERE id = $2`
	_, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return nil
}
