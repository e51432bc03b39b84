package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// runInTx wraps fn in a database transaction. The entity update, the
// snapshot upsert, the audit row and any notification outbox rows all
// commit or roll back together. Cancelling ctx aborts the transaction.
func runInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			slog.Error("Failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// auditInTx records an audit log entry within the transaction.
func auditInTx(tx repository.DBTX, actor workflow.Actor, email string, orgID uint, action, resource, details string) error {
	entry := &models.AuditLog{
		UserID:   &actor.UserID,
		Action:   action,
		Resource: resource,
		Details:  details,
	}
	if email != "" {
		entry.UserEmail = &email
	}
	if orgID != 0 {
		entry.OrgID = &orgID
	}
	return repository.NewAuditLogRepository(tx).Create(entry)
}

// queueNotifications writes one outbox row per recipient. The actor
// never notifies themselves.
func queueNotifications(tx repository.DBTX, recipients []uint, actorID uint, template models.Notification) error {
	repo := repository.NewNotificationRepository(tx)
	for _, userID := range recipients {
		if userID == actorID {
			continue
		}
		n := template
		n.UserID = userID
		if err := repo.Create(&n); err != nil {
			return err
		}
	}
	return nil
}
