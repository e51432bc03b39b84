package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// entityTables maps snapshot entity kinds to the table holding the
// workflow columns.
var entityTables = map[string]string{
	workflow.KindRisk:         "risks",
	workflow.KindSoAItem:      "soa_items",
	workflow.KindExemption:    "exemptions",
	workflow.KindRiskRegister: "documents",
	workflow.KindSoADocument:  "documents",
}

// WorkflowStore implements workflow.Store over a DBTX. Services build
// one per transaction so that the entity state change, the snapshot and
// the audit trail commit or roll back together.
type WorkflowStore struct {
	db DBTX
}

// NewWorkflowStore creates a workflow store bound to db, which is
// normally a *sql.Tx.
func NewWorkflowStore(db DBTX) *WorkflowStore {
	return &WorkflowStore{db: db}
}

// SaveWorkflowState writes the entity's approval status and version,
// conditional on the (status, version) pair it was loaded with.
func (s *WorkflowStore) SaveWorkflowState(ctx context.Context, e workflow.Entity, fromStatus workflow.Status, fromVersion workflow.Version) error {
	table, ok := entityTables[e.EntityKind()]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", e.EntityKind())
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET approval_status = $1, version = $2, updated_at = $3
		WHERE id = $4 AND organization_id = $5 AND approval_status = $6 AND version = $7
	`, table)

	result, err := s.db.ExecContext(ctx, query,
		e.ApprovalStatus(),
		e.CurrentVersion(),
		time.Now(),
		e.EntityID(),
		e.OrganizationID(),
		fromStatus,
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return workflow.NewConflictError(e.EntityKind(), e.EntityID())
	}

	return nil
}

// UpsertSnapshot inserts the snapshot or merges it into the existing
// row for (entity_kind, entity_id, version). Non-empty incoming values
// win; empty ones preserve what is already stored, which makes
// re-recording a transition idempotent.
func (s *WorkflowStore) UpsertSnapshot(ctx context.Context, snap *workflow.Snapshot) error {
	query := `
		INSERT INTO version_snapshots (entity_kind, entity_id, organization_id, version, action,
			change_description, actor_name, actor_designation,
			created_by_id, approved_by_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (entity_kind, entity_id, version) DO UPDATE SET
			action = EXCLUDED.action,
			change_description = COALESCE(NULLIF(EXCLUDED.change_description, ''), version_snapshots.change_description),
			actor_name = COALESCE(NULLIF(EXCLUDED.actor_name, ''), version_snapshots.actor_name),
			actor_designation = COALESCE(NULLIF(EXCLUDED.actor_designation, ''), version_snapshots.actor_designation),
			created_by_id = COALESCE(EXCLUDED.created_by_id, version_snapshots.created_by_id),
			approved_by_id = COALESCE(EXCLUDED.approved_by_id, version_snapshots.approved_by_id),
			payload = COALESCE(EXCLUDED.payload, version_snapshots.payload),
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		snap.EntityKind,
		snap.EntityID,
		snap.OrganizationID,
		snap.Version,
		snap.Action,
		snap.ChangeDescription,
		snap.ActorName,
		snap.ActorDesignation,
		snap.CreatedByID,
		snap.ApprovedByID,
		[]byte(snap.Payload),
		now,
	).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	snap.UpdatedAt = now
	return nil
}

// LatestSnapshots returns up to limit snapshots for the entity, newest
// version first.
func (s *WorkflowStore) LatestSnapshots(ctx context.Context, kind string, entityID uint, limit int) ([]workflow.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM version_snapshots
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY version DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, kind, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []workflow.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, *snap)
	}

	return snaps, rows.Err()
}

// DeleteSnapshot removes a snapshot by id. Only the discard-revision
// path calls this.
func (s *WorkflowStore) DeleteSnapshot(ctx context.Context, snapshotID uint) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM version_snapshots WHERE id = $1`, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return workflow.NewNotFoundError("version snapshot", snapshotID)
	}
	return nil
}
