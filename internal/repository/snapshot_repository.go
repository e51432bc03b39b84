package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

var ErrSnapshotNotFound = errors.New("version snapshot not found")

// SnapshotRepository handles version snapshot reads and the one
// permitted post-hoc mutation (the change description).
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, entity_kind, entity_id, organization_id, version, action,
	       change_description, actor_name, actor_designation,
	       created_by_id, approved_by_id, payload, created_at, updated_at`

func scanSnapshot(scan func(...interface{}) error) (*workflow.Snapshot, error) {
	snap := &workflow.Snapshot{}
	err := scan(
		&snap.ID,
		&snap.EntityKind,
		&snap.EntityID,
		&snap.OrganizationID,
		&snap.Version,
		&snap.Action,
		&snap.ChangeDescription,
		&snap.ActorName,
		&snap.ActorDesignation,
		&snap.CreatedByID,
		&snap.ApprovedByID,
		&snap.Payload,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ListByEntity returns all snapshots for an entity, newest version first.
func (r *SnapshotRepository) ListByEntity(kind string, entityID uint) ([]workflow.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM version_snapshots
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY version DESC`

	rows, err := r.db.Query(query, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
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

// GetByID retrieves a snapshot by ID
func (r *SnapshotRepository) GetByID(id uint) (*workflow.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM version_snapshots WHERE id = $1`

	snap, err := scanSnapshot(r.db.QueryRow(query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return snap, nil
}

// UpdateDescription corrects a snapshot's change description. The rest
// of the snapshot is write-once.
func (r *SnapshotRepository) UpdateDescription(id uint, description string) error {
	query := `
		UPDATE version_snapshots
		SET change_description = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.Exec(query, description, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update snapshot description: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrSnapshotNotFound
	}

	return nil
}
