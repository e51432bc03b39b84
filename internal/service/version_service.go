package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// VersionService exposes the version history of any workflow entity.
type VersionService struct {
	db      *sql.DB
	orgRepo *repository.OrganizationRepository
}

// NewVersionService creates a new version history service
func NewVersionService(db *sql.DB) *VersionService {
	return &VersionService{
		db:      db,
		orgRepo: repository.NewOrganizationRepository(db),
	}
}

var versionedKinds = map[string]bool{
	workflow.KindRisk:         true,
	workflow.KindSoAItem:      true,
	workflow.KindExemption:    true,
	workflow.KindRiskRegister: true,
	workflow.KindSoADocument:  true,
}

// ListVersions returns the full history of an entity, newest version
// first. The caller must be a member of the owning organization.
func (s *VersionService) ListVersions(user *models.User, orgID uint, kind string, entityID uint) ([]workflow.Snapshot, error) {
	if !versionedKinds[kind] {
		return nil, workflow.NewValidationError("unknown entity kind")
	}
	if _, err := ResolveActorMember(s.orgRepo, user, orgID); err != nil {
		return nil, err
	}

	snaps, err := repository.NewSnapshotRepository(s.db).ListByEntity(kind, entityID)
	if err != nil {
		return nil, err
	}

	// Snapshots carry the owning org; a mismatched ID under another
	// org's URL must not leak history.
	filtered := snaps[:0]
	for _, snap := range snaps {
		if snap.OrganizationID == orgID {
			filtered = append(filtered, snap)
		}
	}
	return filtered, nil
}

// UpdateVersionDescription corrects the change description of a single
// snapshot. Any org member may amend a history note; the snapshot itself
// is untouched.
func (s *VersionService) UpdateVersionDescription(ctx context.Context, user *models.User, orgID, snapshotID uint, description string) (*workflow.Snapshot, error) {
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	var snap *workflow.Snapshot
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewSnapshotRepository(tx)
		snap, err = repo.GetByID(snapshotID)
		if err == repository.ErrSnapshotNotFound {
			return workflow.NewNotFoundError("version snapshot", snapshotID)
		}
		if err != nil {
			return err
		}
		if snap.OrganizationID != orgID {
			return workflow.NewNotFoundError("version snapshot", snapshotID)
		}
		if err := repo.UpdateDescription(snapshotID, description); err != nil {
			return err
		}
		snap.ChangeDescription = description
		return auditInTx(tx, actor, user.Email, orgID, "update", "version_snapshot",
			fmt.Sprintf("Amended change description for %s %d version %s", snap.EntityKind, snap.EntityID, snap.Version))
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}
