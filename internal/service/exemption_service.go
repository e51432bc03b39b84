package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// ExemptionTransition is the common shape of the comment-carrying
// approval operations, used by the HTTP layer to share handler plumbing.
type ExemptionTransition = func(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Exemption, *workflow.Snapshot, error)

// ExemptionService handles time-bound exemptions from controls. They
// follow the same two-stage approval cycle; expiry is handled by the
// scheduler, which warns before an approved exemption lapses.
type ExemptionService struct {
	db      *sql.DB
	orgRepo *repository.OrganizationRepository
	observe func(kind, action string)
	notify  func()
}

// SetNotifier registers a callback invoked after a transition commits.
func (s *ExemptionService) SetNotifier(notify func()) {
	s.notify = notify
}

// NewExemptionService creates a new exemption service
func NewExemptionService(db *sql.DB, observe func(kind, action string)) *ExemptionService {
	return &ExemptionService{
		db:      db,
		orgRepo: repository.NewOrganizationRepository(db),
		observe: observe,
	}
}

func (s *ExemptionService) engine(store workflow.Store) *workflow.Engine {
	return workflow.NewEngine(store, workflow.RoleGate{}, workflow.WithObserver(s.observe))
}

// ExemptionInput carries the mutable exemption fields
type ExemptionInput struct {
	Title         string     `json:"title"`
	ControlID     *uint      `json:"control_id,omitempty"`
	Justification string     `json:"justification"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (in *ExemptionInput) validate() error {
	if in.Title == "" {
		return workflow.NewValidationError("title is required")
	}
	if in.Justification == "" {
		return workflow.NewValidationError("justification is required")
	}
	if in.ExpiresAt != nil && in.ExpiresAt.Before(time.Now()) {
		return workflow.NewValidationError("expires_at must be in the future")
	}
	return nil
}

// Create records a new exemption in DRAFT.
func (s *ExemptionService) Create(ctx context.Context, user *models.User, orgID uint, in ExemptionInput) (*models.Exemption, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	if in.ControlID != nil {
		if _, err := repository.NewControlRepository(s.db).GetByID(*in.ControlID); err != nil {
			if err == repository.ErrControlNotFound {
				return nil, workflow.NewValidationError("unknown control")
			}
			return nil, err
		}
	}

	ex := &models.Exemption{
		OrgID:         orgID,
		Title:         in.Title,
		ControlID:     in.ControlID,
		Justification: in.Justification,
		ExpiresAt:     in.ExpiresAt,
		CreatedByID:   &user.ID,
	}

	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewExemptionRepository(tx).Create(ex); err != nil {
			return err
		}
		eng := s.engine(repository.NewWorkflowStore(tx))
		if _, err := eng.RecordDraft(ctx, ex, actor, ""); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "create", "exemption",
			fmt.Sprintf("Created exemption %q (ID: %d)", ex.Title, ex.ID))
	})
	if err != nil {
		return nil, err
	}

	return ex, nil
}

// Get retrieves an exemption
func (s *ExemptionService) Get(orgID, id uint) (*models.Exemption, error) {
	ex, err := repository.NewExemptionRepository(s.db).GetByID(orgID, id)
	if err == repository.ErrExemptionNotFound {
		return nil, workflow.NewNotFoundError(workflow.KindExemption, id)
	}
	return ex, err
}

// List retrieves exemptions for an organization
func (s *ExemptionService) List(orgID uint, limit, offset int) ([]models.Exemption, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return repository.NewExemptionRepository(s.db).ListByOrg(orgID, limit, offset)
}

// Update applies field edits, demoting an APPROVED exemption to DRAFT.
func (s *ExemptionService) Update(ctx context.Context, user *models.User, orgID, id uint, in ExemptionInput) (*models.Exemption, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	var ex *models.Exemption
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewExemptionRepository(tx)
		ex, err = repo.GetByID(orgID, id)
		if err == repository.ErrExemptionNotFound {
			return workflow.NewNotFoundError(workflow.KindExemption, id)
		}
		if err != nil {
			return err
		}

		fromStatus, fromVersion := ex.Status, ex.Version
		demoted, err := s.engine(repository.NewWorkflowStore(tx)).GuardEdit(ex, actor)
		if err != nil {
			return err
		}

		ex.Title = in.Title
		ex.ControlID = in.ControlID
		ex.Justification = in.Justification
		ex.ExpiresAt = in.ExpiresAt
		if err := repo.Update(ex, fromStatus, fromVersion); err != nil {
			return err
		}

		details := fmt.Sprintf("Updated exemption %q (ID: %d)", ex.Title, ex.ID)
		if demoted {
			details += ", demoted from APPROVED to DRAFT"
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", "exemption", details)
	})
	if err != nil {
		return nil, err
	}

	return ex, nil
}

// Delete removes a never-reviewed draft exemption.
func (s *ExemptionService) Delete(ctx context.Context, user *models.User, orgID, id uint) error {
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return err
	}
	if !actor.CanEdit() {
		return workflow.NewAuthorizationError("viewers cannot delete exemptions")
	}

	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewExemptionRepository(tx)
		ex, err := repo.GetByID(orgID, id)
		if err == repository.ErrExemptionNotFound {
			return workflow.NewNotFoundError(workflow.KindExemption, id)
		}
		if err != nil {
			return err
		}
		if ex.Status != workflow.StatusDraft || ex.Version != workflow.InitialVersion {
			return workflow.NewInvalidStateTransitionError("delete", ex.Status)
		}
		if err := repo.Delete(orgID, id); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "delete", "exemption",
			fmt.Sprintf("Deleted draft exemption %q (ID: %d)", ex.Title, ex.ID))
	})
}

func (s *ExemptionService) transition(
	ctx context.Context,
	user *models.User,
	orgID, id uint,
	auditAction string,
	op func(eng *workflow.Engine, ex *models.Exemption, actor workflow.Actor) (*workflow.Snapshot, error),
	recipients func(tx repository.DBTX, ex *models.Exemption) ([]uint, string, error),
) (*models.Exemption, *workflow.Snapshot, error) {
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, nil, err
	}

	var (
		ex   *models.Exemption
		snap *workflow.Snapshot
	)
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		ex, err = repository.NewExemptionRepository(tx).GetByID(orgID, id)
		if err == repository.ErrExemptionNotFound {
			return workflow.NewNotFoundError(workflow.KindExemption, id)
		}
		if err != nil {
			return err
		}

		eng := s.engine(repository.NewWorkflowStore(tx))
		snap, err = op(eng, ex, actor)
		if err != nil {
			return err
		}

		if err := auditInTx(tx, actor, user.Email, orgID, auditAction, "exemption",
			fmt.Sprintf("%s for exemption %q (ID: %d, version %s)", snap.Action, ex.Title, ex.ID, ex.Version)); err != nil {
			return err
		}

		if recipients == nil {
			return nil
		}
		users, kind, err := recipients(tx, ex)
		if err != nil {
			return err
		}
		return queueNotifications(tx, users, actor.UserID, models.Notification{
			OrgID:      orgID,
			Kind:       kind,
			EntityKind: workflow.KindExemption,
			EntityID:   ex.ID,
			Subject:    fmt.Sprintf("Exemption %q: %s", ex.Title, snap.Action),
			Body:       fmt.Sprintf("%s by %s (version %s).", snap.Action, actor.Name, ex.Version),
		})
	})
	if err != nil {
		return nil, nil, err
	}

	if s.notify != nil {
		s.notify()
	}
	return ex, snap, nil
}

// SubmitForReview moves a draft or rejected exemption into review. An
// expiry date is required before an exemption can be put forward.
func (s *ExemptionService) SubmitForReview(ctx context.Context, user *models.User, orgID, id uint, changeDescription string, bump workflow.BumpKind) (*models.Exemption, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "submit_for_review",
		func(eng *workflow.Engine, ex *models.Exemption, actor workflow.Actor) (*workflow.Snapshot, error) {
			if ex.ExpiresAt == nil {
				return nil, workflow.NewValidationError("an expiry date is required before submitting an exemption")
			}
			return eng.SubmitForReview(ctx, ex, actor, changeDescription, bump)
		},
		func(tx repository.DBTX, _ *models.Exemption) ([]uint, string, error) {
			users, err := repository.NewOrganizationRepository(tx).ListApprovers(orgID, false)
			return users, NotificationApprovalRequested, err
		})
}

// FirstApproval records the first-stage approval.
func (s *ExemptionService) FirstApproval(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Exemption, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "first_approval",
		func(eng *workflow.Engine, ex *models.Exemption, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.FirstApproval(ctx, ex, actor, comments)
		},
		func(tx repository.DBTX, _ *models.Exemption) ([]uint, string, error) {
			users, err := repository.NewOrganizationRepository(tx).ListApprovers(orgID, true)
			return users, NotificationApprovalRequested, err
		})
}

// SecondApproval lands the exemption on APPROVED.
func (s *ExemptionService) SecondApproval(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Exemption, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "second_approval",
		func(eng *workflow.Engine, ex *models.Exemption, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.SecondApproval(ctx, ex, actor, comments)
		},
		exemptionCreatorRecipient(NotificationApproved))
}

// Reject returns the exemption to its author.
func (s *ExemptionService) Reject(ctx context.Context, user *models.User, orgID, id uint, reason string) (*models.Exemption, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "reject",
		func(eng *workflow.Engine, ex *models.Exemption, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.Reject(ctx, ex, actor, reason)
		},
		exemptionCreatorRecipient(NotificationRejected))
}

func exemptionCreatorRecipient(kind string) func(tx repository.DBTX, ex *models.Exemption) ([]uint, string, error) {
	return func(_ repository.DBTX, ex *models.Exemption) ([]uint, string, error) {
		if ex.CreatedByID == nil {
			return nil, kind, nil
		}
		return []uint{*ex.CreatedByID}, kind, nil
	}
}
