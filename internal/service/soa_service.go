package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// SoATransition is the common shape of the comment-carrying approval
// operations, used by the HTTP layer to share handler plumbing.
type SoATransition = func(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.SoAItem, *workflow.Snapshot, error)

// SoAService handles the Statement of Applicability: per-control
// applicability decisions that go through the same approval cycle as
// risks.
type SoAService struct {
	db      *sql.DB
	orgRepo *repository.OrganizationRepository
	observe func(kind, action string)
	notify  func()
}

// SetNotifier registers a callback invoked after a transition commits.
func (s *SoAService) SetNotifier(notify func()) {
	s.notify = notify
}

// NewSoAService creates a new statement of applicability service
func NewSoAService(db *sql.DB, observe func(kind, action string)) *SoAService {
	return &SoAService{
		db:      db,
		orgRepo: repository.NewOrganizationRepository(db),
		observe: observe,
	}
}

func (s *SoAService) engine(store workflow.Store) *workflow.Engine {
	return workflow.NewEngine(store, workflow.RoleGate{}, workflow.WithObserver(s.observe))
}

// SoAItemInput carries the mutable SoA item fields
type SoAItemInput struct {
	ControlID            uint   `json:"control_id"`
	Applicable           bool   `json:"applicable"`
	Justification        string `json:"justification"`
	ImplementationStatus string `json:"implementation_status"`
}

var implementationStatuses = map[string]bool{
	"not_implemented": true,
	"partial":         true,
	"implemented":     true,
}

func (in *SoAItemInput) validate() error {
	if in.ControlID == 0 {
		return workflow.NewValidationError("control_id is required")
	}
	if !in.Applicable && in.Justification == "" {
		return workflow.NewValidationError("justification is required when a control is marked not applicable")
	}
	if in.ImplementationStatus != "" && !implementationStatuses[in.ImplementationStatus] {
		return workflow.NewValidationError("implementation_status must be one of not_implemented, partial, implemented")
	}
	return nil
}

// Create records an applicability decision for a control. One decision
// per control per organization.
func (s *SoAService) Create(ctx context.Context, user *models.User, orgID uint, in SoAItemInput) (*models.SoAItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	if _, err := repository.NewControlRepository(s.db).GetByID(in.ControlID); err != nil {
		if err == repository.ErrControlNotFound {
			return nil, workflow.NewValidationError("unknown control")
		}
		return nil, err
	}

	item := &models.SoAItem{
		OrgID:                orgID,
		ControlID:            in.ControlID,
		Applicable:           in.Applicable,
		Justification:        in.Justification,
		ImplementationStatus: in.ImplementationStatus,
		CreatedByID:          &user.ID,
	}
	if item.ImplementationStatus == "" {
		item.ImplementationStatus = "not_implemented"
	}

	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewSoARepository(tx).Create(item); err != nil {
			if err == repository.ErrSoAItemExists {
				return workflow.NewValidationError("an applicability decision already exists for this control")
			}
			return err
		}
		eng := s.engine(repository.NewWorkflowStore(tx))
		if _, err := eng.RecordDraft(ctx, item, actor, ""); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "create", "soa_item",
			fmt.Sprintf("Created SoA item for control %d (ID: %d)", item.ControlID, item.ID))
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// Get retrieves an SoA item
func (s *SoAService) Get(orgID, id uint) (*models.SoAItem, error) {
	item, err := repository.NewSoARepository(s.db).GetByID(orgID, id)
	if err == repository.ErrSoAItemNotFound {
		return nil, workflow.NewNotFoundError(workflow.KindSoAItem, id)
	}
	return item, err
}

// List retrieves the full statement for an organization, joined with
// the control catalog for display.
func (s *SoAService) List(orgID uint) ([]models.SoAItemWithControl, error) {
	return repository.NewSoARepository(s.db).ListByOrg(orgID)
}

// Update applies field edits, demoting an APPROVED item to DRAFT.
func (s *SoAService) Update(ctx context.Context, user *models.User, orgID, id uint, in SoAItemInput) (*models.SoAItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	var item *models.SoAItem
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewSoARepository(tx)
		item, err = repo.GetByID(orgID, id)
		if err == repository.ErrSoAItemNotFound {
			return workflow.NewNotFoundError(workflow.KindSoAItem, id)
		}
		if err != nil {
			return err
		}
		if in.ControlID != item.ControlID {
			return workflow.NewValidationError("an SoA item cannot be moved to a different control")
		}

		fromStatus, fromVersion := item.Status, item.Version
		demoted, err := s.engine(repository.NewWorkflowStore(tx)).GuardEdit(item, actor)
		if err != nil {
			return err
		}

		item.Applicable = in.Applicable
		item.Justification = in.Justification
		if in.ImplementationStatus != "" {
			item.ImplementationStatus = in.ImplementationStatus
		}
		if err := repo.Update(item, fromStatus, fromVersion); err != nil {
			return err
		}

		details := fmt.Sprintf("Updated SoA item for control %d (ID: %d)", item.ControlID, item.ID)
		if demoted {
			details += ", demoted from APPROVED to DRAFT"
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", "soa_item", details)
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// Delete removes a never-reviewed draft decision.
func (s *SoAService) Delete(ctx context.Context, user *models.User, orgID, id uint) error {
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return err
	}
	if !actor.CanEdit() {
		return workflow.NewAuthorizationError("viewers cannot delete SoA items")
	}

	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewSoARepository(tx)
		item, err := repo.GetByID(orgID, id)
		if err == repository.ErrSoAItemNotFound {
			return workflow.NewNotFoundError(workflow.KindSoAItem, id)
		}
		if err != nil {
			return err
		}
		if item.Status != workflow.StatusDraft || item.Version != workflow.InitialVersion {
			return workflow.NewInvalidStateTransitionError("delete", item.Status)
		}
		if err := repo.Delete(orgID, id); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "delete", "soa_item",
			fmt.Sprintf("Deleted draft SoA item for control %d (ID: %d)", item.ControlID, item.ID))
	})
}

func (s *SoAService) transition(
	ctx context.Context,
	user *models.User,
	orgID, id uint,
	auditAction string,
	op func(eng *workflow.Engine, item *models.SoAItem, actor workflow.Actor) (*workflow.Snapshot, error),
	recipients func(tx repository.DBTX, item *models.SoAItem) ([]uint, string, error),
) (*models.SoAItem, *workflow.Snapshot, error) {
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, nil, err
	}

	var (
		item *models.SoAItem
		snap *workflow.Snapshot
	)
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		item, err = repository.NewSoARepository(tx).GetByID(orgID, id)
		if err == repository.ErrSoAItemNotFound {
			return workflow.NewNotFoundError(workflow.KindSoAItem, id)
		}
		if err != nil {
			return err
		}

		eng := s.engine(repository.NewWorkflowStore(tx))
		snap, err = op(eng, item, actor)
		if err != nil {
			return err
		}

		if err := auditInTx(tx, actor, user.Email, orgID, auditAction, "soa_item",
			fmt.Sprintf("%s for SoA item %d (version %s)", snap.Action, item.ID, item.Version)); err != nil {
			return err
		}

		if recipients == nil {
			return nil
		}
		users, kind, err := recipients(tx, item)
		if err != nil {
			return err
		}
		return queueNotifications(tx, users, actor.UserID, models.Notification{
			OrgID:      orgID,
			Kind:       kind,
			EntityKind: workflow.KindSoAItem,
			EntityID:   item.ID,
			Subject:    fmt.Sprintf("SoA item %d: %s", item.ID, snap.Action),
			Body:       fmt.Sprintf("%s by %s (version %s).", snap.Action, actor.Name, item.Version),
		})
	})
	if err != nil {
		return nil, nil, err
	}

	if s.notify != nil {
		s.notify()
	}
	return item, snap, nil
}

// SubmitForReview moves a draft or rejected SoA item into review.
func (s *SoAService) SubmitForReview(ctx context.Context, user *models.User, orgID, id uint, changeDescription string, bump workflow.BumpKind) (*models.SoAItem, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "submit_for_review",
		func(eng *workflow.Engine, item *models.SoAItem, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.SubmitForReview(ctx, item, actor, changeDescription, bump)
		},
		func(tx repository.DBTX, _ *models.SoAItem) ([]uint, string, error) {
			users, err := repository.NewOrganizationRepository(tx).ListApprovers(orgID, false)
			return users, NotificationApprovalRequested, err
		})
}

// FirstApproval records the first-stage approval.
func (s *SoAService) FirstApproval(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.SoAItem, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "first_approval",
		func(eng *workflow.Engine, item *models.SoAItem, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.FirstApproval(ctx, item, actor, comments)
		},
		func(tx repository.DBTX, _ *models.SoAItem) ([]uint, string, error) {
			users, err := repository.NewOrganizationRepository(tx).ListApprovers(orgID, true)
			return users, NotificationApprovalRequested, err
		})
}

// SecondApproval lands the item on APPROVED.
func (s *SoAService) SecondApproval(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.SoAItem, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "second_approval",
		func(eng *workflow.Engine, item *models.SoAItem, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.SecondApproval(ctx, item, actor, comments)
		},
		soaCreatorRecipient(NotificationApproved))
}

// Reject returns the item to its author.
func (s *SoAService) Reject(ctx context.Context, user *models.User, orgID, id uint, reason string) (*models.SoAItem, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "reject",
		func(eng *workflow.Engine, item *models.SoAItem, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.Reject(ctx, item, actor, reason)
		},
		soaCreatorRecipient(NotificationRejected))
}

func soaCreatorRecipient(kind string) func(tx repository.DBTX, item *models.SoAItem) ([]uint, string, error) {
	return func(_ repository.DBTX, item *models.SoAItem) ([]uint, string, error) {
		if item.CreatedByID == nil {
			return nil, kind, nil
		}
		return []uint{*item.CreatedByID}, kind, nil
	}
}
