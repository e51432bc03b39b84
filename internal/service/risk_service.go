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

// RiskTransition is the common shape of the comment-carrying approval
// operations, used by the HTTP layer to share handler plumbing.
type RiskTransition = func(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Risk, *workflow.Snapshot, error)

// RiskService handles business logic for risks, including the
// entity-level approval workflow.
type RiskService struct {
	db      *sql.DB
	orgRepo *repository.OrganizationRepository
	observe func(kind, action string)
	notify  func()
}

// SetNotifier registers a callback invoked after a transition commits,
// typically NotificationService.DeliverAsync.
func (s *RiskService) SetNotifier(notify func()) {
	s.notify = notify
}

// NewRiskService creates a new risk service
func NewRiskService(db *sql.DB, observe func(kind, action string)) *RiskService {
	return &RiskService{
		db:      db,
		orgRepo: repository.NewOrganizationRepository(db),
		observe: observe,
	}
}

func (s *RiskService) engine(store workflow.Store) *workflow.Engine {
	return workflow.NewEngine(store, workflow.RoleGate{}, workflow.WithRetirement(), workflow.WithObserver(s.observe))
}

// RiskInput carries the mutable risk fields
type RiskInput struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Owner         string `json:"owner"`
	Likelihood    int    `json:"likelihood"`
	Impact        int    `json:"impact"`
	TreatmentPlan string `json:"treatment_plan"`
}

func (in *RiskInput) validate() error {
	if in.Title == "" {
		return workflow.NewValidationError("title is required")
	}
	if !validScale(in.Likelihood) {
		return workflow.NewValidationError("likelihood must be between 1 and 5")
	}
	if !validScale(in.Impact) {
		return workflow.NewValidationError("impact must be between 1 and 5")
	}
	return nil
}

// Create inserts a new risk in DRAFT at the initial version and records
// its first snapshot, all in one transaction.
func (s *RiskService) Create(ctx context.Context, user *models.User, orgID uint, in RiskInput) (*models.Risk, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	risk := &models.Risk{
		OrgID:         orgID,
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		Owner:         in.Owner,
		Likelihood:    in.Likelihood,
		Impact:        in.Impact,
		InherentRisk:  inherentRisk(in.Likelihood, in.Impact),
		TreatmentPlan: in.TreatmentPlan,
		CreatedByID:   &user.ID,
	}

	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewRiskRepository(tx).Create(risk); err != nil {
			return err
		}
		eng := s.engine(repository.NewWorkflowStore(tx))
		if _, err := eng.RecordDraft(ctx, risk, actor, ""); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "create", "risk",
			fmt.Sprintf("Created risk %q (ID: %d)", risk.Title, risk.ID))
	})
	if err != nil {
		return nil, err
	}

	return risk, nil
}

// Get retrieves a risk
func (s *RiskService) Get(orgID, id uint) (*models.Risk, error) {
	risk, err := repository.NewRiskRepository(s.db).GetByID(orgID, id)
	if err == repository.ErrRiskNotFound {
		return nil, workflow.NewNotFoundError(workflow.KindRisk, id)
	}
	return risk, err
}

// List retrieves risks for an organization
func (s *RiskService) List(orgID uint, status workflow.Status, limit, offset int) ([]models.Risk, error) {
	if status != "" && !status.Valid() {
		return nil, workflow.NewValidationError("unknown approval status filter")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return repository.NewRiskRepository(s.db).ListByOrg(orgID, status, limit, offset)
}

// Update applies field edits through the mutation guard: editing an
// APPROVED risk demotes it to DRAFT at the same version, in the same
// conditional update.
func (s *RiskService) Update(ctx context.Context, user *models.User, orgID, id uint, in RiskInput) (*models.Risk, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	var risk *models.Risk
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewRiskRepository(tx)
		risk, err = repo.GetByID(orgID, id)
		if err == repository.ErrRiskNotFound {
			return workflow.NewNotFoundError(workflow.KindRisk, id)
		}
		if err != nil {
			return err
		}

		fromStatus, fromVersion := risk.Status, risk.Version
		demoted, err := s.engine(repository.NewWorkflowStore(tx)).GuardEdit(risk, actor)
		if err != nil {
			return err
		}

		risk.Title = in.Title
		risk.Description = in.Description
		risk.Category = in.Category
		risk.Owner = in.Owner
		risk.Likelihood = in.Likelihood
		risk.Impact = in.Impact
		risk.InherentRisk = inherentRisk(in.Likelihood, in.Impact)
		risk.TreatmentPlan = in.TreatmentPlan
		if err := repo.Update(risk, fromStatus, fromVersion); err != nil {
			return err
		}

		details := fmt.Sprintf("Updated risk %q (ID: %d)", risk.Title, risk.ID)
		if demoted {
			details += ", demoted from APPROVED to DRAFT"
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", "risk", details)
	})
	if err != nil {
		return nil, err
	}

	return risk, nil
}

// Delete removes a risk. Only drafts that never entered review may be
// deleted; anything else is part of the audit trail and must be
// retired instead.
func (s *RiskService) Delete(ctx context.Context, user *models.User, orgID, id uint) error {
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return err
	}
	if !actor.CanEdit() {
		return workflow.NewAuthorizationError("viewers cannot delete risks")
	}

	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewRiskRepository(tx)
		risk, err := repo.GetByID(orgID, id)
		if err == repository.ErrRiskNotFound {
			return workflow.NewNotFoundError(workflow.KindRisk, id)
		}
		if err != nil {
			return err
		}
		if risk.Status != workflow.StatusDraft || risk.Version != workflow.InitialVersion {
			return workflow.NewInvalidStateTransitionError("delete", risk.Status)
		}
		if err := repo.Delete(orgID, id); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "delete", "risk",
			fmt.Sprintf("Deleted draft risk %q (ID: %d)", risk.Title, risk.ID))
	})
}

// transition runs one workflow operation in a transaction and returns
// the updated risk plus the snapshot written for it.
func (s *RiskService) transition(
	ctx context.Context,
	user *models.User,
	orgID, id uint,
	auditAction string,
	op func(tx *sql.Tx, eng *workflow.Engine, risk *models.Risk, actor workflow.Actor) (*workflow.Snapshot, error),
	recipients func(tx repository.DBTX, risk *models.Risk) ([]uint, string, error),
) (*models.Risk, *workflow.Snapshot, error) {
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, nil, err
	}

	var (
		risk *models.Risk
		snap *workflow.Snapshot
	)
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		risk, err = repository.NewRiskRepository(tx).GetByID(orgID, id)
		if err == repository.ErrRiskNotFound {
			return workflow.NewNotFoundError(workflow.KindRisk, id)
		}
		if err != nil {
			return err
		}

		eng := s.engine(repository.NewWorkflowStore(tx))
		snap, err = op(tx, eng, risk, actor)
		if err != nil {
			return err
		}

		if err := auditInTx(tx, actor, user.Email, orgID, auditAction, "risk",
			fmt.Sprintf("%s for risk %q (ID: %d, version %s)", snap.Action, risk.Title, risk.ID, risk.Version)); err != nil {
			return err
		}

		if recipients == nil {
			return nil
		}
		users, kind, err := recipients(tx, risk)
		if err != nil {
			return err
		}
		return queueNotifications(tx, users, actor.UserID, models.Notification{
			OrgID:      orgID,
			Kind:       kind,
			EntityKind: workflow.KindRisk,
			EntityID:   risk.ID,
			Subject:    fmt.Sprintf("Risk %q: %s", risk.Title, snap.Action),
			Body:       fmt.Sprintf("%s by %s (version %s).", snap.Action, actor.Name, risk.Version),
		})
	})
	if err != nil {
		return nil, nil, err
	}

	if s.notify != nil {
		s.notify()
	}
	return risk, snap, nil
}

// SubmitForReview moves a draft or rejected risk into the approval
// cycle, notifying the first-stage approvers.
func (s *RiskService) SubmitForReview(ctx context.Context, user *models.User, orgID, id uint, changeDescription string, bump workflow.BumpKind) (*models.Risk, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "submit_for_review",
		func(_ *sql.Tx, eng *workflow.Engine, risk *models.Risk, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.SubmitForReview(ctx, risk, actor, changeDescription, bump)
		},
		func(tx repository.DBTX, _ *models.Risk) ([]uint, string, error) {
			users, err := repository.NewOrganizationRepository(tx).ListApprovers(orgID, false)
			return users, NotificationApprovalRequested, err
		})
}

// FirstApproval records the first of two approvals, notifying the
// second-stage approvers.
func (s *RiskService) FirstApproval(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Risk, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "first_approval",
		func(_ *sql.Tx, eng *workflow.Engine, risk *models.Risk, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.FirstApproval(ctx, risk, actor, comments)
		},
		func(tx repository.DBTX, _ *models.Risk) ([]uint, string, error) {
			users, err := repository.NewOrganizationRepository(tx).ListApprovers(orgID, true)
			return users, NotificationApprovalRequested, err
		})
}

// SecondApproval lands the risk on APPROVED and notifies its creator.
func (s *RiskService) SecondApproval(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Risk, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "second_approval",
		func(_ *sql.Tx, eng *workflow.Engine, risk *models.Risk, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.SecondApproval(ctx, risk, actor, comments)
		},
		creatorRecipient(NotificationApproved))
}

// Reject returns the risk to its author with the reviewer's rationale.
func (s *RiskService) Reject(ctx context.Context, user *models.User, orgID, id uint, reason string) (*models.Risk, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "reject",
		func(_ *sql.Tx, eng *workflow.Engine, risk *models.Risk, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.Reject(ctx, risk, actor, reason)
		},
		creatorRecipient(NotificationRejected))
}

// Retire closes the risk permanently, recording who retired it and why.
func (s *RiskService) Retire(ctx context.Context, user *models.User, orgID, id uint, reason string) (*models.Risk, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "retire",
		func(tx *sql.Tx, eng *workflow.Engine, risk *models.Risk, actor workflow.Actor) (*workflow.Snapshot, error) {
			snap, err := eng.Retire(ctx, risk, actor, reason)
			if err != nil {
				return nil, err
			}
			now := time.Now()
			risk.RetiredReason = &reason
			risk.RetiredByID = &actor.UserID
			risk.RetiredAt = &now
			// The engine already saved the CLOSED status; persist the
			// retirement rationale against the now-current row state.
			return snap, repository.NewRiskRepository(tx).Update(risk, risk.Status, risk.Version)
		},
		nil)
}

// creatorRecipient notifies the user who created the entity, if known.
func creatorRecipient(kind string) func(tx repository.DBTX, risk *models.Risk) ([]uint, string, error) {
	return func(_ repository.DBTX, risk *models.Risk) ([]uint, string, error) {
		if risk.CreatedByID == nil {
			return nil, kind, nil
		}
		return []uint{*risk.CreatedByID}, kind, nil
	}
}
