package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// DocumentTransition is the common shape of the comment-carrying
// approval operations, used by the HTTP layer to share handler plumbing.
type DocumentTransition = func(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Document, *workflow.Snapshot, error)

// DocumentService handles the org-level governance documents, the risk
// register and the SoA document. Unlike entity approvals, document
// approvals are gated on the reviewer and approver designated on the
// organization, and documents support explicit revision cycles.
type DocumentService struct {
	db      *sql.DB
	orgRepo *repository.OrganizationRepository
	observe func(kind, action string)
	notify  func()
}

// SetNotifier registers a callback invoked after a transition commits.
func (s *DocumentService) SetNotifier(notify func()) {
	s.notify = notify
}

// NewDocumentService creates a new document service
func NewDocumentService(db *sql.DB, observe func(kind, action string)) *DocumentService {
	return &DocumentService{
		db:      db,
		orgRepo: repository.NewOrganizationRepository(db),
		observe: observe,
	}
}

// engine builds a document engine whose approval gate is read from the
// organization row inside the caller's transaction.
func (s *DocumentService) engine(tx repository.DBTX, orgID uint) (*workflow.Engine, error) {
	org, err := repository.NewOrganizationRepository(tx).GetByID(orgID)
	if err == repository.ErrOrganizationNotFound {
		return nil, workflow.NewNotFoundError("organization", orgID)
	}
	if err != nil {
		return nil, err
	}
	gate := workflow.DesignatedGate{ReviewerID: org.ReviewerID, ApproverID: org.ApproverID}
	return workflow.NewEngine(repository.NewWorkflowStore(tx), gate,
		workflow.WithRevisions(), workflow.WithObserver(s.observe)), nil
}

// DocumentInput carries the mutable document fields
type DocumentInput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (in *DocumentInput) validate() error {
	if in.Title == "" {
		return workflow.NewValidationError("title is required")
	}
	return nil
}

func validDocumentKind(kind string) bool {
	return kind == workflow.KindRiskRegister || kind == workflow.KindSoADocument
}

// Create starts a new document in DRAFT at the initial version.
func (s *DocumentService) Create(ctx context.Context, user *models.User, orgID uint, kind string, in DocumentInput) (*models.Document, error) {
	if !validDocumentKind(kind) {
		return nil, workflow.NewValidationError("kind must be risk_register or soa_document")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		OrgID:       orgID,
		Kind:        kind,
		Title:       in.Title,
		Summary:     in.Summary,
		CreatedByID: &user.ID,
	}

	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewDocumentRepository(tx).Create(doc); err != nil {
			return err
		}
		eng, err := s.engine(tx, orgID)
		if err != nil {
			return err
		}
		if _, err := eng.RecordDraft(ctx, doc, actor, ""); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "create", doc.Kind,
			fmt.Sprintf("Created document %q (ID: %d)", doc.Title, doc.ID))
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// Get retrieves a document
func (s *DocumentService) Get(orgID, id uint) (*models.Document, error) {
	doc, err := repository.NewDocumentRepository(s.db).GetByID(orgID, id)
	if err == repository.ErrDocumentNotFound {
		return nil, workflow.NewNotFoundError("document", id)
	}
	return doc, err
}

// List retrieves documents for an organization, optionally filtered by
// kind.
func (s *DocumentService) List(orgID uint, kind string) ([]models.Document, error) {
	if kind != "" && !validDocumentKind(kind) {
		return nil, workflow.NewValidationError("kind must be risk_register or soa_document")
	}
	return repository.NewDocumentRepository(s.db).ListByOrg(orgID, kind)
}

// Update applies field edits, demoting an APPROVED document to DRAFT.
func (s *DocumentService) Update(ctx context.Context, user *models.User, orgID, id uint, in DocumentInput) (*models.Document, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}

	var doc *models.Document
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewDocumentRepository(tx)
		doc, err = repo.GetByID(orgID, id)
		if err == repository.ErrDocumentNotFound {
			return workflow.NewNotFoundError("document", id)
		}
		if err != nil {
			return err
		}

		fromStatus, fromVersion := doc.Status, doc.Version
		eng, err := s.engine(tx, orgID)
		if err != nil {
			return err
		}
		demoted, err := eng.GuardEdit(doc, actor)
		if err != nil {
			return err
		}

		doc.Title = in.Title
		doc.Summary = in.Summary
		if err := repo.Update(doc, fromStatus, fromVersion); err != nil {
			return err
		}

		details := fmt.Sprintf("Updated document %q (ID: %d)", doc.Title, doc.ID)
		if demoted {
			details += ", demoted from APPROVED to DRAFT"
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", doc.Kind, details)
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func (s *DocumentService) transition(
	ctx context.Context,
	user *models.User,
	orgID, id uint,
	auditAction string,
	op func(eng *workflow.Engine, doc *models.Document, actor workflow.Actor) (*workflow.Snapshot, error),
	recipients func(tx repository.DBTX, doc *models.Document) ([]uint, string, error),
) (*models.Document, *workflow.Snapshot, error) {
	actor, err := ResolveActor(s.orgRepo, user, orgID)
	if err != nil {
		return nil, nil, err
	}

	var (
		doc  *models.Document
		snap *workflow.Snapshot
	)
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		doc, err = repository.NewDocumentRepository(tx).GetByID(orgID, id)
		if err == repository.ErrDocumentNotFound {
			return workflow.NewNotFoundError("document", id)
		}
		if err != nil {
			return err
		}

		eng, err := s.engine(tx, orgID)
		if err != nil {
			return err
		}
		snap, err = op(eng, doc, actor)
		if err != nil {
			return err
		}

		if err := auditInTx(tx, actor, user.Email, orgID, auditAction, doc.Kind,
			fmt.Sprintf("%s for document %q (ID: %d, version %s)", snap.Action, doc.Title, doc.ID, doc.Version)); err != nil {
			return err
		}

		if recipients == nil {
			return nil
		}
		users, kind, err := recipients(tx, doc)
		if err != nil {
			return err
		}
		return queueNotifications(tx, users, actor.UserID, models.Notification{
			OrgID:      orgID,
			Kind:       kind,
			EntityKind: doc.Kind,
			EntityID:   doc.ID,
			Subject:    fmt.Sprintf("Document %q: %s", doc.Title, snap.Action),
			Body:       fmt.Sprintf("%s by %s (version %s).", snap.Action, actor.Name, doc.Version),
		})
	})
	if err != nil {
		return nil, nil, err
	}

	if s.notify != nil {
		s.notify()
	}
	return doc, snap, nil
}

// designatedRecipients notifies the organization's designated reviewer
// or approver, falling back to the org admins when none is designated.
func designatedRecipients(second bool) func(tx repository.DBTX, doc *models.Document) ([]uint, string, error) {
	return func(tx repository.DBTX, doc *models.Document) ([]uint, string, error) {
		orgRepo := repository.NewOrganizationRepository(tx)
		org, err := orgRepo.GetByID(doc.OrgID)
		if err != nil {
			return nil, NotificationApprovalRequested, err
		}
		designated := org.ReviewerID
		if second {
			designated = org.ApproverID
		}
		if designated != nil {
			return []uint{*designated}, NotificationApprovalRequested, nil
		}
		admins, err := orgRepo.ListAdmins(doc.OrgID)
		return admins, NotificationApprovalRequested, err
	}
}

// SubmitForReview moves a draft or rejected document into review.
func (s *DocumentService) SubmitForReview(ctx context.Context, user *models.User, orgID, id uint, changeDescription string, bump workflow.BumpKind) (*models.Document, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "submit_for_review",
		func(eng *workflow.Engine, doc *models.Document, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.SubmitForReview(ctx, doc, actor, changeDescription, bump)
		},
		designatedRecipients(false))
}

// FirstApproval records the designated reviewer's sign-off.
func (s *DocumentService) FirstApproval(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Document, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "first_approval",
		func(eng *workflow.Engine, doc *models.Document, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.FirstApproval(ctx, doc, actor, comments)
		},
		designatedRecipients(true))
}

// SecondApproval records the designated approver's sign-off, landing
// the document on APPROVED.
func (s *DocumentService) SecondApproval(ctx context.Context, user *models.User, orgID, id uint, comments string) (*models.Document, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "second_approval",
		func(eng *workflow.Engine, doc *models.Document, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.SecondApproval(ctx, doc, actor, comments)
		},
		documentCreatorRecipient(NotificationApproved))
}

// Reject returns the document to its author.
func (s *DocumentService) Reject(ctx context.Context, user *models.User, orgID, id uint, reason string) (*models.Document, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "reject",
		func(eng *workflow.Engine, doc *models.Document, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.Reject(ctx, doc, actor, reason)
		},
		documentCreatorRecipient(NotificationRejected))
}

// NewRevision opens a fresh draft revision of an APPROVED document.
func (s *DocumentService) NewRevision(ctx context.Context, user *models.User, orgID, id uint, changeDescription string, bump workflow.BumpKind) (*models.Document, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "new_revision",
		func(eng *workflow.Engine, doc *models.Document, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.NewRevision(ctx, doc, actor, changeDescription, bump)
		},
		nil)
}

// DiscardRevision abandons a never-submitted draft revision, rolling
// the document back to its previously approved version.
func (s *DocumentService) DiscardRevision(ctx context.Context, user *models.User, orgID, id uint) (*models.Document, *workflow.Snapshot, error) {
	return s.transition(ctx, user, orgID, id, "discard_revision",
		func(eng *workflow.Engine, doc *models.Document, actor workflow.Actor) (*workflow.Snapshot, error) {
			return eng.DiscardRevision(ctx, doc, actor)
		},
		nil)
}

func documentCreatorRecipient(kind string) func(tx repository.DBTX, doc *models.Document) ([]uint, string, error) {
	return func(_ repository.DBTX, doc *models.Document) ([]uint, string, error) {
		if doc.CreatedByID == nil {
			return nil, kind, nil
		}
		return []uint{*doc.CreatedByID}, kind, nil
	}
}
