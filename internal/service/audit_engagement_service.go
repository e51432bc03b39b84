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

// AuditEngagementService handles scheduled internal and external
// audits. Engagements are plain records; they do not go through the
// approval workflow.
type AuditEngagementService struct {
	db      *sql.DB
	orgRepo *repository.OrganizationRepository
}

// NewAuditEngagementService creates a new audit engagement service
func NewAuditEngagementService(db *sql.DB) *AuditEngagementService {
	return &AuditEngagementService{
		db:      db,
		orgRepo: repository.NewOrganizationRepository(db),
	}
}

var engagementTypes = map[string]bool{
	"internal": true,
	"external": true,
}

var engagementStatuses = map[string]bool{
	"planned":     true,
	"in_progress": true,
	"completed":   true,
}

// AuditEngagementInput carries the mutable engagement fields
type AuditEngagementInput struct {
	Title          string     `json:"title"`
	Type           string     `json:"type"`
	Auditor        string     `json:"auditor"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	Status         string     `json:"status"`
	OutcomeSummary string     `json:"outcome_summary"`
}

func (in *AuditEngagementInput) validate() error {
	if in.Title == "" {
		return workflow.NewValidationError("title is required")
	}
	if !engagementTypes[in.Type] {
		return workflow.NewValidationError("type must be internal or external")
	}
	if in.Status != "" && !engagementStatuses[in.Status] {
		return workflow.NewValidationError("status must be one of planned, in_progress, completed")
	}
	if in.ScheduledStart != nil && in.ScheduledEnd != nil && in.ScheduledEnd.Before(*in.ScheduledStart) {
		return workflow.NewValidationError("scheduled_end must not be before scheduled_start")
	}
	return nil
}

// Create schedules a new engagement.
func (s *AuditEngagementService) Create(ctx context.Context, user *models.User, orgID uint, in AuditEngagementInput) (*models.AuditEngagement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}
	if !actor.CanEdit() {
		return nil, workflow.NewAuthorizationError("viewers cannot schedule audits")
	}

	eng := &models.AuditEngagement{
		OrgID:          orgID,
		Title:          in.Title,
		Type:           in.Type,
		Auditor:        in.Auditor,
		ScheduledStart: in.ScheduledStart,
		ScheduledEnd:   in.ScheduledEnd,
		Status:         in.Status,
		OutcomeSummary: in.OutcomeSummary,
		CreatedByID:    &user.ID,
	}
	if eng.Status == "" {
		eng.Status = "planned"
	}

	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewAuditEngagementRepository(tx).Create(eng); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "create", "audit_engagement",
			fmt.Sprintf("Scheduled %s audit %q (ID: %d)", eng.Type, eng.Title, eng.ID))
	})
	if err != nil {
		return nil, err
	}

	return eng, nil
}

// Get retrieves an engagement
func (s *AuditEngagementService) Get(user *models.User, orgID, id uint) (*models.AuditEngagement, error) {
	if _, err := ResolveActorMember(s.orgRepo, user, orgID); err != nil {
		return nil, err
	}
	eng, err := repository.NewAuditEngagementRepository(s.db).GetByID(orgID, id)
	if err == repository.ErrAuditEngagementNotFound {
		return nil, workflow.NewNotFoundError("audit engagement", id)
	}
	return eng, err
}

// List retrieves engagements for an organization
func (s *AuditEngagementService) List(user *models.User, orgID uint) ([]models.AuditEngagement, error) {
	if _, err := ResolveActorMember(s.orgRepo, user, orgID); err != nil {
		return nil, err
	}
	return repository.NewAuditEngagementRepository(s.db).ListByOrg(orgID)
}

// Update applies field edits to an engagement.
func (s *AuditEngagementService) Update(ctx context.Context, user *models.User, orgID, id uint, in AuditEngagementInput) (*models.AuditEngagement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}
	if !actor.CanEdit() {
		return nil, workflow.NewAuthorizationError("viewers cannot update audits")
	}

	var eng *models.AuditEngagement
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewAuditEngagementRepository(tx)
		eng, err = repo.GetByID(orgID, id)
		if err == repository.ErrAuditEngagementNotFound {
			return workflow.NewNotFoundError("audit engagement", id)
		}
		if err != nil {
			return err
		}

		eng.Title = in.Title
		eng.Type = in.Type
		eng.Auditor = in.Auditor
		eng.ScheduledStart = in.ScheduledStart
		eng.ScheduledEnd = in.ScheduledEnd
		if in.Status != "" {
			eng.Status = in.Status
		}
		eng.OutcomeSummary = in.OutcomeSummary

		if err := repo.Update(eng); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", "audit_engagement",
			fmt.Sprintf("Updated audit %q (ID: %d, status %s)", eng.Title, eng.ID, eng.Status))
	})
	if err != nil {
		return nil, err
	}

	return eng, nil
}

// Delete removes an engagement. Restricted to org admins.
func (s *AuditEngagementService) Delete(ctx context.Context, user *models.User, orgID, id uint) error {
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return err
	}
	if !actor.PlatformAdmin && actor.Role != workflow.RoleAdmin {
		return workflow.NewAuthorizationError("only admins can delete audit engagements")
	}

	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewAuditEngagementRepository(tx)
		eng, err := repo.GetByID(orgID, id)
		if err == repository.ErrAuditEngagementNotFound {
			return workflow.NewNotFoundError("audit engagement", id)
		}
		if err != nil {
			return err
		}
		if err := repo.Delete(orgID, id); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "delete", "audit_engagement",
			fmt.Sprintf("Deleted audit %q (ID: %d)", eng.Title, eng.ID))
	})
}
