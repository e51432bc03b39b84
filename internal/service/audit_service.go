package service

import (
	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// AuditService handles audit logging outside of workflow transactions
// and audit trail queries. Workflow mutations write their audit rows
// inside the same transaction instead.
type AuditService struct {
	auditRepo *repository.AuditLogRepository
	orgRepo   *repository.OrganizationRepository
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo *repository.AuditLogRepository, orgRepo *repository.OrganizationRepository) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		orgRepo:   orgRepo,
	}
}

// Log creates an audit log entry, ignoring errors
// This is the recommended way to log audit events as it won't fail the main operation
func (s *AuditService) Log(userID uint, email string, action, resource, details string) {
	_ = s.auditRepo.Create(&models.AuditLog{
		UserID:    &userID,
		UserEmail: &email,
		Action:    action,
		Resource:  resource,
		Details:   details,
	})
}

// List returns audit log entries for an organization, newest first.
// Restricted to org admins and platform admins.
func (s *AuditService) List(user *models.User, orgID uint, filters repository.AuditLogFilters, limit, offset int) ([]models.AuditLog, error) {
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}
	if !actor.PlatformAdmin && actor.Role != workflow.RoleAdmin && actor.Role != workflow.RoleLocalAdmin {
		return nil, workflow.NewAuthorizationError("admin rights required to read the audit trail")
	}

	filters.OrgID = &orgID
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.auditRepo.List(filters, limit, offset)
}
