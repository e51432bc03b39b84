package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// OrganizationService handles organizations, membership and the
// designated reviewer and approver used by document approvals.
type OrganizationService struct {
	db       *sql.DB
	orgRepo  *repository.OrganizationRepository
	userRepo *repository.UserRepository
}

// NewOrganizationService creates a new organization service
func NewOrganizationService(db *sql.DB) *OrganizationService {
	return &OrganizationService{
		db:       db,
		orgRepo:  repository.NewOrganizationRepository(db),
		userRepo: repository.NewUserRepository(db),
	}
}

// requireAdmin resolves the actor and requires org admin or platform
// admin rights.
func (s *OrganizationService) requireAdmin(user *models.User, orgID uint) (workflow.Actor, error) {
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return workflow.Actor{}, err
	}
	if !actor.PlatformAdmin && actor.Role != workflow.RoleAdmin {
		return workflow.Actor{}, workflow.NewAuthorizationError("organization admin rights required")
	}
	return actor, nil
}

// Create makes a new organization with the creating user as its first
// admin.
func (s *OrganizationService) Create(ctx context.Context, user *models.User, name string, description *string) (*models.Organization, error) {
	if name == "" {
		return nil, workflow.NewValidationError("name is required")
	}

	org := &models.Organization{
		Name:        name,
		Description: description,
	}

	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		orgRepo := repository.NewOrganizationRepository(tx)
		if err := orgRepo.Create(org); err != nil {
			return err
		}
		if err := orgRepo.AddMember(&models.OrganizationMember{
			OrganizationID: org.ID,
			UserID:         user.ID,
			Role:           workflow.RoleAdmin,
		}); err != nil {
			return err
		}
		actor := workflow.Actor{UserID: user.ID, Name: user.FullName(), Role: workflow.RoleAdmin, Member: true}
		return auditInTx(tx, actor, user.Email, org.ID, "create", "organization",
			fmt.Sprintf("Created organization %q (ID: %d)", org.Name, org.ID))
	})
	if err != nil {
		return nil, err
	}

	return org, nil
}

// Get retrieves an organization. Members only.
func (s *OrganizationService) Get(user *models.User, orgID uint) (*models.Organization, error) {
	if _, err := ResolveActorMember(s.orgRepo, user, orgID); err != nil {
		return nil, err
	}
	org, err := s.orgRepo.GetByID(orgID)
	if err == repository.ErrOrganizationNotFound {
		return nil, workflow.NewNotFoundError("organization", orgID)
	}
	return org, err
}

// ListForUser retrieves the organizations the user belongs to. Platform
// admins see all organizations.
func (s *OrganizationService) ListForUser(user *models.User) ([]models.Organization, error) {
	if user.IsPlatformAdmin {
		return s.orgRepo.GetAll()
	}
	return s.orgRepo.GetForUser(user.ID)
}

// Update changes the organization's name and description.
func (s *OrganizationService) Update(ctx context.Context, user *models.User, orgID uint, name string, description *string) (*models.Organization, error) {
	if name == "" {
		return nil, workflow.NewValidationError("name is required")
	}
	actor, err := s.requireAdmin(user, orgID)
	if err != nil {
		return nil, err
	}

	var org *models.Organization
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		orgRepo := repository.NewOrganizationRepository(tx)
		org, err = orgRepo.GetByID(orgID)
		if err == repository.ErrOrganizationNotFound {
			return workflow.NewNotFoundError("organization", orgID)
		}
		if err != nil {
			return err
		}
		org.Name = name
		org.Description = description
		if err := orgRepo.Update(org); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", "organization",
			fmt.Sprintf("Updated organization %q (ID: %d)", org.Name, org.ID))
	})
	if err != nil {
		return nil, err
	}

	return org, nil
}

// Delete removes an organization and everything in it. Platform admins
// only; deletion cascades through the schema.
func (s *OrganizationService) Delete(ctx context.Context, user *models.User, orgID uint) error {
	if !user.IsPlatformAdmin {
		return workflow.NewAuthorizationError("only platform admins can delete organizations")
	}

	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		orgRepo := repository.NewOrganizationRepository(tx)
		org, err := orgRepo.GetByID(orgID)
		if err == repository.ErrOrganizationNotFound {
			return workflow.NewNotFoundError("organization", orgID)
		}
		if err != nil {
			return err
		}
		if err := orgRepo.Delete(orgID); err != nil {
			return err
		}
		actor := workflow.Actor{UserID: user.ID, Name: user.FullName(), PlatformAdmin: true}
		return auditInTx(tx, actor, user.Email, orgID, "delete", "organization",
			fmt.Sprintf("Deleted organization %q (ID: %d)", org.Name, org.ID))
	})
}

// AddMember adds a user to the organization with the given role.
func (s *OrganizationService) AddMember(ctx context.Context, user *models.User, orgID, userID uint, role workflow.Role, designation string) (*models.OrganizationMember, error) {
	if !role.Valid() {
		return nil, workflow.NewValidationError("role must be one of viewer, member, local_admin, admin")
	}
	actor, err := s.requireAdmin(user, orgID)
	if err != nil {
		return nil, err
	}

	target, err := s.userRepo.GetByID(userID)
	if err == repository.ErrUserNotFound {
		return nil, workflow.NewNotFoundError("user", userID)
	}
	if err != nil {
		return nil, err
	}

	member := &models.OrganizationMember{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		Designation:    designation,
	}

	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewOrganizationRepository(tx).AddMember(member); err != nil {
			if err == repository.ErrMemberExists {
				return workflow.NewValidationError("user is already a member of this organization")
			}
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "create", "organization_member",
			fmt.Sprintf("Added %s as %s", target.Email, role))
	})
	if err != nil {
		return nil, err
	}

	return member, nil
}

// UpdateMember changes a member's role or designation.
func (s *OrganizationService) UpdateMember(ctx context.Context, user *models.User, orgID, userID uint, role workflow.Role, designation string) (*models.OrganizationMember, error) {
	if !role.Valid() {
		return nil, workflow.NewValidationError("role must be one of viewer, member, local_admin, admin")
	}
	actor, err := s.requireAdmin(user, orgID)
	if err != nil {
		return nil, err
	}

	var member *models.OrganizationMember
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		orgRepo := repository.NewOrganizationRepository(tx)
		member, err = orgRepo.GetMember(orgID, userID)
		if err == repository.ErrMemberNotFound {
			return workflow.NewNotFoundError("organization member", userID)
		}
		if err != nil {
			return err
		}
		member.Role = role
		member.Designation = designation
		if err := orgRepo.UpdateMember(member); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", "organization_member",
			fmt.Sprintf("Changed role of user %d to %s", userID, role))
	})
	if err != nil {
		return nil, err
	}

	return member, nil
}

// RemoveMember removes a user from the organization. A designated
// reviewer or approver must be undesignated first.
func (s *OrganizationService) RemoveMember(ctx context.Context, user *models.User, orgID, userID uint) error {
	actor, err := s.requireAdmin(user, orgID)
	if err != nil {
		return err
	}

	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		orgRepo := repository.NewOrganizationRepository(tx)
		org, err := orgRepo.GetByID(orgID)
		if err != nil {
			return err
		}
		if (org.ReviewerID != nil && *org.ReviewerID == userID) ||
			(org.ApproverID != nil && *org.ApproverID == userID) {
			return workflow.NewValidationError("user is the designated reviewer or approver; reassign before removing")
		}
		if err := orgRepo.RemoveMember(orgID, userID); err != nil {
			if err == repository.ErrMemberNotFound {
				return workflow.NewNotFoundError("organization member", userID)
			}
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "delete", "organization_member",
			fmt.Sprintf("Removed user %d from organization", userID))
	})
}

// ListMembers retrieves the organization's members with user details.
func (s *OrganizationService) ListMembers(user *models.User, orgID uint) ([]models.MemberWithUser, error) {
	if _, err := ResolveActorMember(s.orgRepo, user, orgID); err != nil {
		return nil, err
	}
	return s.orgRepo.ListMembers(orgID)
}

// DesignateApprovers sets the organization's document reviewer and
// approver. Both must be members; either may be nil to clear the
// designation, which falls document gating back to org admins.
func (s *OrganizationService) DesignateApprovers(ctx context.Context, user *models.User, orgID uint, reviewerID, approverID *uint) (*models.Organization, error) {
	actor, err := s.requireAdmin(user, orgID)
	if err != nil {
		return nil, err
	}
	if reviewerID != nil && approverID != nil && *reviewerID == *approverID {
		return nil, workflow.NewValidationError("reviewer and approver must be different users")
	}

	var org *models.Organization
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		orgRepo := repository.NewOrganizationRepository(tx)
		org, err = orgRepo.GetByID(orgID)
		if err == repository.ErrOrganizationNotFound {
			return workflow.NewNotFoundError("organization", orgID)
		}
		if err != nil {
			return err
		}

		for _, id := range []*uint{reviewerID, approverID} {
			if id == nil {
				continue
			}
			if _, err := orgRepo.GetMember(orgID, *id); err != nil {
				if err == repository.ErrMemberNotFound {
					return workflow.NewValidationError("designated users must be members of the organization")
				}
				return err
			}
		}

		org.ReviewerID = reviewerID
		org.ApproverID = approverID
		if err := orgRepo.Update(org); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", "organization",
			"Updated designated document reviewer and approver")
	})
	if err != nil {
		return nil, err
	}

	return org, nil
}
