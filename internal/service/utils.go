package service

import (
	"errors"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// ResolveActor builds the workflow actor for a user acting within an
// organization. Non-members get a zero-role actor; platform admins act
// everywhere regardless of membership.
func ResolveActor(orgRepo *repository.OrganizationRepository, user *models.User, orgID uint) (workflow.Actor, error) {
	actor := workflow.Actor{
		UserID:        user.ID,
		Name:          user.FullName(),
		PlatformAdmin: user.IsPlatformAdmin,
	}

	member, err := orgRepo.GetMember(orgID, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return actor, nil
		}
		return workflow.Actor{}, err
	}

	actor.Member = true
	actor.Role = member.Role
	actor.Designation = member.Designation
	return actor, nil
}

// ResolveActorMember is ResolveActor with membership required: only
// members of the organization and platform admins pass.
func ResolveActorMember(orgRepo *repository.OrganizationRepository, user *models.User, orgID uint) (workflow.Actor, error) {
	actor, err := ResolveActor(orgRepo, user, orgID)
	if err != nil {
		return workflow.Actor{}, err
	}
	if !actor.Member && !actor.PlatformAdmin {
		return workflow.Actor{}, workflow.NewAuthorizationError("not a member of this organization")
	}
	return actor, nil
}

// inherentRisk recomputes the stored likelihood x impact score.
func inherentRisk(likelihood, impact int) int {
	return likelihood * impact
}

func validScale(v int) bool {
	return v >= 1 && v <= 5
}
