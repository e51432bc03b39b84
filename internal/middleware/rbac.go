package middleware

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// RBACMiddleware enforces organization-scoped role checks on routes
// that carry an {orgID} path parameter.
type RBACMiddleware struct {
	orgRepo *repository.OrganizationRepository
}

// NewRBACMiddleware creates a new RBAC middleware
func NewRBACMiddleware(db *sql.DB) *RBACMiddleware {
	return &RBACMiddleware{
		orgRepo: repository.NewOrganizationRepository(db),
	}
}

// OrgIDFromRequest parses the {orgID} path parameter.
func OrgIDFromRequest(r *http.Request) (uint, error) {
	raw := r.PathValue("orgID")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid organization id")
	}
	return uint(id), nil
}

// RequireMembership rejects users who are neither members of the
// organization in the path nor platform admins.
func (m *RBACMiddleware) RequireMembership(next http.Handler) http.Handler {
	return m.requireAnyOrgRole(next)
}

// RequireOrgRole rejects users whose membership role is not one of the
// listed roles. Platform admins always pass.
func (m *RBACMiddleware) RequireOrgRole(roles ...workflow.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.requireAnyOrgRole(next, roles...)
	}
}

func (m *RBACMiddleware) requireAnyOrgRole(next http.Handler, roles ...workflow.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "User not authenticated")
			return
		}

		orgID, err := OrgIDFromRequest(r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid organization id")
			return
		}

		if user.IsPlatformAdmin {
			next.ServeHTTP(w, r)
			return
		}

		member, err := m.orgRepo.GetMember(orgID, user.ID)
		if err != nil {
			if errors.Is(err, repository.ErrMemberNotFound) {
				respondWithError(w, http.StatusForbidden, "Not a member of this organization")
				return
			}
			respondWithError(w, http.StatusInternalServerError, "Failed to resolve membership")
			return
		}

		if len(roles) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		for _, role := range roles {
			if member.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}

		respondWithError(w, http.StatusForbidden, "Insufficient permissions")
	})
}

// RequirePlatformAdmin restricts a route to platform administrators.
func RequirePlatformAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "User not authenticated")
			return
		}
		if !user.IsPlatformAdmin {
			respondWithError(w, http.StatusForbidden, "Platform admin rights required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
