package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
	"github.com/cdmx-in/isms-manager-sub001/pkg/validator"
)

// OrganizationHandler handles organization and membership requests
type OrganizationHandler struct {
	orgService *service.OrganizationService
}

// NewOrganizationHandler creates a new organization handler
func NewOrganizationHandler(orgService *service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService}
}

// OrganizationRequest represents an organization create/update request
type OrganizationRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
}

// MemberRequest represents a membership create/update request
type MemberRequest struct {
	UserID      uint   `json:"user_id"`
	Role        string `json:"role" validate:"required"`
	Designation string `json:"designation"`
}

// DesignateRequest sets the designated document reviewer and approver
type DesignateRequest struct {
	ReviewerID *uint `json:"reviewer_id,omitempty"`
	ApproverID *uint `json:"approver_id,omitempty"`
}

// Create handles organization creation
// @Summary Create an organization
// @Tags Organizations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body OrganizationRequest true "Organization details"
// @Success 201 {object} models.Organization
// @Router /organizations [post]
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req OrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	org, err := h.orgService.Create(r.Context(), user, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, org)
}

// List handles listing the user's organizations
// @Summary List organizations
// @Tags Organizations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Organization
// @Router /organizations [get]
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	orgs, err := h.orgService.ListForUser(user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, orgs)
}

// Get handles retrieving one organization
// @Summary Get an organization
// @Tags Organizations
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Success 200 {object} models.Organization
// @Router /organizations/{orgID} [get]
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	org, err := h.orgService.Get(user, orgID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, org)
}

// Update handles organization updates
// @Summary Update an organization
// @Tags Organizations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body OrganizationRequest true "Organization details"
// @Success 200 {object} models.Organization
// @Router /organizations/{orgID} [put]
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var req OrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	org, err := h.orgService.Update(r.Context(), user, orgID, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, org)
}

// Delete handles organization deletion
// @Summary Delete an organization
// @Tags Organizations
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Success 204 "Deleted"
// @Router /organizations/{orgID} [delete]
func (h *OrganizationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	if err := h.orgService.Delete(r.Context(), user, orgID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers handles listing organization members
// @Summary List members
// @Tags Organizations
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Success 200 {array} models.MemberWithUser
// @Router /organizations/{orgID}/members [get]
func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	members, err := h.orgService.ListMembers(user, orgID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, members)
}

// AddMember handles adding a member
// @Summary Add a member
// @Tags Organizations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body MemberRequest true "Member details"
// @Success 201 {object} models.OrganizationMember
// @Router /organizations/{orgID}/members [post]
func (h *OrganizationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if req.UserID == 0 {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	member, err := h.orgService.AddMember(r.Context(), user, orgID, req.UserID, workflow.Role(req.Role), req.Designation)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, member)
}

// UpdateMember handles changing a member's role
// @Summary Update a member
// @Tags Organizations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "User ID"
// @Param request body MemberRequest true "Member details"
// @Success 200 {object} models.OrganizationMember
// @Router /organizations/{orgID}/members/{id} [put]
func (h *OrganizationHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, userID, ok := orgScope(w, r)
	if !ok {
		return
	}

	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	member, err := h.orgService.UpdateMember(r.Context(), user, orgID, userID, workflow.Role(req.Role), req.Designation)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, member)
}

// RemoveMember handles removing a member
// @Summary Remove a member
// @Tags Organizations
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "User ID"
// @Success 204 "Removed"
// @Router /organizations/{orgID}/members/{id} [delete]
func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, userID, ok := orgScope(w, r)
	if !ok {
		return
	}

	if err := h.orgService.RemoveMember(r.Context(), user, orgID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Designate handles setting the designated reviewer and approver
// @Summary Designate document reviewer and approver
// @Tags Organizations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body DesignateRequest true "Designations"
// @Success 200 {object} models.Organization
// @Router /organizations/{orgID}/designations [put]
func (h *OrganizationHandler) Designate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var req DesignateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	org, err := h.orgService.DesignateApprovers(r.Context(), user, orgID, req.ReviewerID, req.ApproverID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, org)
}
