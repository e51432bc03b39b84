package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
	"github.com/cdmx-in/isms-manager-sub001/pkg/validator"
)

// SoAHandler handles statement of applicability requests
type SoAHandler struct {
	soaService *service.SoAService
}

// NewSoAHandler creates a new SoA handler
func NewSoAHandler(soaService *service.SoAService) *SoAHandler {
	return &SoAHandler{soaService: soaService}
}

// Create handles recording an applicability decision
// @Summary Create an SoA item
// @Description Record an applicability decision for a control. One decision per control per organization.
// @Tags StatementOfApplicability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body service.SoAItemInput true "SoA item fields"
// @Success 201 {object} models.SoAItem
// @Router /organizations/{orgID}/soa [post]
func (h *SoAHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var input service.SoAItemInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	item, err := h.soaService.Create(r.Context(), user, orgID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, item)
}

// List handles listing the statement of applicability
// @Summary List SoA items
// @Description List all applicability decisions joined with the control catalog
// @Tags StatementOfApplicability
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Success 200 {array} models.SoAItemWithControl
// @Router /organizations/{orgID}/soa [get]
func (h *SoAHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	items, err := h.soaService.List(orgID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, items)
}

// Get handles retrieving one SoA item
// @Summary Get an SoA item
// @Tags StatementOfApplicability
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "SoA item ID"
// @Success 200 {object} models.SoAItem
// @Router /organizations/{orgID}/soa/{id} [get]
func (h *SoAHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	item, err := h.soaService.Get(orgID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, item)
}

// Update handles SoA item edits
// @Summary Update an SoA item
// @Tags StatementOfApplicability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "SoA item ID"
// @Param request body service.SoAItemInput true "SoA item fields"
// @Success 200 {object} models.SoAItem
// @Failure 409 {object} map[string]string "Concurrent modification"
// @Router /organizations/{orgID}/soa/{id} [put]
func (h *SoAHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var input service.SoAItemInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	item, err := h.soaService.Update(r.Context(), user, orgID, id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, item)
}

// Delete handles deleting a never-reviewed draft item
// @Summary Delete a draft SoA item
// @Tags StatementOfApplicability
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "SoA item ID"
// @Success 204 "Deleted"
// @Router /organizations/{orgID}/soa/{id} [delete]
func (h *SoAHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	if err := h.soaService.Delete(r.Context(), user, orgID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit handles submitting an SoA item for review
// @Summary Submit an SoA item for review
// @Tags StatementOfApplicability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "SoA item ID"
// @Param request body SubmitRequest true "Change description and version bump"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/soa/{id}/submit [post]
func (h *SoAHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	bump, err := workflow.ParseBumpKind(req.Bump)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	item, snap, err := h.soaService.SubmitForReview(r.Context(), user, orgID, id, req.ChangeDescription, bump)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"soa_item": item, "snapshot": snap})
}

// FirstApproval handles the first-stage approval
// @Summary Approve an SoA item (first stage)
// @Tags StatementOfApplicability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "SoA item ID"
// @Param request body ApprovalRequest true "Reviewer comments"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/soa/{id}/first-approval [post]
func (h *SoAHandler) FirstApproval(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.soaService.FirstApproval)
}

// SecondApproval handles the final approval
// @Summary Approve an SoA item (second stage)
// @Tags StatementOfApplicability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "SoA item ID"
// @Param request body ApprovalRequest true "Approver comments"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/soa/{id}/second-approval [post]
func (h *SoAHandler) SecondApproval(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.soaService.SecondApproval)
}

func (h *SoAHandler) approve(w http.ResponseWriter, r *http.Request, op service.SoATransition) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var req ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	item, snap, err := op(r.Context(), user, orgID, id, req.Comments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"soa_item": item, "snapshot": snap})
}

// Reject handles rejection
// @Summary Reject an SoA item
// @Tags StatementOfApplicability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "SoA item ID"
// @Param request body RejectRequest true "Rejection reason"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/soa/{id}/reject [post]
func (h *SoAHandler) Reject(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, snap, err := h.soaService.Reject(r.Context(), user, orgID, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"soa_item": item, "snapshot": snap})
}
