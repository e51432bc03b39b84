package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
	"github.com/cdmx-in/isms-manager-sub001/pkg/validator"
)

// ExemptionHandler handles control exemption requests
type ExemptionHandler struct {
	exemptionService *service.ExemptionService
}

// NewExemptionHandler creates a new exemption handler
func NewExemptionHandler(exemptionService *service.ExemptionService) *ExemptionHandler {
	return &ExemptionHandler{exemptionService: exemptionService}
}

// Create handles creating an exemption
// @Summary Create an exemption
// @Description Create a time-bound exemption from a control in draft state
// @Tags Exemptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body service.ExemptionInput true "Exemption fields"
// @Success 201 {object} models.Exemption
// @Router /organizations/{orgID}/exemptions [post]
func (h *ExemptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var input service.ExemptionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	exemption, err := h.exemptionService.Create(r.Context(), user, orgID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, exemption)
}

// List handles listing exemptions
// @Summary List exemptions
// @Tags Exemptions
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Exemption
// @Router /organizations/{orgID}/exemptions [get]
func (h *ExemptionHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	exemptions, err := h.exemptionService.List(orgID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, exemptions)
}

// Get handles retrieving one exemption
// @Summary Get an exemption
// @Tags Exemptions
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Exemption ID"
// @Success 200 {object} models.Exemption
// @Router /organizations/{orgID}/exemptions/{id} [get]
func (h *ExemptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	exemption, err := h.exemptionService.Get(orgID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, exemption)
}

// Update handles exemption edits
// @Summary Update an exemption
// @Description Update an exemption. Editing an approved exemption demotes it back to draft at the same version.
// @Tags Exemptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Exemption ID"
// @Param request body service.ExemptionInput true "Exemption fields"
// @Success 200 {object} models.Exemption
// @Failure 409 {object} map[string]string "Concurrent modification"
// @Router /organizations/{orgID}/exemptions/{id} [put]
func (h *ExemptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var input service.ExemptionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	exemption, err := h.exemptionService.Update(r.Context(), user, orgID, id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, exemption)
}

// Delete handles deleting a never-reviewed draft exemption
// @Summary Delete a draft exemption
// @Tags Exemptions
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Exemption ID"
// @Success 204 "Deleted"
// @Router /organizations/{orgID}/exemptions/{id} [delete]
func (h *ExemptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	if err := h.exemptionService.Delete(r.Context(), user, orgID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit handles submitting an exemption for review
// @Summary Submit an exemption for review
// @Description Submit a draft exemption. An expiry date must be set before submission.
// @Tags Exemptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Exemption ID"
// @Param request body SubmitRequest true "Change description and version bump"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/exemptions/{id}/submit [post]
func (h *ExemptionHandler) Submit(w http.ResponseWriter, r *http.Request) {
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

	exemption, snap, err := h.exemptionService.SubmitForReview(r.Context(), user, orgID, id, req.ChangeDescription, bump)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"exemption": exemption, "snapshot": snap})
}

// FirstApproval handles the first-stage approval
// @Summary Approve an exemption (first stage)
// @Tags Exemptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Exemption ID"
// @Param request body ApprovalRequest true "Reviewer comments"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/exemptions/{id}/first-approval [post]
func (h *ExemptionHandler) FirstApproval(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.exemptionService.FirstApproval)
}

// SecondApproval handles the final approval
// @Summary Approve an exemption (second stage)
// @Tags Exemptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Exemption ID"
// @Param request body ApprovalRequest true "Approver comments"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/exemptions/{id}/second-approval [post]
func (h *ExemptionHandler) SecondApproval(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.exemptionService.SecondApproval)
}

func (h *ExemptionHandler) approve(w http.ResponseWriter, r *http.Request, op service.ExemptionTransition) {
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

	exemption, snap, err := op(r.Context(), user, orgID, id, req.Comments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"exemption": exemption, "snapshot": snap})
}

// Reject handles rejection
// @Summary Reject an exemption
// @Tags Exemptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Exemption ID"
// @Param request body RejectRequest true "Rejection reason"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/exemptions/{id}/reject [post]
func (h *ExemptionHandler) Reject(w http.ResponseWriter, r *http.Request) {
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

	exemption, snap, err := h.exemptionService.Reject(r.Context(), user, orgID, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"exemption": exemption, "snapshot": snap})
}
