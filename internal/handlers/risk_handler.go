package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
	"github.com/cdmx-in/isms-manager-sub001/pkg/validator"
)

// RiskHandler handles risk requests including workflow transitions
type RiskHandler struct {
	riskService *service.RiskService
}

// NewRiskHandler creates a new risk handler
func NewRiskHandler(riskService *service.RiskService) *RiskHandler {
	return &RiskHandler{riskService: riskService}
}

// Create handles risk creation
// @Summary Create a risk
// @Description Record a new risk in DRAFT at version 0.1
// @Tags Risks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body service.RiskInput true "Risk fields"
// @Success 201 {object} models.Risk
// @Router /organizations/{orgID}/risks [post]
func (h *RiskHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var input service.RiskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	risk, err := h.riskService.Create(r.Context(), user, orgID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, risk)
}

// List handles risk listing
// @Summary List risks
// @Description List an organization's risks ordered by inherent risk, optionally filtered by approval status
// @Tags Risks
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param status query string false "Approval status filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Risk
// @Router /organizations/{orgID}/risks [get]
func (h *RiskHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	risks, err := h.riskService.List(orgID,
		workflow.Status(r.URL.Query().Get("status")),
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, risks)
}

// Get handles retrieving one risk
// @Summary Get a risk
// @Tags Risks
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Risk ID"
// @Success 200 {object} models.Risk
// @Router /organizations/{orgID}/risks/{id} [get]
func (h *RiskHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	risk, err := h.riskService.Get(orgID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, risk)
}

// Update handles risk field edits
// @Summary Update a risk
// @Description Edit risk fields. Editing an APPROVED risk demotes it to DRAFT at the same version.
// @Tags Risks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Risk ID"
// @Param request body service.RiskInput true "Risk fields"
// @Success 200 {object} models.Risk
// @Failure 409 {object} map[string]string "Concurrent modification"
// @Router /organizations/{orgID}/risks/{id} [put]
func (h *RiskHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var input service.RiskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	risk, err := h.riskService.Update(r.Context(), user, orgID, id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, risk)
}

// Delete handles deleting a never-reviewed draft risk
// @Summary Delete a draft risk
// @Tags Risks
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Risk ID"
// @Success 204 "Deleted"
// @Router /organizations/{orgID}/risks/{id} [delete]
func (h *RiskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	if err := h.riskService.Delete(r.Context(), user, orgID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit handles submitting a risk for review
// @Summary Submit a risk for review
// @Tags Risks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Risk ID"
// @Param request body SubmitRequest true "Change description and version bump"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/risks/{id}/submit [post]
func (h *RiskHandler) Submit(w http.ResponseWriter, r *http.Request) {
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

	risk, snap, err := h.riskService.SubmitForReview(r.Context(), user, orgID, id, req.ChangeDescription, bump)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"risk": risk, "snapshot": snap})
}

// FirstApproval handles the first-stage approval
// @Summary Approve a risk (first stage)
// @Tags Risks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Risk ID"
// @Param request body ApprovalRequest true "Reviewer comments"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/risks/{id}/first-approval [post]
func (h *RiskHandler) FirstApproval(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.riskService.FirstApproval)
}

// SecondApproval handles the final approval
// @Summary Approve a risk (second stage)
// @Tags Risks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Risk ID"
// @Param request body ApprovalRequest true "Approver comments"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/risks/{id}/second-approval [post]
func (h *RiskHandler) SecondApproval(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.riskService.SecondApproval)
}

func (h *RiskHandler) approve(w http.ResponseWriter, r *http.Request, op service.RiskTransition) {
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

	risk, snap, err := op(r.Context(), user, orgID, id, req.Comments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"risk": risk, "snapshot": snap})
}

// Reject handles rejection
// @Summary Reject a risk
// @Tags Risks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Risk ID"
// @Param request body RejectRequest true "Rejection reason"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/risks/{id}/reject [post]
func (h *RiskHandler) Reject(w http.ResponseWriter, r *http.Request) {
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

	risk, snap, err := h.riskService.Reject(r.Context(), user, orgID, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"risk": risk, "snapshot": snap})
}

// Retire handles risk retirement
// @Summary Retire a risk
// @Description Close a risk permanently. Closed risks cannot be edited or reopened.
// @Tags Risks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Risk ID"
// @Param request body RetireRequest true "Retirement reason"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/risks/{id}/retire [post]
func (h *RiskHandler) Retire(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var req RetireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	risk, snap, err := h.riskService.Retire(r.Context(), user, orgID, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"risk": risk, "snapshot": snap})
}
