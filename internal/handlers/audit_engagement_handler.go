package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
)

// AuditEngagementHandler handles audit engagement requests
type AuditEngagementHandler struct {
	engagementService *service.AuditEngagementService
}

// NewAuditEngagementHandler creates a new audit engagement handler
func NewAuditEngagementHandler(engagementService *service.AuditEngagementService) *AuditEngagementHandler {
	return &AuditEngagementHandler{engagementService: engagementService}
}

// Create handles scheduling an audit engagement
// @Summary Create an audit engagement
// @Description Schedule an internal or external audit engagement
// @Tags AuditEngagements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body service.AuditEngagementInput true "Engagement fields"
// @Success 201 {object} models.AuditEngagement
// @Router /organizations/{orgID}/audits [post]
func (h *AuditEngagementHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var input service.AuditEngagementInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	engagement, err := h.engagementService.Create(r.Context(), user, orgID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, engagement)
}

// List handles listing audit engagements
// @Summary List audit engagements
// @Tags AuditEngagements
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Success 200 {array} models.AuditEngagement
// @Router /organizations/{orgID}/audits [get]
func (h *AuditEngagementHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	engagements, err := h.engagementService.List(user, orgID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, engagements)
}

// Get handles retrieving one audit engagement
// @Summary Get an audit engagement
// @Tags AuditEngagements
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Engagement ID"
// @Success 200 {object} models.AuditEngagement
// @Router /organizations/{orgID}/audits/{id} [get]
func (h *AuditEngagementHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	engagement, err := h.engagementService.Get(user, orgID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, engagement)
}

// Update handles audit engagement edits
// @Summary Update an audit engagement
// @Tags AuditEngagements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Engagement ID"
// @Param request body service.AuditEngagementInput true "Engagement fields"
// @Success 200 {object} models.AuditEngagement
// @Router /organizations/{orgID}/audits/{id} [put]
func (h *AuditEngagementHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var input service.AuditEngagementInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	engagement, err := h.engagementService.Update(r.Context(), user, orgID, id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, engagement)
}

// Delete handles deleting an audit engagement
// @Summary Delete an audit engagement
// @Description Delete an audit engagement. Requires organization admin.
// @Tags AuditEngagements
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Engagement ID"
// @Success 204 "Deleted"
// @Router /organizations/{orgID}/audits/{id} [delete]
func (h *AuditEngagementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	if err := h.engagementService.Delete(r.Context(), user, orgID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
