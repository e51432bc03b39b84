package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
)

// IncidentHandler handles security incident requests
type IncidentHandler struct {
	incidentService *service.IncidentService
}

// NewIncidentHandler creates a new incident handler
func NewIncidentHandler(incidentService *service.IncidentService) *IncidentHandler {
	return &IncidentHandler{incidentService: incidentService}
}

// Report handles reporting an incident
// @Summary Report an incident
// @Description Report a security incident. Incident details are encrypted at rest.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body service.IncidentInput true "Incident fields"
// @Success 201 {object} models.Incident
// @Router /organizations/{orgID}/incidents [post]
func (h *IncidentHandler) Report(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var input service.IncidentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	incident, err := h.incidentService.Report(r.Context(), user, orgID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, incident)
}

// List handles listing incidents
// @Summary List incidents
// @Description List incidents for an organization. Encrypted details are omitted from list responses.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Incident
// @Router /organizations/{orgID}/incidents [get]
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	incidents, err := h.incidentService.List(user, orgID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, incidents)
}

// Get handles retrieving one incident with decrypted details
// @Summary Get an incident
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Incident ID"
// @Success 200 {object} models.Incident
// @Router /organizations/{orgID}/incidents/{id} [get]
func (h *IncidentHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	incident, err := h.incidentService.Get(user, orgID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, incident)
}

// Update handles incident edits
// @Summary Update an incident
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Incident ID"
// @Param request body service.IncidentInput true "Incident fields"
// @Success 200 {object} models.Incident
// @Router /organizations/{orgID}/incidents/{id} [put]
func (h *IncidentHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var input service.IncidentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	incident, err := h.incidentService.Update(r.Context(), user, orgID, id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, incident)
}

// Delete handles deleting an incident
// @Summary Delete an incident
// @Description Delete an incident. Requires organization admin.
// @Tags Incidents
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Incident ID"
// @Success 204 "Deleted"
// @Router /organizations/{orgID}/incidents/{id} [delete]
func (h *IncidentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	if err := h.incidentService.Delete(r.Context(), user, orgID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
