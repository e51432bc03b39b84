package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/pkg/validator"
)

// VersionHandler handles version history requests
type VersionHandler struct {
	versionService *service.VersionService
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(versionService *service.VersionService) *VersionHandler {
	return &VersionHandler{versionService: versionService}
}

// UpdateDescriptionRequest carries a revised change description for a
// version snapshot.
type UpdateDescriptionRequest struct {
	Description string `json:"description" validate:"required"`
}

// List handles listing the version history of an entity
// @Summary List version history
// @Description List the version snapshots of a risk, SoA item, exemption or document, newest first
// @Tags Versions
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param kind path string true "Entity kind (risk, soa_item, exemption, risk_register, soa_document)"
// @Param id path int true "Entity ID"
// @Success 200 {array} workflow.Snapshot
// @Router /organizations/{orgID}/versions/{kind}/{id} [get]
func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}
	entityID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	snaps, err := h.versionService.ListVersions(user, orgID, r.PathValue("kind"), entityID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, snaps)
}

// UpdateDescription handles editing a snapshot's change description
// @Summary Update a version description
// @Description Revise the change description recorded on a version snapshot
// @Tags Versions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Snapshot ID"
// @Param request body UpdateDescriptionRequest true "New description"
// @Success 200 {object} workflow.Snapshot
// @Router /organizations/{orgID}/versions/{id}/description [put]
func (h *VersionHandler) UpdateDescription(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var req UpdateDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.versionService.UpdateVersionDescription(r.Context(), user, orgID, id, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, snap)
}
