package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/pkg/validator"
)

// ControlHandler handles control catalog requests
type ControlHandler struct {
	controlService *service.ControlService
}

// NewControlHandler creates a new control handler
func NewControlHandler(controlService *service.ControlService) *ControlHandler {
	return &ControlHandler{controlService: controlService}
}

// ControlRequest carries the fields of a catalog control
type ControlRequest struct {
	Code        string `json:"code" validate:"required"`
	Clause      string `json:"clause"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// List handles listing the control catalog
// @Summary List controls
// @Description List the full control catalog, ordered by code
// @Tags Controls
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Control
// @Router /controls [get]
func (h *ControlHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	controls, err := h.controlService.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, controls)
}

// Get handles retrieving one control
// @Summary Get a control
// @Tags Controls
// @Produce json
// @Security BearerAuth
// @Param id path int true "Control ID"
// @Success 200 {object} models.Control
// @Router /controls/{id} [get]
func (h *ControlHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	control, err := h.controlService.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, control)
}

// Create handles adding a control to the catalog
// @Summary Create a control
// @Description Add a control to the shared catalog. Platform admin only.
// @Tags Controls
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ControlRequest true "Control fields"
// @Success 201 {object} models.Control
// @Router /controls [post]
func (h *ControlHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	control := &models.Control{
		Code:        req.Code,
		Clause:      req.Clause,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := h.controlService.Create(user, control); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, control)
}
