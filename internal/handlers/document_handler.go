package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
	"github.com/cdmx-in/isms-manager-sub001/pkg/validator"
)

// DocumentHandler handles governance document requests
type DocumentHandler struct {
	documentService *service.DocumentService
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentService *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// DocumentCreateRequest is the create payload. Kind selects between
// the risk register and the SoA document.
type DocumentCreateRequest struct {
	Kind    string `json:"kind" validate:"required"`
	Title   string `json:"title" validate:"required"`
	Summary string `json:"summary"`
}

// Create handles creating a governance document
// @Summary Create a document
// @Description Create a risk register or SoA document in draft state
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param request body DocumentCreateRequest true "Document fields"
// @Success 201 {object} models.Document
// @Router /organizations/{orgID}/documents [post]
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	var req DocumentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.documentService.Create(r.Context(), user, orgID, req.Kind, service.DocumentInput{
		Title:   req.Title,
		Summary: req.Summary,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, doc)
}

// List handles listing documents
// @Summary List documents
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param kind query string false "Filter by kind (risk_register or soa_document)"
// @Success 200 {array} models.Document
// @Router /organizations/{orgID}/documents [get]
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	docs, err := h.documentService.List(orgID, r.URL.Query().Get("kind"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, docs)
}

// Get handles retrieving one document
// @Summary Get a document
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Document ID"
// @Success 200 {object} models.Document
// @Router /organizations/{orgID}/documents/{id} [get]
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	doc, err := h.documentService.Get(orgID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, doc)
}

// Update handles document edits
// @Summary Update a document
// @Description Update a document. Editing an approved document demotes it back to draft at the same version.
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Document ID"
// @Param request body service.DocumentInput true "Document fields"
// @Success 200 {object} models.Document
// @Failure 409 {object} map[string]string "Concurrent modification"
// @Router /organizations/{orgID}/documents/{id} [put]
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	var input service.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	doc, err := h.documentService.Update(r.Context(), user, orgID, id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, doc)
}

// Submit handles submitting a document for review
// @Summary Submit a document for review
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Document ID"
// @Param request body SubmitRequest true "Change description and version bump"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/documents/{id}/submit [post]
func (h *DocumentHandler) Submit(w http.ResponseWriter, r *http.Request) {
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

	doc, snap, err := h.documentService.SubmitForReview(r.Context(), user, orgID, id, req.ChangeDescription, bump)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"document": doc, "snapshot": snap})
}

// FirstApproval handles the designated reviewer's approval
// @Summary Approve a document (first stage)
// @Description First-stage approval by the organization's designated reviewer
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Document ID"
// @Param request body ApprovalRequest true "Reviewer comments"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/documents/{id}/first-approval [post]
func (h *DocumentHandler) FirstApproval(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.documentService.FirstApproval)
}

// SecondApproval handles the designated approver's approval
// @Summary Approve a document (second stage)
// @Description Final approval by the organization's designated approver
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Document ID"
// @Param request body ApprovalRequest true "Approver comments"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/documents/{id}/second-approval [post]
func (h *DocumentHandler) SecondApproval(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.documentService.SecondApproval)
}

func (h *DocumentHandler) approve(w http.ResponseWriter, r *http.Request, op service.DocumentTransition) {
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

	doc, snap, err := op(r.Context(), user, orgID, id, req.Comments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"document": doc, "snapshot": snap})
}

// Reject handles rejection
// @Summary Reject a document
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Document ID"
// @Param request body RejectRequest true "Rejection reason"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/documents/{id}/reject [post]
func (h *DocumentHandler) Reject(w http.ResponseWriter, r *http.Request) {
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

	doc, snap, err := h.documentService.Reject(r.Context(), user, orgID, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"document": doc, "snapshot": snap})
}

// NewRevision handles opening a new revision cycle
// @Summary Start a new document revision
// @Description Open a new revision of an approved document, bumping the version and returning it to draft
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Document ID"
// @Param request body SubmitRequest true "Change description and version bump"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/documents/{id}/new-revision [post]
func (h *DocumentHandler) NewRevision(w http.ResponseWriter, r *http.Request) {
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

	doc, snap, err := h.documentService.NewRevision(r.Context(), user, orgID, id, req.ChangeDescription, bump)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"document": doc, "snapshot": snap})
}

// DiscardRevision handles abandoning an in-flight revision
// @Summary Discard a document revision
// @Description Abandon the current draft revision and roll the document back to its last approved version
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param id path int true "Document ID"
// @Success 200 {object} map[string]interface{}
// @Router /organizations/{orgID}/documents/{id}/discard-revision [post]
func (h *DocumentHandler) DiscardRevision(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, id, ok := orgScope(w, r)
	if !ok {
		return
	}

	doc, snap, err := h.documentService.DiscardRevision(r.Context(), user, orgID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, map[string]interface{}{"document": doc, "snapshot": snap})
}
