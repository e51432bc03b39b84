package handlers

import (
	"net/http"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/service"
)

// AuditLogHandler handles audit trail queries
type AuditLogHandler struct {
	auditService *service.AuditService
}

// NewAuditLogHandler creates a new audit log handler
func NewAuditLogHandler(auditService *service.AuditService) *AuditLogHandler {
	return &AuditLogHandler{auditService: auditService}
}

// List handles querying the audit trail
// @Summary List audit log entries
// @Description Query the organization's audit trail. Requires an admin or local admin role.
// @Tags AuditLogs
// @Produce json
// @Security BearerAuth
// @Param orgID path int true "Organization ID"
// @Param action query string false "Filter by action"
// @Param resource query string false "Filter by resource"
// @Param user_id query int false "Filter by acting user ID"
// @Param from query string false "Start of time range (RFC 3339)"
// @Param to query string false "End of time range (RFC 3339)"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.AuditLog
// @Router /organizations/{orgID}/audit-logs [get]
func (h *AuditLogHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return
	}

	q := r.URL.Query()
	filters := repository.AuditLogFilters{
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
	}
	if v := q.Get("user_id"); v != "" {
		uid, err := pathUint(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user_id")
			return
		}
		filters.UserID = &uid
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid from timestamp")
			return
		}
		filters.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid to timestamp")
			return
		}
		filters.To = &t
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	entries, err := h.auditService.List(user, orgID, filters, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSONResponse(w, entries)
}
