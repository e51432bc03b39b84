package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cdmx-in/isms-manager-sub001/internal/middleware"
	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// Common error message constants shared across handlers
const (
	ErrMsgInvalidRequestBody = "Invalid request body"
	ErrMsgUnauthorized       = "Unauthorized"
	ErrMsgInvalidID          = "Invalid id"
)

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"error":` + strconv.Quote(message) + `}`))
}

// writeServiceError maps service and workflow errors onto HTTP status
// codes. Unknown errors become a 500 with a generic body so internals
// never leak to clients.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *workflow.ValidationError
		notFoundErr   *workflow.NotFoundError
		authzErr      *workflow.AuthorizationError
		stateErr      *workflow.InvalidStateTransitionError
		conflictErr   *workflow.ConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		respondWithError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &stateErr):
		respondWithError(w, http.StatusBadRequest, stateErr.Error())
	case errors.As(err, &notFoundErr):
		respondWithError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &authzErr):
		respondWithError(w, http.StatusForbidden, authzErr.Error())
	case errors.As(err, &conflictErr):
		respondWithError(w, http.StatusConflict, conflictErr.Error())
	default:
		slog.Error("Unhandled service error", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// requireUser pulls the authenticated user from the context, writing a
// 401 when the auth middleware did not run.
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.GetUser(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return nil, false
	}
	return user, true
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// orgScope parses the organization and entity ids common to most
// routes.
func orgScope(w http.ResponseWriter, r *http.Request) (orgID, id uint, ok bool) {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return 0, 0, false
	}
	id, err = pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidID)
		return 0, 0, false
	}
	return orgID, id, true
}

// pathUint parses a raw string as an entity id.
func pathUint(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

// getIP gets the client IP address from the request
func getIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
