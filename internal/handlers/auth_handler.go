package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cdmx-in/isms-manager-sub001/internal/config"
	"github.com/cdmx-in/isms-manager-sub001/internal/middleware"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/pkg/validator"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *service.AuthService
	auditMw     *middleware.AuditMiddleware
	config      *config.Config
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, auditMw *middleware.AuditMiddleware, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		auditMw:     auditMw,
		config:      cfg,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest represents a token refresh request
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Register handles user registration
// @Summary Register a new user
// @Description Create a new user account. The first account becomes the platform admin.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} map[string]interface{} "Registration successful"
// @Failure 400 {object} map[string]string "Invalid request"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.config.App.EnableRegistration {
		respondWithError(w, http.StatusForbidden, "Registration is disabled")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.authService.Register(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			respondWithError(w, http.StatusConflict, "A user with this email already exists")
			return
		}
		slog.Error("Registration failed", "email", req.Email, "error", err)
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("User registered", "user_id", user.ID, "email", user.Email)
	_ = h.auditMw.LogAction(&user.ID, &user.Email, "user.register", "users", "User registered", getIP(r), r.UserAgent())

	w.WriteHeader(http.StatusCreated)
	JSONResponse(w, map[string]interface{}{
		"message": "Registration successful",
		"user":    user,
	})
}

// Login handles user login
// @Summary Log in
// @Description Verify credentials and issue an access/refresh token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]interface{} "Token pair"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, pair, err := h.authService.Login(req.Email, req.Password, getIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		if errors.Is(err, service.ErrUserInactive) {
			respondWithError(w, http.StatusForbidden, "User account is inactive")
			return
		}
		slog.Error("Login failed", "email", req.Email, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	_ = h.auditMw.LogAction(&user.ID, &user.Email, "user.login", "sessions", "User logged in", getIP(r), r.UserAgent())

	JSONResponse(w, map[string]interface{}{
		"user":   user,
		"tokens": pair,
	})
}

// Refresh handles token refresh
// @Summary Refresh tokens
// @Description Exchange a refresh token for a new token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "Refresh token"
// @Success 200 {object} map[string]interface{} "New token pair"
// @Failure 401 {object} map[string]string "Invalid refresh token"
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, pair, err := h.authService.Refresh(req.RefreshToken, getIP(r), r.UserAgent())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	JSONResponse(w, map[string]interface{}{
		"user":   user,
		"tokens": pair,
	})
}

// Logout handles logout
// @Summary Log out
// @Description Revoke the current session, invalidating both tokens
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Logged out"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	if err := h.authService.Logout(parts[1]); err != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	JSONResponse(w, map[string]string{"message": "Logged out"})
}

// Me returns the authenticated user
// @Summary Current user
// @Description Return the profile of the authenticated user
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	JSONResponse(w, user)
}
