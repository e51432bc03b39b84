package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthHelper provides JWT token generation for tests
type AuthHelper struct {
	JWTSecret []byte
}

// NewAuthHelper creates a new auth helper
func NewAuthHelper() *AuthHelper {
	return &AuthHelper{
		JWTSecret: []byte("test-secret-key-for-testing-only"),
	}
}

// GenerateToken generates an access token for a user
func (h *AuthHelper) GenerateToken(userID uint, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":    userID,
		"email":      email,
		"token_type": "access",
		"session_id": uuid.NewString(),
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTSecret)
}

// AddAuthHeader adds a bearer token to the request
func (h *AuthHelper) AddAuthHeader(t *testing.T, req *http.Request, userID uint, email string) {
	t.Helper()

	token, err := h.GenerateToken(userID, email)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// NewAuthenticatedRequest builds a test request carrying a valid token
func (h *AuthHelper) NewAuthenticatedRequest(t *testing.T, method, url string, userID uint, email string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, url, nil)
	h.AddAuthHeader(t, req, userID, email)
	return req
}
