package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/config"
)

func newTestService(expiration time.Duration) *Service {
	return NewService(&config.JWTConfig{
		Secret:            "unit-test-secret",
		Expiration:        expiration,
		RefreshExpiration: 7 * 24 * time.Hour,
	})
}

func TestPasswordHashRoundTrip(t *testing.T) {
	svc := newTestService(time.Hour)

	hash, err := svc.HashPassword("correcthorse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "" || hash == "correcthorse" {
		t.Fatalf("hash %q must be non-empty and differ from the password", hash)
	}

	if err := svc.VerifyPassword(hash, "correcthorse"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := svc.VerifyPassword(hash, "batterystaple"); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestTokenPairSharesSession(t *testing.T) {
	svc := newTestService(time.Hour)

	access, accessClaims, refresh, refreshClaims, err := svc.GenerateTokenPair(7, "pair@example.com")
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if access == refresh {
		t.Fatal("access and refresh tokens must differ")
	}
	if accessClaims.SessionID == "" || accessClaims.SessionID != refreshClaims.SessionID {
		t.Errorf("session ids differ: %q vs %q", accessClaims.SessionID, refreshClaims.SessionID)
	}
	if accessClaims.TokenType != "access" || refreshClaims.TokenType != "refresh" {
		t.Errorf("token types: got %q and %q", accessClaims.TokenType, refreshClaims.TokenType)
	}
	if accessClaims.ID == refreshClaims.ID {
		t.Error("both tokens carry the same JTI")
	}
}

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := newTestService(time.Hour)

	token, issued, err := svc.GenerateToken(42, "roundtrip@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "roundtrip@example.com" {
		t.Errorf("claims = %d/%s, want 42/roundtrip@example.com", claims.UserID, claims.Email)
	}
	if claims.ID != issued.ID {
		t.Errorf("JTI changed across validation: %q vs %q", claims.ID, issued.ID)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestService(-time.Minute)

	token, _, err := svc.GenerateToken(1, "expired@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	token, _, err := newTestService(time.Hour).GenerateToken(1, "foreign@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	other := NewService(&config.JWTConfig{Secret: "a-different-secret", Expiration: time.Hour})
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
