package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/auth"
	"github.com/cdmx-in/isms-manager-sub001/internal/config"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/testutil"
)

func newAuthService(t *testing.T, containers *testutil.TestContainers) *service.AuthService {
	t.Helper()
	authSvc := auth.NewService(&config.JWTConfig{
		Secret:            string(containers.JWTSecret),
		Expiration:        15 * time.Minute,
		RefreshExpiration: 24 * time.Hour,
	})
	return service.NewAuthService(
		repository.NewUserRepository(containers.DB),
		repository.NewSessionRepository(containers.DB),
		authSvc,
	)
}

func TestRegisterFirstUserBecomesPlatformAdmin(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	authService := newAuthService(t, containers)

	first, err := authService.Register("founder@example.com", "superSecret1", "Pat", "Founder")
	if err != nil {
		t.Fatalf("Register first user: %v", err)
	}
	if !first.IsPlatformAdmin {
		t.Error("first registered user is not platform admin")
	}

	second, err := authService.Register("second@example.com", "superSecret1", "Sam", "Second")
	if err != nil {
		t.Fatalf("Register second user: %v", err)
	}
	if second.IsPlatformAdmin {
		t.Error("second registered user must not be platform admin")
	}

	if _, err := authService.Register("founder@example.com", "superSecret1", "Dup", "Licate"); !errors.Is(err, repository.ErrUserExists) {
		t.Errorf("duplicate email: expected ErrUserExists, got %v", err)
	}

	if _, err := authService.Register("short@example.com", "tiny", "Too", "Short"); err == nil {
		t.Error("short password accepted")
	}
}

func TestLoginAndRefreshRotation(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	authService := newAuthService(t, containers)

	if _, err := authService.Register("user@example.com", "superSecret1", "Log", "In"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, _, err := authService.Login("user@example.com", "wrongPassword", "127.0.0.1", "test")
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}

	_, pair, err := authService.Login("user@example.com", "superSecret1", "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("login returned empty token pair")
	}

	// Refreshing rotates the session: a new pair comes back and the old
	// refresh token is dead.
	_, newPair, err := authService.Refresh(pair.RefreshToken, "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if newPair.RefreshToken == pair.RefreshToken {
		t.Error("refresh did not rotate the refresh token")
	}

	if _, _, err := authService.Refresh(pair.RefreshToken, "127.0.0.1", "test"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Errorf("replayed refresh token: expected ErrInvalidCredentials, got %v", err)
	}

	// An access token is not a refresh token.
	if _, _, err := authService.Refresh(newPair.AccessToken, "127.0.0.1", "test"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Errorf("access token as refresh: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogoutRevokesSessionPair(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	authService := newAuthService(t, containers)

	if _, err := authService.Register("bye@example.com", "superSecret1", "Log", "Out"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, pair, err := authService.Login("bye@example.com", "superSecret1", "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := authService.Logout(pair.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// The refresh token of the same session is revoked too.
	if _, _, err := authService.Refresh(pair.RefreshToken, "127.0.0.1", "test"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Errorf("refresh after logout: expected ErrInvalidCredentials, got %v", err)
	}
}
