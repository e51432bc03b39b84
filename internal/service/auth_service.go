package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cdmx-in/isms-manager-sub001/internal/auth"
	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user account is inactive")
)

// TokenPair is the result of a successful login or refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthService handles registration, login and session lifecycle
type AuthService struct {
	userRepo    *repository.UserRepository
	sessionRepo *repository.SessionRepository
	authSvc     *auth.Service
}

// NewAuthService creates a new authentication service
func NewAuthService(userRepo *repository.UserRepository, sessionRepo *repository.SessionRepository, authSvc *auth.Service) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		authSvc:     authSvc,
	}
}

// Register creates a new user account. The first user in the system
// becomes the platform admin.
func (s *AuthService) Register(email, password, firstName, lastName string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	existing, _ := s.userRepo.GetByEmail(email)
	if existing != nil {
		return nil, repository.ErrUserExists
	}

	passwordHash, err := s.authSvc.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     true,
	}

	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	userCount, err := s.userRepo.CountAll()
	if err != nil {
		slog.Error("Failed to count users", "error", err)
	}
	if userCount == 1 {
		user.IsPlatformAdmin = true
		if err := s.userRepo.Update(user); err != nil {
			slog.Error("Failed to promote first user to platform admin", "error", err)
		} else {
			slog.Info("First user registered as platform admin", "email", email)
		}
	}

	return user, nil
}

// Login verifies credentials and issues a token pair with matching
// session rows.
func (s *AuthService) Login(email, password, ipAddress, userAgent string) (*models.User, *TokenPair, error) {
	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := s.authSvc.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	pair, err := s.issueTokens(user, ipAddress, userAgent)
	if err != nil {
		return nil, nil, err
	}

	if err := s.userRepo.UpdateLastLogin(user.ID); err != nil {
		slog.Error("Failed to record last login", "user_id", user.ID, "error", err)
	}

	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a fresh pair, rotating
// the whole session.
func (s *AuthService) Refresh(refreshToken, ipAddress, userAgent string) (*models.User, *TokenPair, error) {
	claims, err := s.authSvc.ValidateToken(refreshToken)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if claims.TokenType != "refresh" {
		return nil, nil, ErrInvalidCredentials
	}

	// The session row must still exist; logout revokes it.
	if _, err := s.sessionRepo.GetByJTI(claims.ID); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByID(claims.UserID)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	// Revoke the old pair before issuing the new one.
	if err := s.sessionRepo.DeleteBySessionID(claims.SessionID); err != nil {
		slog.Error("Failed to revoke rotated session", "session_id", claims.SessionID, "error", err)
	}

	pair, err := s.issueTokens(user, ipAddress, userAgent)
	if err != nil {
		return nil, nil, err
	}

	return user, pair, nil
}

// Logout revokes the session the access token belongs to, invalidating
// both tokens of the pair.
func (s *AuthService) Logout(accessToken string) error {
	claims, err := s.authSvc.ValidateToken(accessToken)
	if err != nil {
		return ErrInvalidCredentials
	}
	return s.sessionRepo.DeleteBySessionID(claims.SessionID)
}

// LogoutAll revokes every session of the user.
func (s *AuthService) LogoutAll(userID uint) error {
	return s.sessionRepo.DeleteAllUserSessions(userID)
}

func (s *AuthService) issueTokens(user *models.User, ipAddress, userAgent string) (*TokenPair, error) {
	access, accessClaims, refresh, refreshClaims, err := s.authSvc.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	now := time.Now()
	for _, claims := range []*auth.Claims{accessClaims, refreshClaims} {
		session := &models.Session{
			ID:             uuid.NewString(),
			UserID:         user.ID,
			SessionID:      claims.SessionID,
			JTI:            claims.ID,
			TokenType:      claims.TokenType,
			ExpiresAt:      claims.ExpiresAt.Time,
			LastActivityAt: now,
			CreatedAt:      now,
			IPAddress:      ipAddress,
			UserAgent:      userAgent,
		}
		if err := s.sessionRepo.Create(session); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(accessClaims.ExpiresAt.Time).Seconds()),
	}, nil
}

// CleanupExpiredSessions removes expired session rows. Called
// periodically by the scheduler.
func (s *AuthService) CleanupExpiredSessions() error {
	return s.sessionRepo.DeleteExpiredSessions()
}
