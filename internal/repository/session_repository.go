package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionRepository tracks issued token pairs. Each row is one token
// (access or refresh) identified by its JTI; the shared session_id ties
// the pair together so logout and rotation can revoke both at once.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create records an issued token
func (r *SessionRepository) Create(session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, session_id, jti, token_type, expires_at, last_activity_at, created_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(query,
		session.ID, session.UserID, session.SessionID, session.JTI,
		session.TokenType, session.ExpiresAt, session.LastActivityAt,
		session.CreatedAt, session.IPAddress, session.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByJTI returns the live session row for a token's JTI. Expired or
// revoked tokens come back as ErrSessionNotFound.
func (r *SessionRepository) GetByJTI(jti string) (*models.Session, error) {
	query := `
		SELECT id, user_id, session_id, jti, token_type, expires_at, last_activity_at, created_at, ip_address, user_agent
		FROM sessions
		WHERE jti = $1 AND expires_at > $2
	`

	session := &models.Session{}
	err := r.db.QueryRow(query, jti, time.Now()).Scan(
		&session.ID, &session.UserID, &session.SessionID, &session.JTI,
		&session.TokenType, &session.ExpiresAt, &session.LastActivityAt,
		&session.CreatedAt, &session.IPAddress, &session.UserAgent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// DeleteBySessionID revokes both tokens of a pair
func (r *SessionRepository) DeleteBySessionID(sessionID string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAllUserSessions revokes every token a user holds
func (r *SessionRepository) DeleteAllUserSessions(userID uint) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions purges rows past their expiry, run by the scheduler
func (r *SessionRepository) DeleteExpiredSessions() error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE expires_at < $1`, time.Now()); err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}
