package middleware

import (
	"database/sql"
	"net/http"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
)

// AuditMiddleware logs security-relevant requests that do not go
// through a workflow transaction, such as logins and admin actions.
type AuditMiddleware struct {
	auditRepo *repository.AuditLogRepository
}

// NewAuditMiddleware creates a new audit middleware
func NewAuditMiddleware(db *sql.DB) *AuditMiddleware {
	return &AuditMiddleware{
		auditRepo: repository.NewAuditLogRepository(db),
	}
}

// LogAction records a single audit entry directly. Used by handlers
// for events that need details only known inside the handler.
func (m *AuditMiddleware) LogAction(userID *uint, email *string, action, resource, details, ipAddress, userAgent string) error {
	return m.auditRepo.Create(&models.AuditLog{
		UserID:    userID,
		UserEmail: email,
		Action:    action,
		Resource:  resource,
		Details:   details,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
}

// Log records an audit entry after the wrapped handler runs.
func (m *AuditMiddleware) Log(action, resource string, details string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			var userID *uint
			var email *string
			if id, ok := GetUserID(r); ok {
				userID = &id
			}
			if e, ok := GetUserEmail(r); ok {
				email = &e
			}

			var orgID *uint
			if id, err := OrgIDFromRequest(r); err == nil {
				orgID = &id
			}

			// Ignore errors so a failed audit write never blocks the
			// request itself.
			_ = m.auditRepo.Create(&models.AuditLog{
				UserID:    userID,
				UserEmail: email,
				OrgID:     orgID,
				Action:    action,
				Resource:  resource,
				Details:   details,
				IPAddress: getIP(r),
				UserAgent: r.UserAgent(),
			})
		})
	}
}
