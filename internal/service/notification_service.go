package service

import (
	"database/sql"
	"log/slog"

	"github.com/cdmx-in/isms-manager-sub001/internal/email"
	"github.com/cdmx-in/isms-manager-sub001/internal/metrics"
	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
)

// Notification kinds written to the outbox.
const (
	NotificationApprovalRequested = "approval_requested"
	NotificationApproved          = "approved"
	NotificationRejected          = "rejected"
	NotificationExemptionExpiring = "exemption_expiring"
)

// NotificationService lists a user's notifications and delivers the
// outbox by email. Outbox rows are written by the entity services
// inside their transactions; delivery runs after commit and failures
// are logged, never surfaced.
type NotificationService struct {
	db       *sql.DB
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	email    *email.Service
	metrics  *metrics.Metrics
}

// SetMetrics registers the metric set incremented on successful delivery.
func (s *NotificationService) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// NewNotificationService creates a new notification service
func NewNotificationService(db *sql.DB, emailSvc *email.Service) *NotificationService {
	return &NotificationService{
		db:       db,
		repo:     repository.NewNotificationRepository(db),
		userRepo: repository.NewUserRepository(db),
		email:    emailSvc,
	}
}

// ListForUser returns a user's notifications, newest first
func (s *NotificationService) ListForUser(userID uint, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListForUser(userID, unreadOnly, limit, offset)
}

// MarkRead marks one of the user's notifications as read
func (s *NotificationService) MarkRead(userID, id uint) error {
	return s.repo.MarkRead(userID, id)
}

// DeliverPending emails all undelivered outbox rows. Best-effort:
// individual failures are logged and the row stays undelivered for the
// next pass.
func (s *NotificationService) DeliverPending() {
	if !s.email.Enabled() {
		return
	}

	pending, err := s.repo.ListUndelivered(100)
	if err != nil {
		slog.Error("Failed to load undelivered notifications", "error", err)
		return
	}

	for _, n := range pending {
		user, err := s.userRepo.GetByID(n.UserID)
		if err != nil {
			slog.Error("Failed to resolve notification recipient", "notification_id", n.ID, "error", err)
			continue
		}

		link := s.email.EntityLink(n.OrgID, n.EntityKind, n.EntityID)
		if err := s.email.SendNotification(user.Email, n.Subject, n.Body, link); err != nil {
			slog.Error("Failed to send notification email", "notification_id", n.ID, "error", err)
			continue
		}
		if err := s.repo.MarkDelivered(n.ID); err != nil {
			slog.Error("Failed to mark notification delivered", "notification_id", n.ID, "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.NotificationsSent.Inc()
		}
	}
}

// DeliverAsync kicks off a delivery pass in the background, used right
// after a workflow transition commits.
func (s *NotificationService) DeliverAsync() {
	go s.DeliverPending()
}
