package scheduler

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/config"
	"github.com/cdmx-in/isms-manager-sub001/internal/metrics"
	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// Scheduler handles periodic tasks: reminders for stalled approvals,
// exemption expiry warnings and session cleanup.
type Scheduler struct {
	db            *sql.DB
	riskRepo      *repository.RiskRepository
	exemptionRepo *repository.ExemptionRepository
	orgRepo       *repository.OrganizationRepository
	outboxRepo    *repository.NotificationRepository
	notifications *service.NotificationService
	authService   *service.AuthService
	metrics       *metrics.Metrics
	config        *config.SchedulerConfig
	stopChan      chan bool
}

// NewScheduler creates a new scheduler
func NewScheduler(
	db *sql.DB,
	notifications *service.NotificationService,
	authService *service.AuthService,
	m *metrics.Metrics,
	cfg *config.SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		db:            db,
		riskRepo:      repository.NewRiskRepository(db),
		exemptionRepo: repository.NewExemptionRepository(db),
		orgRepo:       repository.NewOrganizationRepository(db),
		outboxRepo:    repository.NewNotificationRepository(db),
		notifications: notifications,
		authService:   authService,
		metrics:       m,
		config:        cfg,
		stopChan:      make(chan bool),
	}
}

// Start starts all scheduled tasks
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler",
		"pending_reminders_enabled", s.config.EnablePendingReminders,
		"exemption_expiry_enabled", s.config.EnableExemptionExpiry)

	if s.config.EnablePendingReminders {
		if err := s.startCronTask(s.config.PendingReminderCron, "pending_reminders", s.sendPendingApprovalReminders); err != nil {
			slog.Error("Failed to start pending approval reminders", "error", err)
		}
	}

	if s.config.EnableExemptionExpiry {
		if err := s.startCronTask(s.config.ExemptionExpiryCron, "exemption_expiry", s.sendExemptionExpiryWarnings); err != nil {
			slog.Error("Failed to start exemption expiry warnings", "error", err)
		}
	}

	go s.scheduleIntervalTask(time.Hour, "session_cleanup", s.cleanupSessions)

	slog.Info("Scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	slog.Info("Stopping scheduler")
	close(s.stopChan)
}

// startCronTask parses a cron expression and starts the task.
// Supports simple cron format: "minute hour day month weekday".
// Examples: "0 9 * * 1" = Monday 9 AM, "0 8 * * *" = Daily 8 AM,
// "*/5 * * * *" = every 5 minutes.
func (s *Scheduler) startCronTask(cronExpr, taskName string, task func()) error {
	parts := strings.Fields(cronExpr)
	if len(parts) != 5 {
		return fmt.Errorf("invalid cron expression: %s (expected 5 fields)", cronExpr)
	}

	if strings.HasPrefix(parts[0], "*/") {
		interval, err := strconv.Atoi(parts[0][2:])
		if err != nil || interval < 1 || interval > 59 {
			return fmt.Errorf("invalid minute interval in cron: %s", parts[0])
		}
		go s.scheduleIntervalTask(time.Duration(interval)*time.Minute, taskName, task)
		return nil
	}

	minute, err := strconv.Atoi(parts[0])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute in cron: %s", parts[0])
	}

	hour, err := strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour in cron: %s", parts[1])
	}

	if parts[4] == "*" {
		go s.scheduleDailyTask(hour, minute, taskName, task)
	} else {
		weekday, err := strconv.Atoi(parts[4])
		if err != nil || weekday < 0 || weekday > 6 {
			return fmt.Errorf("invalid weekday in cron: %s (0-6, 0=Sunday)", parts[4])
		}
		go s.scheduleWeeklyTask(time.Weekday(weekday), hour, minute, taskName, task)
	}

	return nil
}

// scheduleIntervalTask runs a task at regular intervals
func (s *Scheduler) scheduleIntervalTask(interval time.Duration, taskName string, task func()) {
	slog.Info("Starting interval task", "task", taskName, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.run(taskName, task)

	for {
		select {
		case <-ticker.C:
			s.run(taskName, task)
		case <-s.stopChan:
			return
		}
	}
}

// scheduleDailyTask runs a task daily at a specific time
func (s *Scheduler) scheduleDailyTask(hour, minute int, taskName string, task func()) {
	for {
		now := time.Now()
		next := nextDailyRun(now, hour, minute)

		slog.Info("Next daily task scheduled", "task", taskName, "next_run", next.Format("2006-01-02 15:04:05"))

		select {
		case <-time.After(next.Sub(now)):
			s.run(taskName, task)
		case <-s.stopChan:
			return
		}
	}
}

// scheduleWeeklyTask runs a task weekly on a specific weekday and time
func (s *Scheduler) scheduleWeeklyTask(weekday time.Weekday, hour, minute int, taskName string, task func()) {
	for {
		now := time.Now()
		next := nextWeekday(now, weekday, hour, minute)

		slog.Info("Next weekly task scheduled", "task", taskName, "next_run", next.Format("2006-01-02 15:04:05"))

		select {
		case <-time.After(next.Sub(now)):
			s.run(taskName, task)
		case <-s.stopChan:
			return
		}
	}
}

// run executes a task, recovering from panics so one bad job does not
// take down the others, and records the outcome metric.
func (s *Scheduler) run(taskName string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduler task panicked", "task", taskName, "panic", r)
			s.observe(taskName, "panic")
		}
	}()

	slog.Info("Running scheduled task", "task", taskName)
	task()
	s.observe(taskName, "ok")
}

func (s *Scheduler) observe(taskName, outcome string) {
	if s.metrics != nil {
		s.metrics.SchedulerRuns.WithLabelValues(taskName, outcome).Inc()
	}
}

// nextDailyRun calculates the next daily run time
func nextDailyRun(from time.Time, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextWeekday calculates the next occurrence of a weekday and time
func nextWeekday(from time.Time, weekday time.Weekday, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())

	daysUntil := int(weekday - from.Weekday())
	if daysUntil < 0 {
		daysUntil += 7
	}
	next = next.AddDate(0, 0, daysUntil)

	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// sendPendingApprovalReminders queues reminder notifications for risks
// that have sat in a pending state for more than a day.
func (s *Scheduler) sendPendingApprovalReminders() {
	risks, err := s.riskRepo.ListPendingApproval(time.Now().Add(-24 * time.Hour))
	if err != nil {
		slog.Error("Failed to load pending risks", "error", err)
		return
	}
	if len(risks) == 0 {
		return
	}

	queued := 0
	for _, risk := range risks {
		secondStage := risk.Status == workflow.StatusPendingSecondApproval
		approvers, err := s.orgRepo.ListApprovers(risk.OrgID, secondStage)
		if err != nil {
			slog.Error("Failed to resolve approvers", "organization_id", risk.OrgID, "error", err)
			continue
		}

		stale := int(time.Since(risk.UpdatedAt).Hours() / 24)
		subject := fmt.Sprintf("Reminder: risk %q awaits approval", risk.Title)
		body := fmt.Sprintf("Risk %q has been waiting for approval for %d day(s).", risk.Title, stale)

		for _, userID := range approvers {
			n := &models.Notification{
				UserID:     userID,
				OrgID:      risk.OrgID,
				Kind:       service.NotificationApprovalRequested,
				EntityKind: workflow.KindRisk,
				EntityID:   risk.ID,
				Subject:    subject,
				Body:       body,
			}
			if err := s.outboxRepo.Create(n); err != nil {
				slog.Error("Failed to queue approval reminder", "risk_id", risk.ID, "user_id", userID, "error", err)
				continue
			}
			queued++
		}
	}

	slog.Info("Pending approval reminders queued", "risks", len(risks), "notifications", queued)
	s.notifications.DeliverPending()
}

// sendExemptionExpiryWarnings queues warnings for approved exemptions
// that expire within the configured window. Each recipient is warned
// once per expiry window.
func (s *Scheduler) sendExemptionExpiryWarnings() {
	window := time.Duration(s.config.ExemptionWarningDays) * 24 * time.Hour
	exemptions, err := s.exemptionRepo.ListExpiring(time.Now().Add(window))
	if err != nil {
		slog.Error("Failed to load expiring exemptions", "error", err)
		return
	}
	if len(exemptions) == 0 {
		return
	}

	queued := 0
	for _, ex := range exemptions {
		recipients, err := s.orgRepo.ListAdmins(ex.OrgID)
		if err != nil {
			slog.Error("Failed to resolve admins", "organization_id", ex.OrgID, "error", err)
			continue
		}
		if ex.CreatedByID != nil {
			recipients = append(recipients, *ex.CreatedByID)
		}

		daysLeft := int(time.Until(*ex.ExpiresAt).Hours() / 24)
		subject := fmt.Sprintf("Exemption %q expires in %d day(s)", ex.Title, daysLeft)
		body := fmt.Sprintf("Exemption %q expires on %s. Renew it or let the control come back into force.",
			ex.Title, ex.ExpiresAt.Format("2006-01-02"))

		seen := make(map[uint]bool)
		for _, userID := range recipients {
			if seen[userID] {
				continue
			}
			seen[userID] = true

			warned, err := s.alreadyWarned(userID, ex.ID, ex.ExpiresAt.Add(-window))
			if err != nil {
				slog.Error("Failed to check warning state", "exemption_id", ex.ID, "user_id", userID, "error", err)
				continue
			}
			if warned {
				continue
			}

			n := &models.Notification{
				UserID:     userID,
				OrgID:      ex.OrgID,
				Kind:       service.NotificationExemptionExpiring,
				EntityKind: workflow.KindExemption,
				EntityID:   ex.ID,
				Subject:    subject,
				Body:       body,
			}
			if err := s.outboxRepo.Create(n); err != nil {
				slog.Error("Failed to queue expiry warning", "exemption_id", ex.ID, "user_id", userID, "error", err)
				continue
			}
			queued++
		}
	}

	slog.Info("Exemption expiry warnings queued", "exemptions", len(exemptions), "notifications", queued)
	s.notifications.DeliverPending()
}

// alreadyWarned reports whether an expiry warning for the exemption was
// queued for the user since the warning window opened.
func (s *Scheduler) alreadyWarned(userID, exemptionID uint, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND kind = $2 AND entity_kind = $3 AND entity_id = $4 AND created_at >= $5
		)
	`, userID, service.NotificationExemptionExpiring, workflow.KindExemption, exemptionID, since).Scan(&exists)
	return exists, err
}

// cleanupSessions removes expired session rows.
func (s *Scheduler) cleanupSessions() {
	if err := s.authService.CleanupExpiredSessions(); err != nil {
		slog.Error("Failed to clean up expired sessions", "error", err)
	}
}
