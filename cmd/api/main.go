package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/cdmx-in/isms-manager-sub001/docs" // swagger docs
	"github.com/cdmx-in/isms-manager-sub001/internal/auth"
	"github.com/cdmx-in/isms-manager-sub001/internal/config"
	"github.com/cdmx-in/isms-manager-sub001/internal/database"
	"github.com/cdmx-in/isms-manager-sub001/internal/email"
	"github.com/cdmx-in/isms-manager-sub001/internal/handlers"
	"github.com/cdmx-in/isms-manager-sub001/internal/logger"
	"github.com/cdmx-in/isms-manager-sub001/internal/metrics"
	"github.com/cdmx-in/isms-manager-sub001/internal/middleware"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/scheduler"
	"github.com/cdmx-in/isms-manager-sub001/internal/securestore"
	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/vault"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title ISMS Manager API
// @version 1.0
// @description Backend API for ISMS risk, SoA and exemption management with two-stage approvals

// @contact.name CDMX Engineering
// @contact.email engineering@cdmx.in

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Setup(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Database connection established")

	migrator := database.NewMigrationExecutor(db.DB)
	if err := migrator.RunMigrations("./migrations"); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Field-level encryption for incident details. Vault's transit
	// engine wraps the data key in production; a locally configured key
	// serves deployments without Vault.
	var vaultClient *vault.Client
	var cipher *securestore.Cipher
	if cfg.Vault.Enabled {
		vaultClient, err = vault.NewClient(&vault.Config{
			Address:      cfg.Vault.Address,
			Token:        cfg.Vault.Token,
			TransitMount: cfg.Vault.TransitMount,
		})
		if err != nil {
			slog.Error("Failed to connect to Vault", "error", err)
			os.Exit(1)
		}
		cipher, err = securestore.NewVaultCipher(vaultClient, cfg.Vault.KeyName)
		if err != nil {
			slog.Error("Failed to initialize Vault data key", "error", err)
			os.Exit(1)
		}
		slog.Info("Vault encryption enabled", "address", cfg.Vault.Address)
	} else {
		keyHex := cfg.Vault.LocalKeyHex
		if keyHex == "" {
			// Dev fallback. Encrypted incident details do not survive a
			// restart with an ephemeral key.
			key := make([]byte, 32)
			if _, err := rand.Read(key); err != nil {
				slog.Error("Failed to generate data key", "error", err)
				os.Exit(1)
			}
			keyHex = hex.EncodeToString(key)
			slog.Warn("DATA_ENCRYPTION_KEY not set, using an ephemeral key")
		}
		cipher, err = securestore.NewLocalCipher(keyHex)
		if err != nil {
			slog.Error("Failed to initialize local data key", "error", err)
			os.Exit(1)
		}
	}

	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	controlRepo := repository.NewControlRepository(db.DB)
	orgRepo := repository.NewOrganizationRepository(db.DB)
	auditRepo := repository.NewAuditLogRepository(db.DB)

	authSvc := auth.NewService(&cfg.JWT)
	emailSvc := email.NewService(&cfg.Email)

	var m *metrics.Metrics
	observe := func(kind, action string) {}
	if cfg.Metrics.Enabled {
		m = metrics.New()
		observe = m.ObserveTransition
	}

	authService := service.NewAuthService(userRepo, sessionRepo, authSvc)
	orgService := service.NewOrganizationService(db.DB)
	riskService := service.NewRiskService(db.DB, observe)
	soaService := service.NewSoAService(db.DB, observe)
	exemptionService := service.NewExemptionService(db.DB, observe)
	documentService := service.NewDocumentService(db.DB, observe)
	versionService := service.NewVersionService(db.DB)
	incidentService := service.NewIncidentService(db.DB, cipher)
	engagementService := service.NewAuditEngagementService(db.DB)
	controlService := service.NewControlService(controlRepo)
	notificationService := service.NewNotificationService(db.DB, emailSvc)
	if m != nil {
		notificationService.SetMetrics(m)
	}
	auditService := service.NewAuditService(auditRepo, orgRepo)

	// Outbox rows written inside a transition's transaction are mailed
	// out right after it commits.
	riskService.SetNotifier(notificationService.DeliverAsync)
	soaService.SetNotifier(notificationService.DeliverAsync)
	exemptionService.SetNotifier(notificationService.DeliverAsync)
	documentService.SetNotifier(notificationService.DeliverAsync)

	sched := scheduler.NewScheduler(db.DB, notificationService, authService, m, &cfg.Scheduler)
	sched.Start()
	defer sched.Stop()

	authMw := middleware.NewAuthMiddleware(authSvc, sessionRepo, userRepo)
	rbacMw := middleware.NewRBACMiddleware(db.DB)
	auditMw := middleware.NewAuditMiddleware(db.DB)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)

	authHandler := handlers.NewAuthHandler(authService, auditMw, cfg)
	orgHandler := handlers.NewOrganizationHandler(orgService)
	riskHandler := handlers.NewRiskHandler(riskService)
	soaHandler := handlers.NewSoAHandler(soaService)
	exemptionHandler := handlers.NewExemptionHandler(exemptionService)
	documentHandler := handlers.NewDocumentHandler(documentService)
	versionHandler := handlers.NewVersionHandler(versionService)
	incidentHandler := handlers.NewIncidentHandler(incidentService)
	engagementHandler := handlers.NewAuditEngagementHandler(engagementService)
	controlHandler := handlers.NewControlHandler(controlService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	auditLogHandler := handlers.NewAuditLogHandler(auditService)
	healthHandler := handlers.NewHealthHandler(db, vaultClient, cfg.App.Version)

	mux := http.NewServeMux()

	// authed wraps a handler with bearer-token authentication. Org
	// membership is not implied; routes under /organizations/{orgID}
	// additionally go through member, which is what keeps tenants from
	// reading each other's data.
	authed := func(h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(h)
	}
	member := func(h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(rbacMw.RequireMembership(h))
	}
	orgAdmin := func(h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(rbacMw.RequireOrgRole(workflow.RoleAdmin, workflow.RoleLocalAdmin)(h))
	}

	// Auth
	mux.Handle("POST /api/v1/auth/register", http.HandlerFunc(authHandler.Register))
	mux.Handle("POST /api/v1/auth/login", http.HandlerFunc(authHandler.Login))
	mux.Handle("POST /api/v1/auth/refresh", http.HandlerFunc(authHandler.Refresh))
	mux.Handle("POST /api/v1/auth/logout", authed(authHandler.Logout))
	mux.Handle("GET /api/v1/auth/me", authed(authHandler.Me))

	// Organizations
	mux.Handle("POST /api/v1/organizations", authed(orgHandler.Create))
	mux.Handle("GET /api/v1/organizations", authed(orgHandler.List))
	mux.Handle("GET /api/v1/organizations/{orgID}", member(orgHandler.Get))
	mux.Handle("PUT /api/v1/organizations/{orgID}", orgAdmin(orgHandler.Update))
	mux.Handle("DELETE /api/v1/organizations/{orgID}", orgAdmin(orgHandler.Delete))
	mux.Handle("GET /api/v1/organizations/{orgID}/members", member(orgHandler.ListMembers))
	mux.Handle("POST /api/v1/organizations/{orgID}/members", orgAdmin(orgHandler.AddMember))
	mux.Handle("PUT /api/v1/organizations/{orgID}/members/{id}", orgAdmin(orgHandler.UpdateMember))
	mux.Handle("DELETE /api/v1/organizations/{orgID}/members/{id}", orgAdmin(orgHandler.RemoveMember))
	mux.Handle("PUT /api/v1/organizations/{orgID}/designations", orgAdmin(orgHandler.Designate))

	// Risks
	mux.Handle("POST /api/v1/organizations/{orgID}/risks", member(riskHandler.Create))
	mux.Handle("GET /api/v1/organizations/{orgID}/risks", member(riskHandler.List))
	mux.Handle("GET /api/v1/organizations/{orgID}/risks/{id}", member(riskHandler.Get))
	mux.Handle("PUT /api/v1/organizations/{orgID}/risks/{id}", member(riskHandler.Update))
	mux.Handle("DELETE /api/v1/organizations/{orgID}/risks/{id}", member(riskHandler.Delete))
	mux.Handle("POST /api/v1/organizations/{orgID}/risks/{id}/submit", member(riskHandler.Submit))
	mux.Handle("POST /api/v1/organizations/{orgID}/risks/{id}/first-approval", member(riskHandler.FirstApproval))
	mux.Handle("POST /api/v1/organizations/{orgID}/risks/{id}/second-approval", member(riskHandler.SecondApproval))
	mux.Handle("POST /api/v1/organizations/{orgID}/risks/{id}/reject", member(riskHandler.Reject))
	mux.Handle("POST /api/v1/organizations/{orgID}/risks/{id}/retire", member(riskHandler.Retire))

	// Statement of Applicability
	mux.Handle("POST /api/v1/organizations/{orgID}/soa", member(soaHandler.Create))
	mux.Handle("GET /api/v1/organizations/{orgID}/soa", member(soaHandler.List))
	mux.Handle("GET /api/v1/organizations/{orgID}/soa/{id}", member(soaHandler.Get))
	mux.Handle("PUT /api/v1/organizations/{orgID}/soa/{id}", member(soaHandler.Update))
	mux.Handle("DELETE /api/v1/organizations/{orgID}/soa/{id}", member(soaHandler.Delete))
	mux.Handle("POST /api/v1/organizations/{orgID}/soa/{id}/submit", member(soaHandler.Submit))
	mux.Handle("POST /api/v1/organizations/{orgID}/soa/{id}/first-approval", member(soaHandler.FirstApproval))
	mux.Handle("POST /api/v1/organizations/{orgID}/soa/{id}/second-approval", member(soaHandler.SecondApproval))
	mux.Handle("POST /api/v1/organizations/{orgID}/soa/{id}/reject", member(soaHandler.Reject))

	// Exemptions
	mux.Handle("POST /api/v1/organizations/{orgID}/exemptions", member(exemptionHandler.Create))
	mux.Handle("GET /api/v1/organizations/{orgID}/exemptions", member(exemptionHandler.List))
	mux.Handle("GET /api/v1/organizations/{orgID}/exemptions/{id}", member(exemptionHandler.Get))
	mux.Handle("PUT /api/v1/organizations/{orgID}/exemptions/{id}", member(exemptionHandler.Update))
	mux.Handle("DELETE /api/v1/organizations/{orgID}/exemptions/{id}", member(exemptionHandler.Delete))
	mux.Handle("POST /api/v1/organizations/{orgID}/exemptions/{id}/submit", member(exemptionHandler.Submit))
	mux.Handle("POST /api/v1/organizations/{orgID}/exemptions/{id}/first-approval", member(exemptionHandler.FirstApproval))
	mux.Handle("POST /api/v1/organizations/{orgID}/exemptions/{id}/second-approval", member(exemptionHandler.SecondApproval))
	mux.Handle("POST /api/v1/organizations/{orgID}/exemptions/{id}/reject", member(exemptionHandler.Reject))

	// Governance documents
	mux.Handle("POST /api/v1/organizations/{orgID}/documents", member(documentHandler.Create))
	mux.Handle("GET /api/v1/organizations/{orgID}/documents", member(documentHandler.List))
	mux.Handle("GET /api/v1/organizations/{orgID}/documents/{id}", member(documentHandler.Get))
	mux.Handle("PUT /api/v1/organizations/{orgID}/documents/{id}", member(documentHandler.Update))
	mux.Handle("POST /api/v1/organizations/{orgID}/documents/{id}/submit", member(documentHandler.Submit))
	mux.Handle("POST /api/v1/organizations/{orgID}/documents/{id}/first-approval", member(documentHandler.FirstApproval))
	mux.Handle("POST /api/v1/organizations/{orgID}/documents/{id}/second-approval", member(documentHandler.SecondApproval))
	mux.Handle("POST /api/v1/organizations/{orgID}/documents/{id}/reject", member(documentHandler.Reject))
	mux.Handle("POST /api/v1/organizations/{orgID}/documents/{id}/new-revision", member(documentHandler.NewRevision))
	mux.Handle("POST /api/v1/organizations/{orgID}/documents/{id}/discard-revision", member(documentHandler.DiscardRevision))

	// Version history
	mux.Handle("GET /api/v1/organizations/{orgID}/versions/{kind}/{id}", member(versionHandler.List))
	mux.Handle("PUT /api/v1/organizations/{orgID}/versions/{id}/description", member(versionHandler.UpdateDescription))

	// Incidents
	mux.Handle("POST /api/v1/organizations/{orgID}/incidents", member(incidentHandler.Report))
	mux.Handle("GET /api/v1/organizations/{orgID}/incidents", member(incidentHandler.List))
	mux.Handle("GET /api/v1/organizations/{orgID}/incidents/{id}", member(incidentHandler.Get))
	mux.Handle("PUT /api/v1/organizations/{orgID}/incidents/{id}", member(incidentHandler.Update))
	mux.Handle("DELETE /api/v1/organizations/{orgID}/incidents/{id}", member(incidentHandler.Delete))

	// Audit engagements
	mux.Handle("POST /api/v1/organizations/{orgID}/audits", member(engagementHandler.Create))
	mux.Handle("GET /api/v1/organizations/{orgID}/audits", member(engagementHandler.List))
	mux.Handle("GET /api/v1/organizations/{orgID}/audits/{id}", member(engagementHandler.Get))
	mux.Handle("PUT /api/v1/organizations/{orgID}/audits/{id}", member(engagementHandler.Update))
	mux.Handle("DELETE /api/v1/organizations/{orgID}/audits/{id}", member(engagementHandler.Delete))

	// Audit trail
	mux.Handle("GET /api/v1/organizations/{orgID}/audit-logs", orgAdmin(auditLogHandler.List))

	// Control catalog
	mux.Handle("GET /api/v1/controls", authed(controlHandler.List))
	mux.Handle("GET /api/v1/controls/{id}", authed(controlHandler.Get))
	mux.Handle("POST /api/v1/controls", authMw.Authenticate(middleware.RequirePlatformAdmin(http.HandlerFunc(controlHandler.Create))))

	// Notifications
	mux.Handle("GET /api/v1/notifications", authed(notificationHandler.List))
	mux.Handle("POST /api/v1/notifications/{id}/read", authed(notificationHandler.MarkRead))

	// Operational endpoints
	mux.Handle("GET /health", http.HandlerFunc(healthHandler.Health))
	mux.Handle("GET /ready", http.HandlerFunc(healthHandler.Ready))
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
	}
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	var handler http.Handler = mux
	if cfg.Metrics.Enabled {
		handler = middleware.MetricsMiddleware(m)(handler)
	}
	handler = rateLimiter.Limit(handler)
	handler = corsMw.Handler(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.LoggingMiddleware(handler)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	go func() {
		slog.Info("Server starting",
			"addr", server.Addr,
			"env", cfg.App.Env,
			"version", cfg.App.Version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Server exited")
}
