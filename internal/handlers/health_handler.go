package handlers

import (
	"net/http"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/database"
	"github.com/cdmx-in/isms-manager-sub001/internal/vault"
)

// HealthHandler handles liveness and readiness probes
type HealthHandler struct {
	db          *database.Database
	vaultClient *vault.Client
	startedAt   time.Time
	version     string
}

// NewHealthHandler creates a new health handler. vaultClient may be nil
// when Vault is disabled.
func NewHealthHandler(db *database.Database, vaultClient *vault.Client, version string) *HealthHandler {
	return &HealthHandler{
		db:          db,
		vaultClient: vaultClient,
		startedAt:   time.Now(),
		version:     version,
	}
}

// Health handles the liveness probe
// @Summary Liveness probe
// @Description Returns 200 while the process is running
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Ready handles the readiness probe
// @Summary Readiness probe
// @Description Checks the database and, if enabled, Vault. Returns 503 when a dependency is down.
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if err := h.db.HealthCheck(); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.vaultClient != nil {
		if err := h.vaultClient.Health(); err != nil {
			checks["vault"] = err.Error()
			healthy = false
		} else {
			checks["vault"] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	JSONResponse(w, map[string]interface{}{"status": status, "checks": checks})
}
