package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/greywolfdl/mangadex-wui/internal/common"
)

// APIHandler serves the service-level endpoints (health, version)
type APIHandler struct {
	startedAt time.Time
	logger    arbor.ILogger
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// HealthHandler handles GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// VersionHandler handles GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}
