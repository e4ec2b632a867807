package handlers

import (
	"net/http"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/registry"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	logger  *common.Logger
	manager *registry.Manager
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(logger *common.Logger, manager *registry.Manager) *HealthHandler {
	return &HealthHandler{logger: logger, manager: manager}
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"servers": len(h.manager.ListPrefixes()),
	})
}
