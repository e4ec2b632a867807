package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/models"
	"github.com/specmount/specmount/internal/registry"
)

// ToolsHandler lists tools and flips per-tool enablement.
type ToolsHandler struct {
	logger  *common.Logger
	manager *registry.Manager
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(logger *common.Logger, manager *registry.Manager) *ToolsHandler {
	return &ToolsHandler{logger: logger, manager: manager}
}

// List handles GET /api/tools. With a prefix query parameter only that
// mount's tools are returned; otherwise the combined prefix-qualified view.
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	prefix := r.URL.Query().Get("prefix")
	tools, err := h.manager.ListTools(prefix)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, models.ListToolsResponse{Tools: tools})
}

// SetEnabled handles POST /api/tools/enabled.
func (h *ToolsHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.ToolEnabledRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prefix) == "" || strings.TrimSpace(req.Name) == "" {
		WriteError(w, http.StatusBadRequest, "prefix and name required")
		return
	}

	if err := h.manager.SetToolEnabled(r.Context(), req.Prefix, req.Name, req.Enabled); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, registry.ErrPrefixNotFound), errors.Is(err, registry.ErrToolNotFound):
			status = http.StatusNotFound
		case errors.Is(err, registry.ErrStoreWriteFailed):
			status = http.StatusServiceUnavailable
		}
		WriteError(w, status, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, models.ToolEnabledResponse{
		Tool:    req.Name,
		Enabled: req.Enabled,
	})
}
