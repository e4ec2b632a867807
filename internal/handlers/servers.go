package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/models"
	"github.com/specmount/specmount/internal/openapi"
	"github.com/specmount/specmount/internal/registry"
)

// ServersHandler lists mounted prefixes and mounts new specs at runtime.
type ServersHandler struct {
	logger  *common.Logger
	manager *registry.Manager
}

// NewServersHandler creates a new servers handler.
func NewServersHandler(logger *common.Logger, manager *registry.Manager) *ServersHandler {
	return &ServersHandler{logger: logger, manager: manager}
}

// ServeHTTP handles GET /api/servers (list) and POST /api/servers (add).
func (h *ServersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.list(w)
	case http.MethodPost:
		h.add(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ServersHandler) list(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, models.ListServersResponse{
		Servers: h.manager.ListPrefixes(),
	})
}

// add dynamically mounts a new spec. Existing mounts are untouched: a
// failure here never disturbs what is already serving.
func (h *ServersHandler) add(w http.ResponseWriter, r *http.Request) {
	var req models.AddServerRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.APIBaseURL) == "" {
		WriteError(w, http.StatusBadRequest, "source and api_base_url are required")
		return
	}

	entry, err := h.manager.AddSpec(r.Context(), models.SpecSource(req.Source), req.APIBaseURL, req.Prefix)
	if err != nil {
		h.logger.Warn().
			Str("source", req.Source).
			Str("prefix", req.Prefix).
			Str("error", err.Error()).
			Msg("add server failed")
		WriteError(w, addSpecStatus(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, models.AddServerResponse{
		Added: entry.Prefix,
		Tools: len(entry.Tools),
	})
}

// addSpecStatus maps AddSpec error kinds to HTTP statuses so a caller can
// tell conflict from bad input from a store outage.
func addSpecStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrPrefixTaken):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidPrefix),
		errors.Is(err, openapi.ErrSpecUnreachable),
		errors.Is(err, openapi.ErrSpecMalformed):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrStoreWriteFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
