package handlers

import (
	"net/http"
	"strings"
	"sync"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/models"
	"github.com/specmount/specmount/internal/registry"
)

// SearchHandler filters tools across mounted prefixes by name, with a
// per-prefix search toggle. The toggle is presentation state, not registry
// state, so it lives in memory only and resets on restart.
type SearchHandler struct {
	logger  *common.Logger
	manager *registry.Manager

	mu     sync.RWMutex
	status map[string]bool // absent means searchable
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(logger *common.Logger, manager *registry.Manager) *SearchHandler {
	return &SearchHandler{
		logger:  logger,
		manager: manager,
		status:  make(map[string]bool),
	}
}

// searchEnabled reports the search toggle for a prefix, defaulting to true.
func (h *SearchHandler) searchEnabled(prefix string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	enabled, ok := h.status[prefix]
	return !ok || enabled
}

// SetEnabled handles POST /api/search/enabled.
func (h *SearchHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.SearchEnabledRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.manager.ListTools(req.Prefix); err != nil || req.Prefix == "" {
		WriteError(w, http.StatusNotFound, "prefix not found")
		return
	}

	h.mu.Lock()
	h.status[req.Prefix] = req.Enabled
	h.mu.Unlock()

	WriteJSON(w, http.StatusOK, models.SearchEnabledResponse{
		Prefix:  req.Prefix,
		Enabled: req.Enabled,
	})
}

// Search handles GET /api/search with optional prefix, name, and enabled
// query filters. The enabled filter matches against each prefix's search
// toggle.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	q := r.URL.Query()
	prefixFilter := q.Get("prefix")
	nameFilter := strings.ToLower(q.Get("name"))

	var enabledFilter *bool
	if raw := q.Get("enabled"); raw != "" {
		v := raw == "1" || strings.EqualFold(raw, "true") || strings.EqualFold(raw, "yes")
		enabledFilter = &v
	}

	prefixes := h.manager.ListPrefixes()
	if prefixFilter != "" {
		found := false
		for _, p := range prefixes {
			if p == prefixFilter {
				found = true
				break
			}
		}
		if !found {
			WriteError(w, http.StatusNotFound, "prefix not found")
			return
		}
		prefixes = []string{prefixFilter}
	}

	results := []models.SearchResult{}
	for _, prefix := range prefixes {
		if enabledFilter != nil && h.searchEnabled(prefix) != *enabledFilter {
			continue
		}
		tools, err := h.manager.ListTools(prefix)
		if err != nil {
			continue
		}
		for _, tool := range tools {
			if nameFilter != "" && !strings.Contains(strings.ToLower(tool.Name), nameFilter) {
				continue
			}
			results = append(results, models.SearchResult{Prefix: prefix, Tool: tool.Name})
		}
	}

	WriteJSON(w, http.StatusOK, models.SearchResponse{Results: results})
}
