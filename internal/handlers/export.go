package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/registry"
)

// ExportHandler returns the stored OpenAPI document for a prefix,
// byte-identical to what was originally loaded.
type ExportHandler struct {
	logger  *common.Logger
	manager *registry.Manager
}

// NewExportHandler creates a new export handler.
func NewExportHandler(logger *common.Logger, manager *registry.Manager) *ExportHandler {
	return &ExportHandler{logger: logger, manager: manager}
}

// ServeHTTP handles GET /api/export/{prefix}.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	prefix := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/export"), "/")
	if prefix == "" {
		WriteError(w, http.StatusBadRequest, "prefix required")
		return
	}

	doc, err := h.manager.ExportSpec(prefix)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	if json.Valid(doc) {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/yaml")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
