package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/config"
	"github.com/specmount/specmount/internal/mcp"
	"github.com/specmount/specmount/internal/models"
	"github.com/specmount/specmount/internal/registry"
	"github.com/specmount/specmount/internal/storage"
)

const handlersTestSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Petstore", "version": "1.0.0"},
  "paths": {
    "/pets": {
      "get": {"operationId": "listPets", "responses": {"200": {"description": "ok"}}},
      "post": {"operationId": "createPet", "responses": {"201": {"description": "ok"}}}
    }
  }
}`

// newTestManager builds a full manager stack on a temp SQLite store and
// returns it with the path of a spec file ready to mount.
func newTestManager(t *testing.T) (*registry.Manager, string) {
	t.Helper()
	logger := common.NewSilentLogger()

	cfg := config.NewDefaultConfig()
	cfg.Storage.SQLite.DSN = filepath.Join(t.TempDir(), "registry.db")
	cfg.Storage.SQLite.ConnectTimeoutSeconds = 5

	store, err := storage.NewRegistryStorage(logger, cfg)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	router := mcp.NewRouter(logger)
	manager := registry.NewManager(store, router, logger)

	specPath := filepath.Join(t.TempDir(), "petstore.json")
	if err := os.WriteFile(specPath, []byte(handlersTestSpec), 0644); err != nil {
		t.Fatal(err)
	}
	return manager, specPath
}

func mountSpec(t *testing.T, manager *registry.Manager, specPath, prefix string) {
	t.Helper()
	if _, err := manager.AddSpec(context.Background(), models.SpecSource(specPath), "http://api.local", prefix); err != nil {
		t.Fatalf("failed to mount test spec: %v", err)
	}
}

// --- Health Tests ---

func TestHealthHandler(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	handler := NewHealthHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["servers"] != float64(1) {
		t.Errorf("expected 1 server, got %v", body["servers"])
	}
}

func TestHealthHandler_RejectsPOST(t *testing.T) {
	manager, _ := newTestManager(t)
	handler := NewHealthHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/health", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

// --- Servers Tests ---

func TestServersHandler_AddAndList(t *testing.T) {
	manager, specPath := newTestManager(t)
	handler := NewServersHandler(common.NewSilentLogger(), manager)

	payload := `{"source":"` + specPath + `","api_base_url":"http://api.local","prefix":"pets"}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/servers", strings.NewReader(payload)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var added models.AddServerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &added); err != nil {
		t.Fatal(err)
	}
	if added.Added != "pets" || added.Tools != 2 {
		t.Errorf("unexpected add response: %+v", added)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/servers", nil))
	var listed models.ListServersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Servers) != 1 || listed.Servers[0] != "pets" {
		t.Errorf("unexpected server list: %v", listed.Servers)
	}
}

func TestServersHandler_DuplicatePrefixConflicts(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	handler := NewServersHandler(common.NewSilentLogger(), manager)

	payload := `{"source":"` + specPath + `","api_base_url":"http://api.local","prefix":"pets"}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/servers", strings.NewReader(payload)))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate prefix, got %d", w.Code)
	}
}

func TestServersHandler_UnreachableSource(t *testing.T) {
	manager, _ := newTestManager(t)
	handler := NewServersHandler(common.NewSilentLogger(), manager)

	payload := `{"source":"/nonexistent/spec.json","api_base_url":"http://api.local"}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/servers", strings.NewReader(payload)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unreachable source, got %d", w.Code)
	}
	if len(manager.ListPrefixes()) != 0 {
		t.Error("a failed add must not leave a partial mount")
	}
}

func TestServersHandler_MissingFields(t *testing.T) {
	manager, _ := newTestManager(t)
	handler := NewServersHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/servers", strings.NewReader(`{"source":"x.json"}`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing api_base_url, got %d", w.Code)
	}
}

// --- Tools Tests ---

func TestToolsHandler_ListByPrefix(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	handler := NewToolsHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/api/tools?prefix=pets", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp models.ListToolsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tools) != 2 || resp.Tools[0].Name != "listPets" {
		t.Errorf("unexpected tools: %+v", resp.Tools)
	}
}

func TestToolsHandler_CombinedListIsQualified(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	mountSpec(t, manager, specPath, "zoo")
	handler := NewToolsHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/api/tools", nil))

	var resp models.ListToolsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tools) != 4 {
		t.Fatalf("expected 4 qualified tools, got %d", len(resp.Tools))
	}
	if resp.Tools[0].Name != "pets_listPets" || resp.Tools[2].Name != "zoo_listPets" {
		t.Errorf("combined names should be prefix-qualified: %+v", resp.Tools)
	}
}

func TestToolsHandler_ListUnknownPrefix(t *testing.T) {
	manager, _ := newTestManager(t)
	handler := NewToolsHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/api/tools?prefix=ghost", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestToolsHandler_SetEnabled(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	handler := NewToolsHandler(common.NewSilentLogger(), manager)

	payload := `{"prefix":"pets","name":"listPets","enabled":false}`
	w := httptest.NewRecorder()
	handler.SetEnabled(w, httptest.NewRequest("POST", "/api/tools/enabled", strings.NewReader(payload)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.ToolEnabledResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Tool != "listPets" || resp.Enabled {
		t.Errorf("unexpected response: %+v", resp)
	}

	tools, _ := manager.ListTools("pets")
	if tools[0].Enabled {
		t.Error("listPets should be disabled in the registry")
	}
}

func TestToolsHandler_SetEnabledUnknownTool(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	handler := NewToolsHandler(common.NewSilentLogger(), manager)

	payload := `{"prefix":"pets","name":"ghost","enabled":false}`
	w := httptest.NewRecorder()
	handler.SetEnabled(w, httptest.NewRequest("POST", "/api/tools/enabled", strings.NewReader(payload)))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown tool, got %d", w.Code)
	}
}

// --- Export Tests ---

func TestExportHandler_ByteIdentical(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	handler := NewExportHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/export/pets", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != handlersTestSpec {
		t.Error("export should return the document byte-identical")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
}

func TestExportHandler_UnknownPrefix(t *testing.T) {
	manager, _ := newTestManager(t)
	handler := NewExportHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/export/ghost", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestExportHandler_YAMLContentType(t *testing.T) {
	manager, _ := newTestManager(t)

	yamlSpec := "openapi: \"3.0.0\"\ninfo:\n  title: y\n  version: \"1\"\npaths: {}\n"
	specPath := filepath.Join(t.TempDir(), "spec.yaml")
	if err := os.WriteFile(specPath, []byte(yamlSpec), 0644); err != nil {
		t.Fatal(err)
	}
	mountSpec(t, manager, specPath, "yam")

	handler := NewExportHandler(common.NewSilentLogger(), manager)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/export/yam", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("expected application/yaml, got %s", ct)
	}
	if w.Body.String() != yamlSpec {
		t.Error("YAML export should be byte-identical")
	}
}

// --- Search Tests ---

func TestSearchHandler_NameFilter(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	handler := NewSearchHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.Search(w, httptest.NewRequest("GET", "/api/search?name=create", nil))

	var resp models.SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Tool != "createPet" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
	if resp.Results[0].Prefix != "pets" {
		t.Errorf("result should carry its prefix: %+v", resp.Results[0])
	}
}

func TestSearchHandler_UnknownPrefix(t *testing.T) {
	manager, _ := newTestManager(t)
	handler := NewSearchHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.Search(w, httptest.NewRequest("GET", "/api/search?prefix=ghost", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestSearchHandler_EnabledToggle(t *testing.T) {
	manager, specPath := newTestManager(t)
	mountSpec(t, manager, specPath, "pets")
	mountSpec(t, manager, specPath, "zoo")
	handler := NewSearchHandler(common.NewSilentLogger(), manager)

	// Disable search for zoo.
	payload := `{"prefix":"zoo","enabled":false}`
	w := httptest.NewRecorder()
	handler.SetEnabled(w, httptest.NewRequest("POST", "/api/search/enabled", strings.NewReader(payload)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Only enabled prefixes match enabled=true.
	w = httptest.NewRecorder()
	handler.Search(w, httptest.NewRequest("GET", "/api/search?enabled=true", nil))
	var resp models.SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, result := range resp.Results {
		if result.Prefix == "zoo" {
			t.Error("zoo should be excluded while its search toggle is off")
		}
	}
	if len(resp.Results) != 2 {
		t.Errorf("expected the 2 pets tools, got %d", len(resp.Results))
	}

	// enabled=false returns only the toggled-off prefix.
	w = httptest.NewRecorder()
	handler.Search(w, httptest.NewRequest("GET", "/api/search?enabled=false", nil))
	resp = models.SearchResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, result := range resp.Results {
		if result.Prefix != "zoo" {
			t.Errorf("expected only zoo results, got %+v", result)
		}
	}
}

func TestSearchHandler_SetEnabledUnknownPrefix(t *testing.T) {
	manager, _ := newTestManager(t)
	handler := NewSearchHandler(common.NewSilentLogger(), manager)

	w := httptest.NewRecorder()
	handler.SetEnabled(w, httptest.NewRequest("POST", "/api/search/enabled",
		strings.NewReader(`{"prefix":"ghost","enabled":false}`)))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
