package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/config"
	"github.com/specmount/specmount/internal/models"
	"github.com/specmount/specmount/internal/openapi"
)

// --- Test Doubles ---

type stubStore struct {
	saved      map[string]*models.MountEntry
	saveErr    error
	setErr     error
	setCalls   int
	loadResult []*models.MountEntry
}

func newStubStore() *stubStore {
	return &stubStore{saved: make(map[string]*models.MountEntry)}
}

func (s *stubStore) SaveMount(ctx context.Context, entry *models.MountEntry) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[entry.Prefix] = entry.Clone()
	return nil
}

func (s *stubStore) DeleteMount(ctx context.Context, prefix string) error {
	delete(s.saved, prefix)
	return nil
}

func (s *stubStore) LoadMounts(ctx context.Context) ([]*models.MountEntry, error) {
	return s.loadResult, nil
}

func (s *stubStore) SetToolEnabled(ctx context.Context, prefix, name string, enabled bool) error {
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	if entry, ok := s.saved[prefix]; ok {
		if tool := entry.Tool(name); tool != nil {
			tool.Enabled = enabled
		}
	}
	return nil
}

func (s *stubStore) Close() error { return nil }

type stubRouter struct {
	mounted  map[string]bool
	unmounts []string
	mountErr error
}

func newStubRouter() *stubRouter {
	return &stubRouter{mounted: make(map[string]bool)}
}

func (r *stubRouter) Mount(entry *models.MountEntry) error {
	if r.mountErr != nil {
		return r.mountErr
	}
	r.mounted[entry.Prefix] = true
	return nil
}

func (r *stubRouter) Unmount(prefix string) {
	delete(r.mounted, prefix)
	r.unmounts = append(r.unmounts, prefix)
}

func (r *stubRouter) SetToolEnabled(prefix, name string, enabled bool) {}

const managerTestSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "t", "version": "1"},
  "paths": {
    "/items": {
      "get": {"operationId": "listItems", "responses": {"200": {"description": "ok"}}},
      "post": {"operationId": "createItem", "responses": {"201": {"description": "ok"}}}
    }
  }
}`

func stubLoad(raw string) loadFunc {
	return func(ctx context.Context, source models.SpecSource) (*openapi.Document, error) {
		return openapi.Parse([]byte(raw))
	}
}

func newTestManager(store *stubStore, router *stubRouter) *Manager {
	m := NewManager(store, router, common.NewSilentLogger())
	m.loadSpec = stubLoad(managerTestSpec)
	return m
}

// --- AddSpec Tests ---

func TestAddSpec_MountsAndPersists(t *testing.T) {
	store := newStubStore()
	router := newStubRouter()
	m := newTestManager(store, router)

	entry, err := m.AddSpec(context.Background(), "./specs/items.json", "http://api.local/", "items")
	if err != nil {
		t.Fatalf("AddSpec failed: %v", err)
	}

	if entry.Prefix != "items" {
		t.Errorf("expected prefix items, got %s", entry.Prefix)
	}
	if len(entry.Tools) != 2 {
		t.Errorf("expected 2 tools, got %d", len(entry.Tools))
	}
	if entry.APIBaseURL != "http://api.local" {
		t.Errorf("base URL should have trailing slash stripped, got %s", entry.APIBaseURL)
	}
	if !router.mounted["items"] {
		t.Error("prefix should be mounted on the router")
	}
	if _, ok := store.saved["items"]; !ok {
		t.Error("mount should be persisted")
	}
}

func TestAddSpec_PrefixTaken(t *testing.T) {
	m := newTestManager(newStubStore(), newStubRouter())
	ctx := context.Background()

	if _, err := m.AddSpec(ctx, "a.json", "http://a", "items"); err != nil {
		t.Fatal(err)
	}
	_, err := m.AddSpec(ctx, "b.json", "http://b", "items")
	if !errors.Is(err, ErrPrefixTaken) {
		t.Errorf("expected ErrPrefixTaken, got %v", err)
	}

	// The original mount is untouched.
	if tools, err := m.ListTools("items"); err != nil || len(tools) != 2 {
		t.Errorf("existing mount disturbed: %v %d", err, len(tools))
	}
}

func TestAddSpec_InvalidPrefix(t *testing.T) {
	m := newTestManager(newStubStore(), newStubRouter())

	for _, prefix := range []string{"has space", "has/slash", "-leading", "a.b"} {
		_, err := m.AddSpec(context.Background(), "a.json", "http://a", prefix)
		if !errors.Is(err, ErrInvalidPrefix) {
			t.Errorf("prefix %q: expected ErrInvalidPrefix, got %v", prefix, err)
		}
	}
}

func TestAddSpec_StoreFailureRollsBackMount(t *testing.T) {
	store := newStubStore()
	store.saveErr = fmt.Errorf("disk full")
	router := newStubRouter()
	m := newTestManager(store, router)

	_, err := m.AddSpec(context.Background(), "a.json", "http://a", "items")
	if !errors.Is(err, ErrStoreWriteFailed) {
		t.Fatalf("expected ErrStoreWriteFailed, got %v", err)
	}

	if router.mounted["items"] {
		t.Error("router mount should be rolled back after store failure")
	}
	if len(m.ListPrefixes()) != 0 {
		t.Error("no prefix should be registered after rollback")
	}
}

func TestAddSpec_RouterFailureLeavesNothingBehind(t *testing.T) {
	store := newStubStore()
	router := newStubRouter()
	router.mountErr = fmt.Errorf("duplicate")
	m := newTestManager(store, router)

	if _, err := m.AddSpec(context.Background(), "a.json", "http://a", "items"); err == nil {
		t.Fatal("expected error")
	}
	if len(store.saved) != 0 {
		t.Error("nothing should be persisted when the router mount fails")
	}
}

func TestAddSpec_AutoPrefix(t *testing.T) {
	m := newTestManager(newStubStore(), newStubRouter())
	ctx := context.Background()

	entry, err := m.AddSpec(ctx, "https://example.com/specs/petstore.json?v=3", "http://a", "")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Prefix != "petstore" {
		t.Errorf("expected auto prefix petstore, got %s", entry.Prefix)
	}

	// Same source again collides and gets a numeric suffix.
	entry2, err := m.AddSpec(ctx, "https://example.com/specs/petstore.json", "http://a", "")
	if err != nil {
		t.Fatal(err)
	}
	if entry2.Prefix != "petstore-2" {
		t.Errorf("expected auto prefix petstore-2, got %s", entry2.Prefix)
	}
}

// --- ListTools Tests ---

func TestListTools_CombinedViewIsQualified(t *testing.T) {
	m := newTestManager(newStubStore(), newStubRouter())
	ctx := context.Background()

	if _, err := m.AddSpec(ctx, "a.json", "http://a", "alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddSpec(ctx, "b.json", "http://b", "beta"); err != nil {
		t.Fatal(err)
	}

	combined, err := m.ListTools("")
	if err != nil {
		t.Fatal(err)
	}
	if len(combined) != 4 {
		t.Fatalf("expected 4 combined tools, got %d", len(combined))
	}
	if combined[0].Name != "alpha_listItems" {
		t.Errorf("expected alpha_listItems first, got %s", combined[0].Name)
	}
	if combined[2].Name != "beta_listItems" {
		t.Errorf("expected beta_listItems third, got %s", combined[2].Name)
	}
}

func TestListTools_UnknownPrefix(t *testing.T) {
	m := newTestManager(newStubStore(), newStubRouter())
	_, err := m.ListTools("ghost")
	if !errors.Is(err, ErrPrefixNotFound) {
		t.Errorf("expected ErrPrefixNotFound, got %v", err)
	}
}

// --- ExportSpec Tests ---

func TestExportSpec_ByteIdentical(t *testing.T) {
	m := newTestManager(newStubStore(), newStubRouter())

	if _, err := m.AddSpec(context.Background(), "a.json", "http://a", "items"); err != nil {
		t.Fatal(err)
	}

	doc, err := m.ExportSpec("items")
	if err != nil {
		t.Fatal(err)
	}
	if string(doc) != managerTestSpec {
		t.Error("exported document should be byte-identical to the loaded one")
	}

	_, err = m.ExportSpec("ghost")
	if !errors.Is(err, ErrPrefixNotFound) {
		t.Errorf("expected ErrPrefixNotFound, got %v", err)
	}
}

// --- SetToolEnabled Tests ---

func TestSetToolEnabled_Persists(t *testing.T) {
	store := newStubStore()
	m := newTestManager(store, newStubRouter())
	ctx := context.Background()

	if _, err := m.AddSpec(ctx, "a.json", "http://a", "items"); err != nil {
		t.Fatal(err)
	}

	if err := m.SetToolEnabled(ctx, "items", "listItems", false); err != nil {
		t.Fatalf("SetToolEnabled failed: %v", err)
	}

	tools, _ := m.ListTools("items")
	for _, tool := range tools {
		if tool.Name == "listItems" && tool.Enabled {
			t.Error("listItems should be disabled")
		}
		if tool.Name == "createItem" && !tool.Enabled {
			t.Error("createItem should be untouched")
		}
	}
	if store.saved["items"].Tool("listItems").Enabled {
		t.Error("disable should be persisted")
	}
}

func TestSetToolEnabled_UnknownToolSkipsStore(t *testing.T) {
	store := newStubStore()
	m := newTestManager(store, newStubRouter())
	ctx := context.Background()

	if _, err := m.AddSpec(ctx, "a.json", "http://a", "items"); err != nil {
		t.Fatal(err)
	}

	err := m.SetToolEnabled(ctx, "items", "ghost", false)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
	if store.setCalls != 0 {
		t.Error("store should not be written for an unknown tool")
	}

	err = m.SetToolEnabled(ctx, "ghost", "listItems", false)
	if !errors.Is(err, ErrPrefixNotFound) {
		t.Errorf("expected ErrPrefixNotFound, got %v", err)
	}
}

func TestSetToolEnabled_StoreFailureLeavesStateUntouched(t *testing.T) {
	store := newStubStore()
	m := newTestManager(store, newStubRouter())
	ctx := context.Background()

	if _, err := m.AddSpec(ctx, "a.json", "http://a", "items"); err != nil {
		t.Fatal(err)
	}
	store.setErr = fmt.Errorf("locked")

	err := m.SetToolEnabled(ctx, "items", "listItems", false)
	if !errors.Is(err, ErrStoreWriteFailed) {
		t.Fatalf("expected ErrStoreWriteFailed, got %v", err)
	}

	tools, _ := m.ListTools("items")
	for _, tool := range tools {
		if tool.Name == "listItems" && !tool.Enabled {
			t.Error("failed store write must not change the in-memory flag")
		}
	}
}

// --- RemoveSpec Tests ---

func TestRemoveSpec(t *testing.T) {
	store := newStubStore()
	router := newStubRouter()
	m := newTestManager(store, router)
	ctx := context.Background()

	if _, err := m.AddSpec(ctx, "a.json", "http://a", "items"); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveSpec(ctx, "items"); err != nil {
		t.Fatalf("RemoveSpec failed: %v", err)
	}

	if len(m.ListPrefixes()) != 0 {
		t.Error("prefix should be gone")
	}
	if router.mounted["items"] {
		t.Error("router should be unmounted")
	}
	if _, ok := store.saved["items"]; ok {
		t.Error("store record should be deleted")
	}

	if err := m.RemoveSpec(ctx, "items"); !errors.Is(err, ErrPrefixNotFound) {
		t.Errorf("expected ErrPrefixNotFound, got %v", err)
	}
}

// --- Restore / Reconcile Tests ---

func TestRestore_MountsPersistedEntries(t *testing.T) {
	store := newStubStore()
	router := newStubRouter()

	doc, _ := openapi.Parse([]byte(managerTestSpec))
	tools, _ := openapi.DeriveTools(doc)
	tools[0].Enabled = false
	store.loadResult = []*models.MountEntry{
		{Prefix: "items", Source: "a.json", APIBaseURL: "http://a", Document: doc.Raw, Tools: tools},
	}

	m := newTestManager(store, router)
	if err := m.Restore(context.Background(), false); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if !router.mounted["items"] {
		t.Error("restored prefix should be mounted")
	}
	restored, err := m.ListTools("items")
	if err != nil {
		t.Fatal(err)
	}
	if restored[0].Enabled {
		t.Error("persisted disabled flag should survive restore")
	}
}

func TestReconcile_SkipsMountedPrefixes(t *testing.T) {
	store := newStubStore()
	m := newTestManager(store, newStubRouter())
	ctx := context.Background()

	if _, err := m.AddSpec(ctx, "a.json", "http://a", "items"); err != nil {
		t.Fatal(err)
	}

	m.Reconcile(ctx, []config.SpecConfig{
		{Source: "a.json", APIBaseURL: "http://a", Prefix: "items"},
		{Source: "b.json", APIBaseURL: "http://b", Prefix: "extra"},
	})

	prefixes := m.ListPrefixes()
	if len(prefixes) != 2 {
		t.Fatalf("expected 2 prefixes after reconcile, got %v", prefixes)
	}
}

func TestReconcile_MatchesAutoPrefixedBySource(t *testing.T) {
	m := newTestManager(newStubStore(), newStubRouter())
	ctx := context.Background()

	spec := config.SpecConfig{Source: "./specs/petstore.json", APIBaseURL: "http://a"}
	m.Reconcile(ctx, []config.SpecConfig{spec})
	m.Reconcile(ctx, []config.SpecConfig{spec})

	if prefixes := m.ListPrefixes(); len(prefixes) != 1 {
		t.Errorf("reconcile must be idempotent for auto-prefixed sources, got %v", prefixes)
	}
}

func TestReconcile_FailureDoesNotBlockOthers(t *testing.T) {
	m := newTestManager(newStubStore(), newStubRouter())
	failing := func(ctx context.Context, source models.SpecSource) (*openapi.Document, error) {
		if source == "bad.json" {
			return nil, fmt.Errorf("unreachable")
		}
		return openapi.Parse([]byte(managerTestSpec))
	}
	m.loadSpec = failing

	m.Reconcile(context.Background(), []config.SpecConfig{
		{Source: "bad.json", APIBaseURL: "http://a", Prefix: "bad"},
		{Source: "good.json", APIBaseURL: "http://b", Prefix: "good"},
	})

	prefixes := m.ListPrefixes()
	if len(prefixes) != 1 || prefixes[0] != "good" {
		t.Errorf("expected only good mounted, got %v", prefixes)
	}
}
