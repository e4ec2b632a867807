package registry

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/config"
	"github.com/specmount/specmount/internal/interfaces"
	"github.com/specmount/specmount/internal/models"
	"github.com/specmount/specmount/internal/openapi"
)

// Router is the endpoint router boundary: per-prefix tool exposure and
// enablement, owned by the transport layer. Mounting a prefix is a map
// insert on the router side, never a restart.
type Router interface {
	// Mount exposes a mount entry's tools under its prefix and in the
	// combined view.
	Mount(entry *models.MountEntry) error

	// Unmount withdraws a prefix and its combined-view tools.
	Unmount(prefix string)

	// SetToolEnabled updates the flag the router consults before
	// dispatching an invocation. In-flight invocations are unaffected.
	SetToolEnabled(prefix, name string, enabled bool)
}

// loadFunc matches openapi.Load; injectable for tests.
type loadFunc func(ctx context.Context, source models.SpecSource) (*openapi.Document, error)

// Manager owns the in-memory registry of mount entries and mediates every
// addition, removal, export, and enablement change, keeping the store and
// the router in lockstep: the set of prefixes known here always equals the
// set mounted on the router.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*models.MountEntry
	order   []string // prefixes in mount order

	store    interfaces.RegistryStorage
	router   Router
	logger   *common.Logger
	loadSpec loadFunc
}

// NewManager creates a mount manager over the given store and router.
func NewManager(store interfaces.RegistryStorage, router Router, logger *common.Logger) *Manager {
	return &Manager{
		entries:  make(map[string]*models.MountEntry),
		store:    store,
		router:   router,
		logger:   logger,
		loadSpec: openapi.Load,
	}
}

var prefixPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// AddSpec loads the spec at source, derives its tools, and mounts them under
// prefix (auto-generated from the source when empty). In-memory
// registration, router mount, and store write are applied as a unit: a
// failed store write rolls the mount back entirely before the error
// surfaces, so partial mounts are never visible.
func (m *Manager) AddSpec(ctx context.Context, source models.SpecSource, apiBaseURL, prefix string) (*models.MountEntry, error) {
	doc, err := m.loadSpec(ctx, source)
	if err != nil {
		return nil, err
	}
	tools, err := openapi.DeriveTools(doc)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prefix == "" {
		prefix = m.autoPrefixLocked(source)
	} else {
		if !prefixPattern.MatchString(prefix) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
		}
		if _, exists := m.entries[prefix]; exists {
			return nil, fmt.Errorf("%w: %q", ErrPrefixTaken, prefix)
		}
	}

	entry := &models.MountEntry{
		Prefix:     prefix,
		Source:     source,
		APIBaseURL: strings.TrimRight(apiBaseURL, "/"),
		Document:   doc.Raw,
		Tools:      tools,
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.router.Mount(entry); err != nil {
		return nil, fmt.Errorf("failed to mount %q on router: %w", prefix, err)
	}
	if err := m.store.SaveMount(ctx, entry); err != nil {
		m.router.Unmount(prefix)
		return nil, fmt.Errorf("%w: mount %q: %v", ErrStoreWriteFailed, prefix, err)
	}

	m.entries[prefix] = entry
	m.order = append(m.order, prefix)

	m.logger.Info().
		Str("prefix", prefix).
		Str("source", source.String()).
		Int("tools", len(tools)).
		Msg("spec mounted")

	return entry.Clone(), nil
}

// RemoveSpec unmounts a prefix, deleting it from the store, the router, and
// the registry. It is the inverse of AddSpec; re-adding is the only way to
// relocate a spec under a different prefix.
func (m *Manager) RemoveSpec(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[prefix]; !exists {
		return fmt.Errorf("%w: %q", ErrPrefixNotFound, prefix)
	}
	if err := m.store.DeleteMount(ctx, prefix); err != nil {
		return fmt.Errorf("%w: remove %q: %v", ErrStoreWriteFailed, prefix, err)
	}

	m.router.Unmount(prefix)
	delete(m.entries, prefix)
	for i, p := range m.order {
		if p == prefix {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	m.logger.Info().Str("prefix", prefix).Msg("spec unmounted")
	return nil
}

// ListPrefixes returns all mounted prefixes in mount order.
func (m *Manager) ListPrefixes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// ListTools returns the tool collection for one prefix, or the combined
// prefix-qualified collection across all prefixes when prefix is empty.
func (m *Manager) ListTools(prefix string) ([]models.ToolDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if prefix != "" {
		entry, exists := m.entries[prefix]
		if !exists {
			return nil, fmt.Errorf("%w: %q", ErrPrefixNotFound, prefix)
		}
		return models.CloneTools(entry.Tools), nil
	}

	var combined []models.ToolDefinition
	for _, p := range m.order {
		entry := m.entries[p]
		for _, tool := range entry.Tools {
			qualified := tool
			qualified.Name = p + "_" + tool.Name
			qualified.Params = append([]models.ToolParam(nil), tool.Params...)
			combined = append(combined, qualified)
		}
	}
	return combined, nil
}

// ExportSpec returns the raw OpenAPI document mounted under prefix,
// byte-identical to what was originally loaded.
func (m *Manager) ExportSpec(prefix string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[prefix]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrPrefixNotFound, prefix)
	}
	return append([]byte(nil), entry.Document...), nil
}

// SetToolEnabled flips a tool's enabled flag. The store write happens before
// anything else changes, so a crash immediately after return cannot lose the
// change, and a failed write leaves registry and router untouched.
func (m *Manager) SetToolEnabled(ctx context.Context, prefix, name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[prefix]
	if !exists {
		return fmt.Errorf("%w: %q", ErrPrefixNotFound, prefix)
	}
	tool := entry.Tool(name)
	if tool == nil {
		return fmt.Errorf("%w: %q under %q", ErrToolNotFound, name, prefix)
	}

	if err := m.store.SetToolEnabled(ctx, prefix, name, enabled); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrStoreWriteFailed, prefix, name, err)
	}

	tool.Enabled = enabled
	m.router.SetToolEnabled(prefix, name, enabled)

	m.logger.Info().
		Str("prefix", prefix).
		Str("tool", name).
		Bool("enabled", enabled).
		Msg("tool enablement changed")

	return nil
}

// Snapshot returns a deep copy of all mount entries in mount order.
func (m *Manager) Snapshot() []*models.MountEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.MountEntry, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.entries[p].Clone())
	}
	return out
}

// Restore rebuilds the in-memory registry from the store's persisted state.
// With refetch enabled, each source is re-loaded and re-derived with the
// persisted enablement flags overlaid; a source that cannot be re-fetched
// falls back to its persisted tool set so boot never depends on remote
// availability.
func (m *Manager) Restore(ctx context.Context, refetch bool) error {
	entries, err := m.store.LoadMounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted mounts: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range entries {
		if refetch {
			m.refetchLocked(ctx, entry)
		}
		if err := m.router.Mount(entry); err != nil {
			return fmt.Errorf("failed to mount persisted prefix %q: %w", entry.Prefix, err)
		}
		m.entries[entry.Prefix] = entry
		m.order = append(m.order, entry.Prefix)
		m.logger.Info().
			Str("prefix", entry.Prefix).
			Int("tools", len(entry.Tools)).
			Msg("mount restored from store")
	}
	return nil
}

// refetchLocked re-derives entry's tools from the live source, carrying over
// persisted enablement flags, and persists the refreshed entry. On any
// failure the persisted tool set stays in effect.
func (m *Manager) refetchLocked(ctx context.Context, entry *models.MountEntry) {
	doc, err := m.loadSpec(ctx, entry.Source)
	if err != nil {
		m.logger.Warn().
			Str("prefix", entry.Prefix).
			Str("error", err.Error()).
			Msg("refetch failed, keeping persisted tool set")
		return
	}
	tools, err := openapi.DeriveTools(doc)
	if err != nil {
		m.logger.Warn().
			Str("prefix", entry.Prefix).
			Str("error", err.Error()).
			Msg("refetched spec no longer derivable, keeping persisted tool set")
		return
	}

	enabled := make(map[string]bool, len(entry.Tools))
	for _, t := range entry.Tools {
		enabled[t.Name] = t.Enabled
	}
	for i := range tools {
		if was, ok := enabled[tools[i].Name]; ok {
			tools[i].Enabled = was
		}
	}

	entry.Document = doc.Raw
	entry.Tools = tools

	if err := m.store.SaveMount(ctx, entry); err != nil {
		m.logger.Warn().
			Str("prefix", entry.Prefix).
			Str("error", err.Error()).
			Msg("failed to persist refetched spec")
	}
}

// Reconcile processes the startup spec list after Restore. A configured
// prefix that is already mounted is a no-op, keeping startup idempotent
// across restarts; other failures are logged and do not block the remaining
// sources.
func (m *Manager) Reconcile(ctx context.Context, specs []config.SpecConfig) {
	for _, sc := range specs {
		if m.alreadyMounted(sc) {
			m.logger.Debug().
				Str("source", sc.Source).
				Str("prefix", sc.Prefix).
				Msg("configured spec already mounted")
			continue
		}
		if _, err := m.AddSpec(ctx, models.SpecSource(sc.Source), sc.APIBaseURL, sc.Prefix); err != nil {
			m.logger.Warn().
				Str("source", sc.Source).
				Str("prefix", sc.Prefix).
				Str("error", err.Error()).
				Msg("failed to mount configured spec")
		}
	}
}

// alreadyMounted reports whether a configured spec is already present:
// matched by prefix when one is configured, by source otherwise (an auto
// prefix cannot be predicted without re-deriving it).
func (m *Manager) alreadyMounted(sc config.SpecConfig) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sc.Prefix != "" {
		_, exists := m.entries[sc.Prefix]
		return exists
	}
	for _, entry := range m.entries {
		if entry.Source.String() == sc.Source {
			return true
		}
	}
	return false
}

// autoPrefixLocked derives a prefix from the source identifier: the base
// name with its extension stripped, slugged to a URL-path-safe token, with a
// numeric suffix appended on collision.
func (m *Manager) autoPrefixLocked(source models.SpecSource) string {
	base := path.Base(strings.TrimRight(sourcePath(source), "/"))
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}

	slug := slugify(base)
	if slug == "" {
		slug = "api"
	}

	if _, exists := m.entries[slug]; !exists {
		return slug
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", slug, i)
		if _, exists := m.entries[candidate]; !exists {
			return candidate
		}
	}
}

// sourcePath strips scheme, host, and query from URL sources so only the
// document path feeds prefix generation.
func sourcePath(source models.SpecSource) string {
	s := source.String()
	if source.IsURL() {
		if i := strings.Index(s, "://"); i >= 0 {
			s = s[i+3:]
		}
		if i := strings.IndexByte(s, '?'); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
