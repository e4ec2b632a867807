package interfaces

import (
	"context"
	"errors"

	"github.com/specmount/specmount/internal/models"
)

// ErrStoreUnavailable reports that the backing store could not be reached
// within the bounded startup retry window. It is a fatal startup error, never
// a runtime one.
var ErrStoreUnavailable = errors.New("store unavailable")

// RegistryStorage is the persistence boundary for mount entries and per-tool
// enablement. Persisted state is the source of truth across restarts: the
// in-memory registry is rebuilt from it at startup, never the reverse.
// All writes are synchronous from the caller's perspective.
type RegistryStorage interface {
	// SaveMount durably writes a mount entry and its full tool set,
	// replacing any previous record for the same prefix.
	SaveMount(ctx context.Context, entry *models.MountEntry) error

	// DeleteMount removes a mount entry and its tools. Missing prefixes are
	// a no-op.
	DeleteMount(ctx context.Context, prefix string) error

	// LoadMounts returns all persisted mount entries, tools in derivation
	// order, entries in creation order.
	LoadMounts(ctx context.Context) ([]*models.MountEntry, error)

	// SetToolEnabled durably flips one tool's enabled flag.
	SetToolEnabled(ctx context.Context, prefix, name string, enabled bool) error

	// Close releases the underlying connection.
	Close() error
}
