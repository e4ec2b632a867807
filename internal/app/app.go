// Package app wires configuration, storage, the registry manager, the MCP
// router, and the HTTP handlers into one application instance.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/config"
	"github.com/specmount/specmount/internal/handlers"
	"github.com/specmount/specmount/internal/interfaces"
	"github.com/specmount/specmount/internal/mcp"
	"github.com/specmount/specmount/internal/registry"
	"github.com/specmount/specmount/internal/storage"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	Store     interfaces.RegistryStorage
	MCPRouter *mcp.Router
	Manager   *registry.Manager

	// HTTP handlers
	HealthHandler  *handlers.HealthHandler
	VersionHandler *handlers.VersionHandler
	ServersHandler *handlers.ServersHandler
	ToolsHandler   *handlers.ToolsHandler
	ExportHandler  *handlers.ExportHandler
	SearchHandler  *handlers.SearchHandler
}

// New initializes the application: opens the registry store (with bounded
// retry), restores persisted mounts, and reconciles the configured spec list.
// A store that stays unreachable past the retry window is a startup failure.
func New(ctx context.Context, cfg *config.Config, logger *common.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	store, err := storage.NewRegistryStorage(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry store: %w", err)
	}
	a.Store = store

	a.MCPRouter = mcp.NewRouter(logger)
	a.Manager = registry.NewManager(store, a.MCPRouter, logger)

	refetch := cfg.Storage.SQLite.Reconcile == config.ReconcileRefetch
	if err := a.Manager.Restore(ctx, refetch); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to restore registry: %w", err)
	}

	a.Manager.Reconcile(ctx, cfg.Specs)

	if cfg.ExportOnStart != "" {
		if err := a.exportRegistry(cfg.ExportOnStart); err != nil {
			logger.Warn().
				Str("path", cfg.ExportOnStart).
				Str("error", err.Error()).
				Msg("failed to write startup registry export")
		}
	}

	a.initHandlers()

	logger.Info().
		Int("servers", len(a.Manager.ListPrefixes())).
		Msg("application initialization complete")

	return a, nil
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() {
	a.HealthHandler = handlers.NewHealthHandler(a.Logger, a.Manager)
	a.VersionHandler = handlers.NewVersionHandler(a.Logger)
	a.ServersHandler = handlers.NewServersHandler(a.Logger, a.Manager)
	a.ToolsHandler = handlers.NewToolsHandler(a.Logger, a.Manager)
	a.ExportHandler = handlers.NewExportHandler(a.Logger, a.Manager)
	a.SearchHandler = handlers.NewSearchHandler(a.Logger, a.Manager)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// exportRegistry writes a JSON snapshot of the mounted registry to path.
type exportedMount struct {
	Prefix     string   `json:"prefix"`
	Source     string   `json:"source"`
	APIBaseURL string   `json:"api_base_url"`
	Tools      []string `json:"tools"`
}

func (a *App) exportRegistry(path string) error {
	entries := a.Manager.Snapshot()
	out := make([]exportedMount, 0, len(entries))
	for _, entry := range entries {
		em := exportedMount{
			Prefix:     entry.Prefix,
			Source:     entry.Source.String(),
			APIBaseURL: entry.APIBaseURL,
			Tools:      make([]string, 0, len(entry.Tools)),
		}
		for _, tool := range entry.Tools {
			em.Tools = append(em.Tools, tool.Name)
		}
		out = append(out, em)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Close closes all application resources.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
