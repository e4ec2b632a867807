package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/models"
)

// registrySchema is the durable projection of the registry: one row per
// mounted prefix and one row per (prefix, tool). The raw spec document is
// kept alongside the mount so export never depends on remote availability.
const registrySchema = `
CREATE TABLE IF NOT EXISTS mounts (
	prefix TEXT PRIMARY KEY,
	spec_source TEXT NOT NULL,
	api_base_url TEXT NOT NULL,
	spec_document BLOB NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tools (
	prefix TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	params BLOB,
	enabled INTEGER NOT NULL DEFAULT 1,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (prefix, name)
);`

// RegistryStorage implements interfaces.RegistryStorage on SQLite.
type RegistryStorage struct {
	db     *DB
	logger *common.Logger
}

// NewRegistryStorage creates a registry store backed by an open SQLite DB.
func NewRegistryStorage(db *DB, logger *common.Logger) *RegistryStorage {
	return &RegistryStorage{
		db:     db,
		logger: logger,
	}
}

// SaveMount writes a mount entry and its full tool set in one transaction,
// replacing any previous record for the same prefix.
func (s *RegistryStorage) SaveMount(ctx context.Context, entry *models.MountEntry) error {
	if entry == nil || entry.Prefix == "" {
		return fmt.Errorf("mount entry prefix is required")
	}

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mount transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO mounts (prefix, spec_source, api_base_url, spec_document, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(prefix) DO UPDATE SET
	spec_source = excluded.spec_source,
	api_base_url = excluded.api_base_url,
	spec_document = excluded.spec_document,
	created_at = excluded.created_at`,
		entry.Prefix,
		entry.Source.String(),
		entry.APIBaseURL,
		entry.Document,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mount %s: %w", entry.Prefix, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tools WHERE prefix = ?`, entry.Prefix); err != nil {
		return fmt.Errorf("failed to clear tools for %s: %w", entry.Prefix, err)
	}

	for i, tool := range entry.Tools {
		params, err := json.Marshal(tool.Params)
		if err != nil {
			return fmt.Errorf("failed to encode params for %s/%s: %w", entry.Prefix, tool.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO tools (prefix, name, description, method, path, params, enabled, position)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.Prefix,
			tool.Name,
			tool.Description,
			tool.Method,
			tool.Path,
			params,
			boolToInt(tool.Enabled),
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert tool %s/%s: %w", entry.Prefix, tool.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mount %s: %w", entry.Prefix, err)
	}
	return nil
}

// DeleteMount removes a mount entry and its tools. Missing prefixes are a no-op.
func (s *RegistryStorage) DeleteMount(ctx context.Context, prefix string) error {
	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tools WHERE prefix = ?`, prefix); err != nil {
		return fmt.Errorf("failed to delete tools for %s: %w", prefix, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mounts WHERE prefix = ?`, prefix); err != nil {
		return fmt.Errorf("failed to delete mount %s: %w", prefix, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", prefix, err)
	}
	return nil
}

// LoadMounts returns all persisted mount entries in creation order, each with
// its tools in derivation order.
func (s *RegistryStorage) LoadMounts(ctx context.Context) ([]*models.MountEntry, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
SELECT prefix, spec_source, api_base_url, spec_document, created_at
FROM mounts
ORDER BY created_at ASC, prefix ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mounts: %w", err)
	}
	defer rows.Close()

	var entries []*models.MountEntry
	for rows.Next() {
		var (
			entry      models.MountEntry
			source     string
			createdRaw string
		)
		if err := rows.Scan(&entry.Prefix, &source, &entry.APIBaseURL, &entry.Document, &createdRaw); err != nil {
			return nil, fmt.Errorf("failed to scan mount row: %w", err)
		}
		entry.Source = models.SpecSource(source)
		if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mount rows: %w", err)
	}

	for _, entry := range entries {
		tools, err := s.loadTools(ctx, entry.Prefix)
		if err != nil {
			return nil, err
		}
		entry.Tools = tools
	}

	return entries, nil
}

func (s *RegistryStorage) loadTools(ctx context.Context, prefix string) ([]models.ToolDefinition, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
SELECT name, description, method, path, params, enabled
FROM tools
WHERE prefix = ?
ORDER BY position ASC`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools for %s: %w", prefix, err)
	}
	defer rows.Close()

	var tools []models.ToolDefinition
	for rows.Next() {
		var (
			tool    models.ToolDefinition
			params  []byte
			enabled int
		)
		if err := rows.Scan(&tool.Name, &tool.Description, &tool.Method, &tool.Path, &params, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan tool row for %s: %w", prefix, err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &tool.Params); err != nil {
				return nil, fmt.Errorf("failed to decode params for %s/%s: %w", prefix, tool.Name, err)
			}
		}
		tool.Enabled = enabled != 0
		tools = append(tools, tool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tool rows for %s: %w", prefix, err)
	}
	return tools, nil
}

// SetToolEnabled durably flips one tool's enabled flag. The row must exist:
// the in-memory registry is a cache over this table, so a missing row means
// the two views diverged.
func (s *RegistryStorage) SetToolEnabled(ctx context.Context, prefix, name string, enabled bool) error {
	res, err := s.db.DB().ExecContext(ctx,
		`UPDATE tools SET enabled = ? WHERE prefix = ? AND name = ?`,
		boolToInt(enabled), prefix, name)
	if err != nil {
		return fmt.Errorf("failed to update tool %s/%s: %w", prefix, name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of %s/%s: %w", prefix, name, err)
	}
	if affected == 0 {
		return fmt.Errorf("tool %s/%s not persisted: %w", prefix, name, sql.ErrNoRows)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *RegistryStorage) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
