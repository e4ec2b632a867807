package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/config"
	"github.com/specmount/specmount/internal/interfaces"
)

// DB manages the SQLite database connection for the registry store.
type DB struct {
	db     *sql.DB
	logger *common.Logger
	config *config.SQLiteConfig
}

// Open opens the SQLite database, retrying with bounded exponential backoff
// until the configured connect timeout elapses. This accommodates a backing
// store that becomes available a few seconds after the process starts;
// exhausting the window is an unrecoverable startup failure.
func Open(logger *common.Logger, cfg *config.SQLiteConfig) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}

	if dir := filepath.Dir(dsnPath(cfg.DSN)); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger.Debug().Str("dsn", cfg.DSN).Msg("opening SQLite database")

	var db *sql.DB
	connect := func() error {
		d, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return err
		}
		if err := d.Ping(); err != nil {
			_ = d.Close()
			return err
		}
		db = d
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = timeout

	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Str("dsn", cfg.DSN).
			Str("error", err.Error()).
			Dur("retry_in", wait).
			Msg("store connection failed, retrying")
	}

	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrStoreUnavailable, cfg.DSN, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(registrySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}

	logger.Debug().Str("dsn", cfg.DSN).Msg("SQLite database initialized")

	return &DB{
		db:     db,
		logger: logger,
		config: cfg,
	}, nil
}

// DB returns the underlying sql.DB.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// dsnPath strips URI-style decorations from a DSN so the parent directory of
// plain file DSNs can be created up front.
func dsnPath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}
