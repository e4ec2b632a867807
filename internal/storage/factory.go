package storage

import (
	"github.com/specmount/specmount/internal/common"
	"github.com/specmount/specmount/internal/config"
	"github.com/specmount/specmount/internal/interfaces"
	"github.com/specmount/specmount/internal/storage/sqlite"
)

// NewRegistryStorage creates the registry store based on config. Opening
// retries with bounded backoff per the storage settings.
func NewRegistryStorage(logger *common.Logger, cfg *config.Config) (interfaces.RegistryStorage, error) {
	db, err := sqlite.Open(logger, &cfg.Storage.SQLite)
	if err != nil {
		return nil, err
	}
	return sqlite.NewRegistryStorage(db, logger), nil
}
