package config

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 4280,
			Host: "localhost",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				DSN:                   "./data/specmount.db",
				ConnectTimeoutSeconds: 30,
				Reconcile:             ReconcileTrustPersisted,
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Outputs: []string{"console", "file"},
		},
	}
}
