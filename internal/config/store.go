package config

import (
	"strings"
	"time"
)

// StoreConfig configures the search store. The DSN selects the backend:
// postgres:// URLs open a Postgres pool, anything else is treated as a
// SQLite file path.
type StoreConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int    `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// IsPostgres reports whether the DSN points at a Postgres server.
func (c StoreConfig) IsPostgres() bool {
	return strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://")
}

// GetConnMaxLifetime returns the connection lifetime as a duration.
func (c StoreConfig) GetConnMaxLifetime() time.Duration {
	d, err := time.ParseDuration(c.ConnMaxLifetime)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}
