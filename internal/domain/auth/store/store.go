package store

import (
	"context"
)

// Store is the secure key-value contract the session layer persists into.
// Keys are scoped to the configured namespace by every backend.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver    string
	Namespace string
	Redis     *RedisConfig
	SQLite    *SQLiteConfig
	// SealKey enables at-rest encryption when it holds 32 bytes.
	SealKey []byte
}

// SQLiteConfig provides the database location.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

func namespaceOf(cfg Config) string {
	if cfg.Namespace == "" {
		return "default"
	}
	return cfg.Namespace
}
