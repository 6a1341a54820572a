// Package storage provides the key/value backends behind the public key
// cache: in-memory, SQLite, Postgres and LevelDB.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/fhevmkit/internal/config"
)

// KeyValueStore is the get/set/remove capability the key cache consumes.
// Get returns ErrNotFound for absent keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Store combines the key/value capability with lifecycle methods.
type Store interface {
	KeyValueStore

	// Keys lists stored keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(cfg.Memory.Size, logger)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "leveldb":
		return NewLevelDBStore(cfg.LevelDB.Path, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}
