package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/chatpulse/internal/config"
)

// Keys
const (
	KeyToken = "TOKEN" // Identity provider refresh token
	KeyEmail = "EMAIL" // Email of the signed-in user
)

// Errors
var (
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("store closed")
)

// Store is a string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage", "driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLite.Path, logger)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.Postgres, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
