package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrDuplicateKey is returned by MarkProcessed when the item is already recorded.
// Callers check Has first; seeing this error means that contract was broken.
var ErrDuplicateKey = errors.New("item already processed")

// DedupStore is the durable set of processed item ids.
// Marks are monotonic: only Clear removes them.
type DedupStore interface {
	Has(ctx context.Context, itemID string) (bool, error)
	// MarkProcessed returns once the record is committed.
	MarkProcessed(ctx context.Context, item models.Item) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

type DatabaseConfig struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Open returns the DedupStore selected by config.Driver: "sqlite" (default), "postgres" or "memory".
func Open(config DatabaseConfig, logger *zap.Logger) (DedupStore, error) {
	switch config.Driver {
	case "", "sqlite", "sqlite3":
		store, err := NewSQLiteStorage(config.Path, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := NewPostgresStorage(config, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		logger.Warn("Using in-memory dedup store; processed items are forgotten on exit")
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}
