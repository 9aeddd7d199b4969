package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/models"
)

type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at path and
// ensures the processed_posts table exists. Use ":memory:" for a throwaway store.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLiteStorage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// synchronous=FULL: an insert is on disk once Exec returns.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=10000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection keeps ":memory:" a single database and matches the single-writer model.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &SQLiteStorage{db: db, logger: logger}
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Opened sqlite dedup store", zap.String("path", path))
	return storage, nil
}

func (s *SQLiteStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Has(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_posts WHERE id = ?)`, itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking processed post %s: %w", itemID, err)
	}
	return exists, nil
}

func (s *SQLiteStorage) MarkProcessed(ctx context.Context, item models.Item) error {
	record := models.NewProcessedRecord(item)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_posts (id, title, selftext, created_utc) VALUES (?, ?, ?, ?)`,
		record.ItemID, record.Title, record.Text, record.CreatedAt.Unix(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, item.ID)
		}
		return fmt.Errorf("error marking post %s processed: %w", item.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting processed posts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) Clear(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM processed_posts`)
	if err != nil {
		return fmt.Errorf("error clearing processed posts: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil {
		s.logger.Warn("Cleared dedup store", zap.Int64("removed", n))
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
