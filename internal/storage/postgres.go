package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/models"
)

const pgUniqueViolation = "23505"

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	return OpenPostgres(connStr, logger)
}

// OpenPostgres connects using a libpq connection string or URL.
func OpenPostgres(connStr string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Opened postgres dedup store")
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations/postgres.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Has(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_posts WHERE id = $1)`, itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking processed post %s: %w", itemID, err)
	}
	return exists, nil
}

func (s *PostgresStorage) MarkProcessed(ctx context.Context, item models.Item) error {
	record := models.NewProcessedRecord(item)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_posts (id, title, selftext, created_utc)
		VALUES ($1, $2, $3, $4)`,
		record.ItemID, record.Title, record.Text, record.CreatedAt.Unix(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, item.ID)
		}
		return fmt.Errorf("error marking post %s processed: %w", item.ID, err)
	}
	return nil
}

func (s *PostgresStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting processed posts: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) Clear(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM processed_posts`)
	if err != nil {
		return fmt.Errorf("error clearing processed posts: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil {
		s.logger.Warn("Cleared dedup store", zap.Int64("removed", n))
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
