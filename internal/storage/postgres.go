package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns URL when set, otherwise a key/value connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger

	schemaOnce sync.Once
	schemaErr  error
}

// NewPostgresStorage opens the pool without connecting. The schema is created
// by Init, which is safe to call from concurrent first requests.
func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	return newPostgresStorage(db, logger), nil
}

func newPostgresStorage(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

// Init creates the content history table once per process.
func (s *PostgresStorage) Init(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		s.schemaErr = s.initializeSchema(ctx)
		if s.schemaErr != nil {
			s.logger.Warn("Failed to initialize database schema, content history may be unavailable",
				zap.Error(s.schemaErr))
			return
		}
		s.logger.Info("Content history table initialized")
	})
	return s.schemaErr
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveContent(ctx context.Context, record *models.ContentRecord) error {
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("error encoding metadata: %w", err)
	}

	query := `
		INSERT INTO content_history (content, type, metadata)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err = s.db.QueryRowContext(ctx, query,
		record.Content,
		string(record.Type),
		meta,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving content: %w", err)
	}

	s.logger.Debug("Content saved",
		zap.Int64("id", record.ID),
		zap.String("type", string(record.Type)))
	return nil
}

func (s *PostgresStorage) RecentContent(ctx context.Context, contentType models.ContentType, limit int) ([]*models.ContentRecord, error) {
	query := `
		SELECT id, content, type, metadata, created_at
		FROM content_history
		WHERE type = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, string(contentType), limit)
	if err != nil {
		return nil, fmt.Errorf("error querying content: %w", err)
	}
	defer rows.Close()

	var records []*models.ContentRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content: %w", err)
	}
	return records, nil
}

func (s *PostgresStorage) LatestContent(ctx context.Context, contentType models.ContentType) (*models.ContentRecord, error) {
	records, err := s.RecentContent(ctx, contentType, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (*models.ContentRecord, error) {
	var (
		record      models.ContentRecord
		contentType string
		meta        []byte
	)
	if err := rows.Scan(&record.ID, &record.Content, &contentType, &meta, &record.CreatedAt); err != nil {
		return nil, fmt.Errorf("error scanning content: %w", err)
	}
	record.Type = models.ContentType(contentType)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &record.Metadata); err != nil {
			return nil, fmt.Errorf("error decoding metadata: %w", err)
		}
	}
	return &record, nil
}
