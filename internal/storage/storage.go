package storage

import (
	"context"

	"github.com/xaenox/x-agent/internal/models"
)

// Storage is the append-only content history.
type Storage interface {
	// SaveContent appends a record and fills in its ID and CreatedAt.
	SaveContent(ctx context.Context, record *models.ContentRecord) error
	// RecentContent returns up to limit records of the given type, newest first.
	RecentContent(ctx context.Context, contentType models.ContentType, limit int) ([]*models.ContentRecord, error)
	// LatestContent returns the newest record of the given type, or nil if none exist.
	LatestContent(ctx context.Context, contentType models.ContentType) (*models.ContentRecord, error)
	Close() error
}
