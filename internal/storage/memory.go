package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/x-agent/internal/models"
)

type MemoryStorage struct {
	mu      sync.RWMutex
	nextID  int64
	records []*models.ContentRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) SaveContent(ctx context.Context, record *models.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	record.ID = s.nextID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	stored := *record
	stored.Metadata = copyMetadata(record.Metadata)
	s.records = append(s.records, &stored)
	return nil
}

func (s *MemoryStorage) RecentContent(ctx context.Context, contentType models.ContentType, limit int) ([]*models.ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.ContentRecord
	for _, r := range s.records {
		if r.Type == contentType {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*models.ContentRecord, len(matched))
	for i, r := range matched {
		c := *r
		c.Metadata = copyMetadata(r.Metadata)
		out[i] = &c
	}
	return out, nil
}

func (s *MemoryStorage) LatestContent(ctx context.Context, contentType models.ContentType) (*models.ContentRecord, error) {
	records, err := s.RecentContent(ctx, contentType, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
