package storage

import (
	"context"
	"sync"

	"github.com/xaenox/moon-harvester/internal/models"
)

type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]models.ProcessedRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]models.ProcessedRecord),
	}
}

func (s *MemoryStorage) Has(ctx context.Context, itemID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.records[itemID]
	return exists, nil
}

func (s *MemoryStorage) MarkProcessed(ctx context.Context, item models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[item.ID]; exists {
		return ErrDuplicateKey
	}
	s.records[item.ID] = models.NewProcessedRecord(item)
	return nil
}

func (s *MemoryStorage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records), nil
}

func (s *MemoryStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]models.ProcessedRecord)
	return nil
}

// Get returns the stored snapshot for itemID.
func (s *MemoryStorage) Get(itemID string) (models.ProcessedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[itemID]
	return record, exists
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
