package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fertility-cds-server/internal/domain"
)

// MemoryStore keeps records in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.PrescriptionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*domain.PrescriptionRecord)}
}

// Save inserts a finalized record.
func (s *MemoryStore) Save(_ context.Context, record *domain.PrescriptionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("prescription %s already exists", record.ID)
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

// Get retrieves a record by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.PrescriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("prescription %s: %w", id, domain.ErrNotFound)
	}
	return cloneRecord(record), nil
}

// ListBySession returns the records of one session, oldest first.
func (s *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]*domain.PrescriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.PrescriptionRecord{}
	for _, record := range s.records {
		if record.SessionID == sessionID {
			result = append(result, cloneRecord(record))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// List returns records with pagination, newest first.
func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]*domain.PrescriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.PrescriptionRecord, 0, len(s.records))
	for _, record := range s.records {
		all = append(all, record)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	result := []*domain.PrescriptionRecord{}
	if offset < 0 || offset >= len(all) || limit <= 0 {
		return result, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	for _, record := range all[offset:end] {
		result = append(result, cloneRecord(record))
	}
	return result, nil
}

// Count returns the total number of records.
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
