package services

import (
	"context"
	"sort"
	"sync"

	"github.com/ad/go-python-coach/internal/models"
)

// memStore is an in-memory ProgressStore for service tests.
type memStore struct {
	mu      sync.Mutex
	records map[int64]*models.ProgressRecord
	saves   int
	loadErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]*models.ProgressRecord)}
}

func (s *memStore) Load(_ context.Context, userID int64) (*models.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	record, ok := s.records[userID]
	if !ok {
		return nil, models.ErrProgressNotFound
	}
	return record.Clone(), nil
}

func (s *memStore) Save(_ context.Context, record *models.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[record.UserID] = record.Clone()
	s.saves++
	return nil
}

func (s *memStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

func (s *memStore) UserIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memStore) get(userID int64) *models.ProgressRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[userID]
}
