package store

import (
	"context"
	"sort"
	"sync"

	"github.com/homefixr/dispatch/core/model"
)

// MemoryStore is the in-memory BookingStore used by the standalone engine and
// by tests. Bookings are stored as clones so callers can never mutate state
// behind the version check.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*model.Booking
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]*model.Booking{}}
}

func (s *MemoryStore) Create(_ context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[b.ID]; ok {
		return ErrDuplicateID
	}
	b.Version = 1
	s.data[b.ID] = b.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, id string, expectedVersion int64, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := b.Clone()
	next.Version = expectedVersion + 1
	s.data[id] = next
	b.Version = next.Version
	return nil
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*model.Booking
	for _, b := range s.data {
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if f.TechnicianID != "" && b.TechnicianID != f.TechnicianID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		res = append(res, b.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}
