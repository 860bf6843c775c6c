package results

import (
	"context"
	"sort"
	"sync"
)

// MemStore keeps records in memory. Records are lost on restart.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]Record
}

var _ Repository = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string]Record)}
}

func (s *MemStore) Save(ctx context.Context, rec *Record) error {
	prepare(rec)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.ID] = clone(*rec)
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.items[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return clone(rec), nil
}

// List returns the newest records first.
func (s *MemStore) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.items))
	for _, rec := range s.items {
		out = append(out, clone(rec))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
