package eventstore

import (
	"context"
	"sort"
	"sync"
)

// memStore keeps records in a map. Used in tests and for throwaway runs
// (records do not survive a restart).
type memStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemory() Store {
	return &memStore{recs: map[string]Record{}}
}

func (s *memStore) List(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	// Stable order keeps tests deterministic.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Save(ctx context.Context, r Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[r.ID] = r
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return ErrNotFound
	}
	delete(s.recs, id)
	return nil
}

func (s *memStore) Close() error { return nil }
