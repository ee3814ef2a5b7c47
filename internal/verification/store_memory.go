package verification

import (
	"context"
	"sync"

	"onboarding/pkg/platform/sentinel"
)

// InMemoryStore keeps records in append order.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) LatestSuccessful(_ context.Context, lookup Lookup) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if lookup.matches(rec.Request) && rec.Successful() {
			return &rec, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner Owner) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.Request.Owner == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}
