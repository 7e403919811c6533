package ledger

import (
	"context"
	"sync"

	"github.com/kosarica/deal-service/internal/types"
)

// Store holds the last observation per item. CompareAndSwap replaces the
// observation only if the current one equals old; a nil old means the key
// must not exist yet.
type Store interface {
	Get(ctx context.Context, key types.ItemKey) (types.PriceObservation, bool, error)
	Put(ctx context.Context, key types.ItemKey, obs types.PriceObservation) error
	CompareAndSwap(ctx context.Context, key types.ItemKey, old *types.PriceObservation, obs types.PriceObservation) (bool, error)
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu   sync.Mutex
	data map[types.ItemKey]types.PriceObservation
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[types.ItemKey]types.PriceObservation)}
}

// Get returns the observation stored for key
func (s *MemoryStore) Get(_ context.Context, key types.ItemKey) (types.PriceObservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, ok := s.data[key]
	return obs, ok, nil
}

// Put overwrites the observation for key
func (s *MemoryStore) Put(_ context.Context, key types.ItemKey, obs types.PriceObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = obs
	return nil
}

// CompareAndSwap implements Store
func (s *MemoryStore) CompareAndSwap(_ context.Context, key types.ItemKey, old *types.PriceObservation, obs types.PriceObservation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.data[key]
	if old == nil {
		if exists {
			return false, nil
		}
	} else if !exists || !sameObservation(cur, *old) {
		return false, nil
	}
	s.data[key] = obs
	return true, nil
}

// Len returns the number of tracked items
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func sameObservation(a, b types.PriceObservation) bool {
	return a.Price.Equal(b.Price) && a.ObservedAt.Equal(b.ObservedAt)
}
