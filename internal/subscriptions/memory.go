package subscriptions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kosarica/deal-service/internal/types"
)

// MemoryStore keeps subscriptions in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	subs  map[types.SubscriptionKey]*types.Subscription
	locks map[types.SubscriptionKey]*sync.Mutex
	now   func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:  make(map[types.SubscriptionKey]*types.Subscription),
		locks: make(map[types.SubscriptionKey]*sync.Mutex),
		now:   time.Now,
	}
}

func (s *MemoryStore) keyLock(key types.SubscriptionKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Upsert implements Store
func (s *MemoryStore) Upsert(_ context.Context, sub *types.Subscription) (bool, error) {
	key := sub.Key()
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subs[key]; ok {
		updated := existing.Clone()
		updated.DesiredDiscountFraction = sub.DesiredDiscountFraction
		updated.UpdatedAt = now
		s.subs[key] = updated
		return false, nil
	}

	created := sub.Clone()
	created.EnsureMaps()
	created.CreatedAt = now
	created.UpdatedAt = now
	s.subs[key] = created
	return true, nil
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, key types.SubscriptionKey) (*types.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return sub.Clone(), nil
}

// List returns all subscriptions ordered by creation time
func (s *MemoryStore) List(_ context.Context) ([]*types.Subscription, error) {
	s.mu.RLock()
	out := make([]*types.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key().String() < out[j].Key().String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update implements Store. fn works on a copy which replaces the stored
// subscription only when fn succeeds.
func (s *MemoryStore) Update(_ context.Context, key types.SubscriptionKey, fn UpdateFunc) error {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	cur, ok := s.subs[key]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	next := cur.Clone()
	next.EnsureMaps()
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = s.now()

	s.mu.Lock()
	s.subs[key] = next
	s.mu.Unlock()
	return nil
}
