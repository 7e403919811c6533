package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kosarica/deal-service/internal/types"
)

// DefaultRedisPrefix namespaces ledger keys
const DefaultRedisPrefix = "deal:ledger:"

// RedisStore keeps observations in redis as JSON strings. CompareAndSwap uses
// WATCH/MULTI so concurrent writers on one key never lose updates.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed store. A zero ttl keeps keys forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k types.ItemKey) string {
	return s.prefix + k.String()
}

// Get returns the observation stored for key
func (s *RedisStore) Get(ctx context.Context, key types.ItemKey) (types.PriceObservation, bool, error) {
	return s.get(ctx, s.client, key)
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c stringGetter, key types.ItemKey) (types.PriceObservation, bool, error) {
	data, err := c.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.PriceObservation{}, false, nil
	}
	if err != nil {
		return types.PriceObservation{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var obs types.PriceObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		return types.PriceObservation{}, false, fmt.Errorf("decode observation %s: %w", key, err)
	}
	return obs, true, nil
}

// Put overwrites the observation for key
func (s *RedisStore) Put(ctx context.Context, key types.ItemKey, obs types.PriceObservation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements Store
func (s *RedisStore) CompareAndSwap(ctx context.Context, key types.ItemKey, old *types.PriceObservation, obs types.PriceObservation) (bool, error) {
	data, err := json.Marshal(obs)
	if err != nil {
		return false, fmt.Errorf("encode observation: %w", err)
	}

	rk := s.key(key)
	swapped := false
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, exists, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		if old == nil && exists {
			return nil
		}
		if old != nil && (!exists || !sameObservation(cur, *old)) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, rk)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis cas %s: %w", key, err)
	}
	return swapped, nil
}
