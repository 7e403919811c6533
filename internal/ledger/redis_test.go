package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kosarica/deal-service/internal/types"
)

// setupRedis starts a redis container and returns a connected client
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() {
		client.Close()
		testcontainers.TerminateContainer(container)
	})
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisStore_RecordAndClassify(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	l := New(NewRedisStore(client, "test:ledger:", 0))

	c, err := l.RecordAndClassify(ctx, testKey, d(100), time.Now())
	require.NoError(t, err)
	assert.Equal(t, KindNew, c.Kind)

	c, err = l.RecordAndClassify(ctx, testKey, d(80), time.Now())
	require.NoError(t, err)
	assert.Equal(t, KindDrop, c.Kind)
	assert.InDelta(t, 0.20, c.DropFraction, 1e-9)

	c, err = l.RecordAndClassify(ctx, testKey, d(90), time.Now())
	require.NoError(t, err)
	assert.Equal(t, KindNoChange, c.Kind)

	obs, ok, err := l.Lookup(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, obs.Price.Equal(d(90)))
}

func TestRedisStore_CompareAndSwap(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	s := NewRedisStore(client, "test:cas:", time.Hour)

	first := types.PriceObservation{Price: d(10), ObservedAt: time.Unix(100, 0).UTC()}
	second := types.PriceObservation{Price: d(9), ObservedAt: time.Unix(200, 0).UTC()}

	ok, err := s.CompareAndSwap(ctx, testKey, nil, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSwap(ctx, testKey, nil, second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, testKey, &first, second)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := client.TTL(ctx, "test:cas:"+testKey.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisStore_ConcurrentWriters(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	l := New(NewRedisStore(client, "test:concurrent:", 0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	news := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := l.RecordAndClassify(ctx, testKey, d(int64(500-i)), time.Now())
			assert.NoError(t, err)
			if c.Kind == KindNew {
				mu.Lock()
				news++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, news)
}
