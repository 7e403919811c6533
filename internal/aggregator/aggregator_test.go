package aggregator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/deal-service/internal/providers"
	"github.com/kosarica/deal-service/internal/types"
)

func listing(name string, price int64, store string) types.Listing {
	return types.Listing{
		Name:  name,
		Price: decimal.NewFromInt(price),
		Store: store,
		URL:   "https://" + store + ".example/p/" + name,
	}
}

func returning(delay time.Duration, listings ...types.Listing) providers.SearchFunc {
	return func(ctx context.Context, query string) ([]types.Listing, error) {
		select {
		case <-time.After(delay):
			return listings, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func failing(err error) providers.SearchFunc {
	return func(context.Context, string) ([]types.Listing, error) {
		return nil, err
	}
}

func hanging(ctx context.Context, _ string) ([]types.Listing, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newAggregator(t *testing.T, cfg Config, provs ...providers.Provider) *Aggregator {
	t.Helper()
	reg, err := providers.NewRegistry(provs...)
	require.NoError(t, err)
	return New(reg, cfg, nil)
}

func prices(listings []types.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.Price.String()
	}
	return out
}

func statuses(progress []types.ProgressEvent) []types.ProviderStatus {
	out := make([]types.ProviderStatus, len(progress))
	for i, p := range progress {
		out[i] = p.Status
	}
	return out
}

func TestSearch_RejectsEmptyQuery(t *testing.T) {
	a := newAggregator(t, DefaultConfig(), providers.NewFunc("shop", returning(0)))

	_, err := a.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_NoProviders(t *testing.T) {
	a := newAggregator(t, DefaultConfig())

	_, err := a.Search(context.Background(), "laptop")
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestSearch_LaptopScenario(t *testing.T) {
	a := newAggregator(t, Config{PoolSize: 3, ProviderTimeout: 100 * time.Millisecond},
		providers.NewFunc("provider1", returning(0, listing("laptop-a", 1200, "provider1"), listing("laptop-b", 900, "provider1"))),
		providers.NewFunc("provider2", hanging),
		providers.NewFunc("provider3", returning(0)),
	)

	events, err := a.Search(context.Background(), "laptop")
	require.NoError(t, err)

	var all []types.Event
	for ev := range events {
		all = append(all, ev)
	}

	require.Len(t, all, 4)
	byStore := map[string]types.ProviderStatus{}
	for i, ev := range all[:3] {
		require.Equal(t, types.EventProgress, ev.Type)
		assert.Equal(t, i+1, ev.Progress.Sequence)
		assert.Equal(t, 3, ev.Progress.Total)
		byStore[ev.Progress.Store] = ev.Progress.Status
	}
	assert.Equal(t, map[string]types.ProviderStatus{
		"provider1": types.StatusOK,
		"provider2": types.StatusTimeout,
		"provider3": types.StatusEmpty,
	}, byStore)
	assert.Equal(t, "provider2", all[2].Progress.Store, "the timed out provider finishes last")

	final := all[3]
	require.Equal(t, types.EventResults, final.Type)
	assert.Equal(t, []string{"900", "1200"}, prices(final.Results.Listings))
	assert.NotEmpty(t, final.Results.SessionID)
}

func TestSearch_PartialFailureTolerance(t *testing.T) {
	a := newAggregator(t, Config{PoolSize: 2, ProviderTimeout: 50 * time.Millisecond},
		providers.NewFunc("a", returning(0, listing("x", 30, "a"), listing("y", 10, "a"))),
		providers.NewFunc("b", failing(errors.New("selector not found"))),
		providers.NewFunc("c", hanging),
		providers.NewFunc("d", func(context.Context, string) ([]types.Listing, error) {
			panic("boom")
		}),
		providers.NewFunc("e", returning(0, listing("z", 20, "e"))),
	)

	progress, final, err := a.Collect(context.Background(), "laptop")
	require.NoError(t, err)

	require.Len(t, progress, 5)
	assert.ElementsMatch(t,
		[]types.ProviderStatus{types.StatusOK, types.StatusError, types.StatusTimeout, types.StatusError, types.StatusOK},
		statuses(progress))
	assert.Equal(t, []string{"10", "20", "30"}, prices(final))

	for _, p := range progress {
		if p.Status == types.StatusError || p.Status == types.StatusTimeout {
			assert.Zero(t, p.ListingCount)
			assert.NotEmpty(t, p.Error)
		}
	}
}

func TestSearch_ProgressFollowsCompletionOrder(t *testing.T) {
	a := newAggregator(t, Config{PoolSize: 3, ProviderTimeout: time.Second},
		providers.NewFunc("slow", returning(150*time.Millisecond, listing("s", 1, "slow"))),
		providers.NewFunc("medium", returning(75*time.Millisecond, listing("m", 2, "medium"))),
		providers.NewFunc("fast", returning(0, listing("f", 3, "fast"))),
	)

	progress, _, err := a.Collect(context.Background(), "laptop")
	require.NoError(t, err)

	require.Len(t, progress, 3)
	assert.Equal(t, "fast", progress[0].Store)
	assert.Equal(t, "medium", progress[1].Store)
	assert.Equal(t, "slow", progress[2].Store)
	assert.Less(t, progress[0].ElapsedSeconds, progress[2].ElapsedSeconds)
}

func TestSearch_StableSortKeepsRegistrationOrderOnTies(t *testing.T) {
	a := newAggregator(t, Config{PoolSize: 2, ProviderTimeout: time.Second},
		providers.NewFunc("first", returning(50*time.Millisecond, listing("a", 100, "first"))),
		providers.NewFunc("second", returning(0, listing("b", 100, "second"), listing("c", 50, "second"))),
	)

	_, final, err := a.Collect(context.Background(), "laptop")
	require.NoError(t, err)

	require.Len(t, final, 3)
	assert.Equal(t, "c", final[0].Name)
	assert.Equal(t, "a", final[1].Name, "ties keep the first registered provider first")
	assert.Equal(t, "b", final[2].Name)
}

func TestSearch_DropsInvalidListings(t *testing.T) {
	invalid := []types.Listing{
		{Name: "", Price: decimal.NewFromInt(10), Store: "s", URL: "https://s.example/1"},
		{Name: "zero", Price: decimal.Zero, Store: "s", URL: "https://s.example/2"},
		{Name: "no-url", Price: decimal.NewFromInt(10), Store: "s", URL: " "},
	}
	a := newAggregator(t, DefaultConfig(),
		providers.NewFunc("bad", returning(0, invalid...)),
		providers.NewFunc("good", returning(0, listing("ok", 5, "good"))),
	)

	progress, final, err := a.Collect(context.Background(), "laptop")
	require.NoError(t, err)

	require.Len(t, final, 1)
	assert.Equal(t, "ok", final[0].Name)
	for _, p := range progress {
		if p.Store == "bad" {
			assert.Equal(t, types.StatusEmpty, p.Status)
			assert.Zero(t, p.ListingCount)
		}
	}
}

func TestSearch_NormalizesStore(t *testing.T) {
	l := listing("tv", 10, "")
	l.Store = ""
	a := newAggregator(t, DefaultConfig(), providers.NewFunc("Falabella", returning(0, l)))

	_, final, err := a.Collect(context.Background(), "tv")
	require.NoError(t, err)
	require.Len(t, final, 1)
	assert.Equal(t, "falabella", final[0].Store)
}

func TestSearch_RespectsPoolSize(t *testing.T) {
	var running, peak atomic.Int32
	track := func(ctx context.Context, _ string) ([]types.Listing, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}

	var provs []providers.Provider
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		provs = append(provs, providers.NewFunc(name, track))
	}
	a := newAggregator(t, Config{PoolSize: 2, ProviderTimeout: time.Second}, provs...)

	progress, _, err := a.Collect(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Len(t, progress, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSearch_TimeoutDoesNotWaitForProvider(t *testing.T) {
	stubborn := func(context.Context, string) ([]types.Listing, error) {
		time.Sleep(time.Second)
		return []types.Listing{listing("late", 1, "stubborn")}, nil
	}
	a := newAggregator(t, Config{PoolSize: 2, ProviderTimeout: 50 * time.Millisecond},
		providers.NewFunc("stubborn", stubborn),
		providers.NewFunc("quick", returning(0, listing("q", 2, "quick"))),
	)

	start := time.Now()
	progress, final, err := a.Collect(context.Background(), "laptop")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, progress, 2)
	assert.Equal(t, []string{"2"}, prices(final))
}

func TestSearch_TimedOutProviderKeepsPoolSlot(t *testing.T) {
	var running, peak atomic.Int32
	var finished sync.WaitGroup
	stubborn := func(context.Context, string) ([]types.Listing, error) {
		defer finished.Done()
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(150 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}

	var provs []providers.Provider
	for _, name := range []string{"a", "b", "c", "d"} {
		provs = append(provs, providers.NewFunc(name, stubborn))
	}
	finished.Add(len(provs))
	a := newAggregator(t, Config{PoolSize: 1, ProviderTimeout: 30 * time.Millisecond}, provs...)

	progress, _, err := a.Collect(context.Background(), "laptop")
	require.NoError(t, err)
	finished.Wait()

	assert.Equal(t, []types.ProviderStatus{
		types.StatusTimeout, types.StatusTimeout, types.StatusTimeout, types.StatusTimeout,
	}, statuses(progress))
	assert.Equal(t, int32(1), peak.Load(), "provider calls never overlap with a pool of one")
}

func TestMerge(t *testing.T) {
	merged := Merge(
		[]types.Listing{listing("a", 3, "x"), listing("b", 1, "x")},
		nil,
		[]types.Listing{listing("c", 2, "y")},
	)
	assert.Equal(t, []string{"1", "2", "3"}, prices(merged))
}
