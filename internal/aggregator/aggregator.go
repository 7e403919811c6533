// Package aggregator fans a product query out to every registered provider
// and streams their progress and merged results.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/kosarica/deal-service/internal/metrics"
	"github.com/kosarica/deal-service/internal/providers"
	"github.com/kosarica/deal-service/internal/telemetry"
	"github.com/kosarica/deal-service/internal/types"
)

// ErrEmptyQuery is returned when the search query is blank
var ErrEmptyQuery = errors.New("query must not be empty")

// ErrNoProviders is returned when the registry is empty
var ErrNoProviders = errors.New("no providers registered")

// Config controls the worker pool
type Config struct {
	PoolSize        int           `mapstructure:"pool_size"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
}

// DefaultConfig returns the default pool configuration: two concurrent
// providers, ten minutes each
func DefaultConfig() Config {
	return Config{
		PoolSize:        2,
		ProviderTimeout: 10 * time.Minute,
	}
}

// Aggregator runs searches against a provider registry
type Aggregator struct {
	registry *providers.Registry
	cfg      Config
	logger   *zerolog.Logger
	metrics  *metrics.Recorder
}

// New creates an aggregator. A nil logger disables logging.
func New(registry *providers.Registry, cfg Config, logger *zerolog.Logger) *Aggregator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	def := DefaultConfig()
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = def.ProviderTimeout
	}
	return &Aggregator{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.NewRecorder(),
	}
}

// Providers returns the names of the providers a search is sent to
func (a *Aggregator) Providers() []string {
	return a.registry.Names()
}

// unitResult is what one provider unit reports back to the session
type unitResult struct {
	index    int
	name     string
	listings []types.Listing
	invalid  int
	status   types.ProviderStatus
	err      error
	elapsed  time.Duration
}

// Search dispatches query to every provider and returns a channel that yields
// one progress event per provider in completion order followed by exactly one
// results event. The channel is closed after the results event.
func (a *Aggregator) Search(ctx context.Context, query string) (<-chan types.Event, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	provs := a.registry.List()
	if len(provs) == 0 {
		return nil, ErrNoProviders
	}

	s := &session{
		id:        uuid.NewString(),
		query:     query,
		providers: provs,
		agg:       a,
		results:   make(chan unitResult, len(provs)),
		events:    make(chan types.Event, len(provs)+1),
	}
	s.logger = a.logger.With().Str("session_id", s.id).Str("query", query).Logger()

	ctx, span := telemetry.Tracer().Start(ctx, "aggregator.Search")
	span.SetAttributes(
		attribute.String("search.session_id", s.id),
		attribute.String("search.query", query),
		attribute.Int("search.providers", len(provs)),
	)

	s.logger.Info().Int("providers", len(provs)).Int("pool_size", a.cfg.PoolSize).Msg("Starting search")
	a.metrics.SearchStarted()
	s.started = time.Now()

	sem := semaphore.NewWeighted(int64(a.cfg.PoolSize))
	for i, p := range provs {
		go s.runUnit(ctx, sem, i, p, time.Now())
	}

	go func() {
		defer span.End()
		s.collect()
	}()

	return s.events, nil
}

// Collect runs a search and waits for it to finish, returning the progress
// events in completion order and the final sorted listings
func (a *Aggregator) Collect(ctx context.Context, query string) ([]types.ProgressEvent, []types.Listing, error) {
	events, err := a.Search(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	var progress []types.ProgressEvent
	var listings []types.Listing
	for ev := range events {
		switch ev.Type {
		case types.EventProgress:
			progress = append(progress, *ev.Progress)
		case types.EventResults:
			listings = ev.Results.Listings
		}
	}
	return progress, listings, nil
}

// session is the state of one Search call
type session struct {
	id        string
	query     string
	providers []providers.Provider
	agg       *Aggregator
	logger    zerolog.Logger
	started   time.Time
	results   chan unitResult
	events    chan types.Event
}

// runUnit executes one provider inside a pool slot. The timeout starts once the
// slot is acquired. On timeout the unit reports at once, but the slot stays
// taken until the provider call returns; its late result is discarded.
func (s *session) runUnit(ctx context.Context, sem *semaphore.Weighted, index int, p providers.Provider, dispatchedAt time.Time) {
	res := unitResult{index: index, name: p.Name()}
	defer func() {
		res.elapsed = time.Since(dispatchedAt)
		s.results <- res
	}()

	if err := sem.Acquire(ctx, 1); err != nil {
		res.status = types.StatusError
		res.err = fmt.Errorf("waiting for pool slot: %w", err)
		return
	}
	released := false
	release := func() {
		if !released {
			released = true
			sem.Release(1)
		}
	}
	defer release()

	unitCtx, cancel := context.WithTimeout(ctx, s.agg.cfg.ProviderTimeout)
	defer cancel()

	unitCtx, span := telemetry.Tracer().Start(unitCtx, "provider.Search")
	span.SetAttributes(attribute.String("provider.name", p.Name()))
	defer span.End()

	type outcome struct {
		listings []types.Listing
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		listings, err := p.Search(unitCtx, s.query)
		done <- outcome{listings: listings, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			res.status = types.StatusError
			res.err = out.err
			if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
				res.status = types.StatusTimeout
			}
			break
		}
		res.listings, res.invalid = validListings(out.listings, p.Name())
		res.status = types.StatusEmpty
		if len(res.listings) > 0 {
			res.status = types.StatusOK
		}
	case <-unitCtx.Done():
		released = true
		go func() {
			<-done
			sem.Release(1)
		}()
		res.err = unitCtx.Err()
		res.status = types.StatusTimeout
		if ctx.Err() != nil {
			res.status = types.StatusError
			res.err = fmt.Errorf("search cancelled: %w", ctx.Err())
		}
	}

	span.SetAttributes(
		attribute.String("provider.status", string(res.status)),
		attribute.Int("provider.listings", len(res.listings)),
	)
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
}

// collect turns unit results into progress events as they arrive, then emits
// the merged results
func (s *session) collect() {
	defer close(s.events)

	total := len(s.providers)
	byProvider := make([][]types.Listing, total)

	for seq := 1; seq <= total; seq++ {
		res := <-s.results
		byProvider[res.index] = res.listings

		s.agg.metrics.RecordProviderSearch(res.name, string(res.status), res.elapsed, len(res.listings))
		s.agg.metrics.RecordInvalidListings(res.name, res.invalid)

		ev := &types.ProgressEvent{
			Store:          res.name,
			Sequence:       seq,
			Total:          total,
			ElapsedSeconds: res.elapsed.Seconds(),
			Status:         res.status,
			ListingCount:   len(res.listings),
		}
		logEvent := s.logger.Info()
		if res.err != nil {
			ev.Error = res.err.Error()
			logEvent = s.logger.Warn().Err(res.err)
		}
		logEvent.
			Str("provider", res.name).
			Int("sequence", seq).
			Str("status", string(res.status)).
			Int("listings", len(res.listings)).
			Int("invalid", res.invalid).
			Dur("elapsed", res.elapsed).
			Msg("Provider finished")

		s.events <- types.Event{Type: types.EventProgress, Progress: ev}
	}

	merged := Merge(byProvider...)
	s.agg.metrics.SearchFinished(time.Since(s.started))
	s.logger.Info().Int("listings", len(merged)).Dur("duration", time.Since(s.started)).Msg("Search completed")

	s.events <- types.Event{
		Type: types.EventResults,
		Results: &types.ResultsEvent{
			SessionID: s.id,
			Listings:  merged,
		},
	}
}

// validListings normalizes listings and drops the invalid ones
func validListings(in []types.Listing, providerName string) ([]types.Listing, int) {
	out := make([]types.Listing, 0, len(in))
	invalid := 0
	for _, l := range in {
		l = l.Normalize(providerName)
		if !l.IsValid() {
			invalid++
			continue
		}
		out = append(out, l)
	}
	return out, invalid
}

// Merge concatenates listing groups in the given order and stable-sorts the
// result ascending by price, so equal prices keep their group order
func Merge(groups ...[]types.Listing) []types.Listing {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	merged := make([]types.Listing, 0, n)
	for _, g := range groups {
		merged = append(merged, g...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Price.LessThan(merged[j].Price)
	})
	return merged
}
