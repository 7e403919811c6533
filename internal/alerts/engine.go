// Package alerts runs price-drop subscriptions: it accepts subscribe calls and
// periodically re-checks every subscribed product, notifying subscribers once
// per qualifying price level.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kosarica/deal-service/internal/ledger"
	"github.com/kosarica/deal-service/internal/metrics"
	"github.com/kosarica/deal-service/internal/notify"
	"github.com/kosarica/deal-service/internal/subscriptions"
	"github.com/kosarica/deal-service/internal/types"
	"github.com/kosarica/deal-service/internal/validation"
)

// ErrCycleInProgress is returned by RunCycle while another cycle is running
var ErrCycleInProgress = errors.New("price check cycle already running")

const (
	msgSubscribed = "Subscribed successfully"
	msgUpdated    = "Subscription updated successfully"
)

// Searcher runs one full aggregation for a product
type Searcher interface {
	Collect(ctx context.Context, query string) ([]types.ProgressEvent, []types.Listing, error)
}

// Submitter hands alerts to asynchronous delivery
type Submitter interface {
	Submit(alert notify.Alert) bool
}

// Engine owns subscriptions and the periodic price check
type Engine struct {
	store     subscriptions.Store
	searcher  Searcher
	submitter Submitter
	ledger    *ledger.Ledger
	logger    *zerolog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time

	cycleMu sync.Mutex
}

// Option configures an Engine
type Option func(*Engine)

// WithLedger records every cycle's listings in the shared price ledger
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine
func NewEngine(store subscriptions.Store, searcher Searcher, submitter Submitter, opts ...Option) *Engine {
	nop := zerolog.Nop()
	e := &Engine{
		store:     store,
		searcher:  searcher,
		submitter: submitter,
		logger:    &nop,
		metrics:   metrics.NewRecorder(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubscribeResult is returned by Subscribe
type SubscribeResult struct {
	Created      bool
	Message      string
	Key          types.SubscriptionKey
	Subscription *types.Subscription
}

// Subscribe validates req and creates the subscription, or overwrites the
// threshold of an existing one with the same key. Validation failures are
// returned as *validation.FieldError.
func (e *Engine) Subscribe(ctx context.Context, req validation.SubscribeRequest) (SubscribeResult, error) {
	in, err := req.Validate()
	if err != nil {
		return SubscribeResult{}, err
	}

	now := e.now().UTC()
	sub := &types.Subscription{
		ProductName:             in.ProductName,
		UserIdentifier:          in.UserIdentifier,
		Channel:                 in.Channel,
		DesiredDiscountFraction: in.DesiredDiscountFraction,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	sub.EnsureMaps()

	created, err := e.store.Upsert(ctx, sub)
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("save subscription: %w", err)
	}
	e.metrics.RecordSubscription(string(in.Channel), created)

	msg := msgUpdated
	if created {
		msg = msgSubscribed
	}
	e.logger.Info().
		Str("product", sub.ProductName).
		Str("channel", string(sub.Channel)).
		Float64("desired_discount", sub.DesiredDiscountFraction).
		Bool("created", created).
		Msg("Subscription saved")

	return SubscribeResult{Created: created, Message: msg, Key: sub.Key(), Subscription: sub}, nil
}

// List returns every subscription
func (e *Engine) List(ctx context.Context) ([]*types.Subscription, error) {
	return e.store.List(ctx)
}

// CycleReport summarizes one RunCycle
type CycleReport struct {
	StartedAt          time.Time     `json:"startedAt"`
	Duration           time.Duration `json:"duration"`
	Products           int           `json:"products"`
	ProductsFailed     int           `json:"productsFailed"`
	ProductsEmpty      int           `json:"productsEmpty"`
	Subscriptions      int           `json:"subscriptions"`
	SubscriptionErrors int           `json:"subscriptionErrors"`
	Alerts             int           `json:"alerts"`
	Suppressed         int           `json:"suppressed"`
	Dropped            int           `json:"dropped"`
}

// productGroup is one distinct product and its subscribers
type productGroup struct {
	name string
	keys []types.SubscriptionKey
}

// RunCycle re-checks every subscribed product once. Overlapping calls return
// ErrCycleInProgress without doing any work. A failing product is logged and
// skipped; it never stops the others.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	if !e.cycleMu.TryLock() {
		e.metrics.RecordCycle("skipped", 0)
		return CycleReport{}, ErrCycleInProgress
	}
	defer e.cycleMu.Unlock()
	return e.runCycle(ctx)
}

// CycleResult is delivered by TriggerCycle when the cycle ends
type CycleResult struct {
	Report CycleReport
	Err    error
}

// TriggerCycle starts a cycle in the background and returns at once. The
// result is delivered on the returned channel. It returns ErrCycleInProgress
// when a cycle is already running.
func (e *Engine) TriggerCycle(ctx context.Context) (<-chan CycleResult, error) {
	if !e.cycleMu.TryLock() {
		e.metrics.RecordCycle("skipped", 0)
		return nil, ErrCycleInProgress
	}

	done := make(chan CycleResult, 1)
	go func() {
		defer e.cycleMu.Unlock()
		report, err := e.runCycle(ctx)
		done <- CycleResult{Report: report, Err: err}
		close(done)
	}()
	return done, nil
}

func (e *Engine) runCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{StartedAt: e.now().UTC()}
	start := time.Now()

	subs, err := e.store.List(ctx)
	if err != nil {
		e.metrics.RecordCycle("error", time.Since(start))
		return report, fmt.Errorf("list subscriptions: %w", err)
	}
	groups := groupByProduct(subs)
	report.Products = len(groups)
	report.Subscriptions = len(subs)

	e.logger.Info().
		Int("products", len(groups)).
		Int("subscriptions", len(subs)).
		Msg("Starting price check cycle")

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			e.metrics.RecordCycle("cancelled", report.Duration)
			return report, err
		}
		e.checkProduct(ctx, g, &report)
	}

	report.Duration = time.Since(start)
	e.metrics.RecordCycle("ok", report.Duration)
	e.logger.Info().
		Dur("duration", report.Duration).
		Int("alerts", report.Alerts).
		Int("suppressed", report.Suppressed).
		Int("products_failed", report.ProductsFailed).
		Int("products_empty", report.ProductsEmpty).
		Msg("Price check cycle finished")
	return report, nil
}

// groupByProduct keeps the first-seen product name of each lowercase key
func groupByProduct(subs []*types.Subscription) []productGroup {
	index := make(map[string]int)
	var groups []productGroup
	for _, sub := range subs {
		key := sub.Key()
		i, ok := index[key.Product]
		if !ok {
			i = len(groups)
			index[key.Product] = i
			groups = append(groups, productGroup{name: sub.ProductName})
		}
		groups[i].keys = append(groups[i].keys, key)
	}
	return groups
}

func (e *Engine) checkProduct(ctx context.Context, g productGroup, report *CycleReport) {
	log := e.logger.With().Str("product", g.name).Logger()
	defer func() {
		if r := recover(); r != nil {
			report.ProductsFailed++
			log.Error().Interface("panic", r).Msg("Product check panicked")
		}
	}()

	listings, err := e.search(ctx, g.name)
	if err != nil {
		report.ProductsFailed++
		log.Error().Err(err).Msg("Product search failed")
		return
	}

	if e.ledger != nil && len(listings) > 0 {
		if _, err := e.ledger.RecordListings(ctx, listings, e.now().UTC()); err != nil {
			log.Warn().Err(err).Msg("Failed to record listings in ledger")
		}
	}

	if len(listings) == 0 {
		report.ProductsEmpty++
		log.Info().Msg("No listings found, leaving subscriptions untouched")
		return
	}

	for _, key := range g.keys {
		if err := e.checkSubscription(ctx, key, listings, report); err != nil {
			report.SubscriptionErrors++
			log.Error().Err(err).Str("subscription", key.String()).Msg("Failed to update subscription")
		}
	}
}

// search runs the aggregation and turns a panic into an error
func (e *Engine) search(ctx context.Context, product string) (listings []types.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panic: %v", r)
		}
	}()
	_, listings, err = e.searcher.Collect(ctx, product)
	return listings, err
}

func (e *Engine) checkSubscription(ctx context.Context, key types.SubscriptionKey, listings []types.Listing, report *CycleReport) error {
	var pending []notify.Alert
	suppressed := 0

	err := e.store.Update(ctx, key, func(sub *types.Subscription) error {
		pending = pending[:0]
		suppressed = 0
		for _, listing := range listings {
			if !listing.IsValid() {
				continue
			}
			ev := Evaluate(sub, listing.Key(), listing.Price)
			switch ev.Outcome {
			case OutcomeTriggered:
				pending = append(pending, notify.NewPriceDropAlert(sub, listing, ev.ReferencePrice, ev.NewPrice, ev.Discount))
			case OutcomeSuppressed:
				suppressed++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	report.Suppressed += suppressed
	for i := 0; i < suppressed; i++ {
		e.metrics.RecordSuppressedAlert()
	}
	for _, alert := range pending {
		report.Alerts++
		e.metrics.RecordAlert(string(alert.Channel))
		if !e.submitter.Submit(alert) {
			report.Dropped++
		}
	}
	return nil
}
