// Package ledger tracks the last observed price of every item and classifies
// each new observation as new, a drop, or no change.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kosarica/deal-service/internal/metrics"
	"github.com/kosarica/deal-service/internal/types"
)

// DefaultHugeDropThreshold flags drops of 80% or more for operators
const DefaultHugeDropThreshold = 0.80

// maxCASAttempts bounds the retry loop under contention on one key
const maxCASAttempts = 64

// ErrContention is returned when a key keeps changing under the ledger
var ErrContention = errors.New("ledger: too much contention on item")

// Kind is the classification of an observation
type Kind string

const (
	KindNew      Kind = "new"
	KindDrop     Kind = "drop"
	KindNoChange Kind = "no_change"
)

// Severity grades a drop for operational alerting
type Severity string

const (
	SeverityNone   Severity = ""
	SeverityNormal Severity = "normal"
	SeverityHuge   Severity = "huge"
)

// Classification is the result of recording one observation. OldPrice and
// DropFraction are only meaningful for drops.
type Classification struct {
	Kind         Kind            `json:"kind"`
	OldPrice     decimal.Decimal `json:"oldPrice"`
	NewPrice     decimal.Decimal `json:"newPrice"`
	DropFraction float64         `json:"dropFraction"`
	Severity     Severity        `json:"severity,omitempty"`
}

// IsHuge reports whether the drop crossed the huge-drop threshold
func (c Classification) IsHuge() bool {
	return c.Severity == SeverityHuge
}

// Ledger classifies price observations against a Store
type Ledger struct {
	store         Store
	hugeThreshold float64
	logger        *zerolog.Logger
	metrics       *metrics.Recorder
}

// Option configures a Ledger
type Option func(*Ledger)

// WithHugeDropThreshold overrides the huge-drop threshold
func WithHugeDropThreshold(t float64) Option {
	return func(l *Ledger) {
		if t > 0 && t <= 1 {
			l.hugeThreshold = t
		}
	}
}

// WithLogger sets the logger used for huge-drop warnings
func WithLogger(logger *zerolog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a ledger over store
func New(store Store, opts ...Option) *Ledger {
	nop := zerolog.Nop()
	l := &Ledger{
		store:         store,
		hugeThreshold: DefaultHugeDropThreshold,
		logger:        &nop,
		metrics:       metrics.NewRecorder(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Classify compares a new price against an optional previous observation
func Classify(prev *types.PriceObservation, newPrice decimal.Decimal, hugeThreshold float64) Classification {
	if prev == nil {
		return Classification{Kind: KindNew, NewPrice: newPrice}
	}
	if !newPrice.LessThan(prev.Price) {
		return Classification{Kind: KindNoChange, OldPrice: prev.Price, NewPrice: newPrice}
	}

	fraction := DropFraction(prev.Price, newPrice)
	severity := SeverityNormal
	if fraction >= hugeThreshold {
		severity = SeverityHuge
	}
	return Classification{
		Kind:         KindDrop,
		OldPrice:     prev.Price,
		NewPrice:     newPrice,
		DropFraction: fraction,
		Severity:     severity,
	}
}

// DropFraction returns (old-new)/old as a float. A non-positive old price
// yields 0.
func DropFraction(oldPrice, newPrice decimal.Decimal) float64 {
	if !oldPrice.IsPositive() {
		return 0
	}
	f, _ := oldPrice.Sub(newPrice).Div(oldPrice).Float64()
	return f
}

// RecordAndClassify stores newPrice as the latest observation for key and
// classifies it against the previous one. The stored observation is always
// overwritten, whatever the classification.
func (l *Ledger) RecordAndClassify(ctx context.Context, key types.ItemKey, newPrice decimal.Decimal, now time.Time) (Classification, error) {
	obs := types.PriceObservation{Price: newPrice, ObservedAt: now}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		prev, exists, err := l.store.Get(ctx, key)
		if err != nil {
			return Classification{}, fmt.Errorf("read %s: %w", key, err)
		}

		var prevPtr *types.PriceObservation
		if exists {
			prevPtr = &prev
		}

		swapped, err := l.store.CompareAndSwap(ctx, key, prevPtr, obs)
		if err != nil {
			return Classification{}, fmt.Errorf("write %s: %w", key, err)
		}
		if swapped {
			c := Classify(prevPtr, newPrice, l.hugeThreshold)
			l.metrics.RecordClassification(string(c.Kind))
			return c, nil
		}
		if err := ctx.Err(); err != nil {
			return Classification{}, err
		}
	}
	return Classification{}, fmt.Errorf("%w: %s", ErrContention, key)
}

// Lookup returns the last observation for key
func (l *Ledger) Lookup(ctx context.Context, key types.ItemKey) (types.PriceObservation, bool, error) {
	return l.store.Get(ctx, key)
}

// Recorded pairs a listing with its classification
type Recorded struct {
	Listing        types.Listing
	Key            types.ItemKey
	Classification Classification
}

// RecordListings records every valid listing of a search result. Invalid
// listings are skipped. Errors on individual items are joined and returned
// after the remaining items have been recorded.
func (l *Ledger) RecordListings(ctx context.Context, listings []types.Listing, now time.Time) ([]Recorded, error) {
	recorded := make([]Recorded, 0, len(listings))
	var errs []error

	for _, listing := range listings {
		if !listing.IsValid() {
			continue
		}
		key := listing.Key()
		c, err := l.RecordAndClassify(ctx, key, listing.Price, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if c.IsHuge() {
			l.metrics.RecordHugeDrop(key.Store)
			l.logger.Warn().
				Str("store", key.Store).
				Str("url", key.URL).
				Str("name", listing.Name).
				Str("old_price", c.OldPrice.String()).
				Str("new_price", c.NewPrice.String()).
				Float64("drop_fraction", c.DropFraction).
				Msg("Huge price drop detected")
		}
		recorded = append(recorded, Recorded{Listing: listing, Key: key, Classification: c})
	}
	return recorded, errors.Join(errs...)
}
