// Package notify delivers price alerts and search summaries to external
// channels without blocking the caller.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kosarica/deal-service/internal/types"
)

// TopResultsLimit is how many of the cheapest listings a search summary carries
const TopResultsLimit = 3

// Kind distinguishes alert payloads
type Kind string

const (
	KindPriceDrop     Kind = "price_drop"
	KindSearchResults Kind = "search_results"
)

// Alert is one message for one target
type Alert struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	Target    string        `json:"target"`
	Channel   types.Channel `json:"channel"`
	Product   string        `json:"product"`
	CreatedAt time.Time     `json:"createdAt"`

	// Price drop fields
	Listing         *types.Listing   `json:"listing,omitempty"`
	OldPrice        *decimal.Decimal `json:"oldPrice,omitempty" jsonschema:"type=string"`
	NewPrice        *decimal.Decimal `json:"newPrice,omitempty" jsonschema:"type=string"`
	DiscountPercent float64          `json:"discountPercent,omitempty"`

	// Search summary fields
	TopResults  []types.Listing  `json:"topResults,omitempty"`
	ResultCount int              `json:"resultCount,omitempty"`
	MaxSavings  *decimal.Decimal `json:"maxSavings,omitempty" jsonschema:"type=string"`
}

// Notifier delivers an alert over an external channel
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NewPriceDropAlert builds the alert sent when a tracked item crosses a
// subscriber's threshold
func NewPriceDropAlert(sub *types.Subscription, listing types.Listing, oldPrice, newPrice decimal.Decimal, discountFraction float64) Alert {
	l := listing
	return Alert{
		ID:              uuid.NewString(),
		Kind:            KindPriceDrop,
		Target:          sub.UserIdentifier,
		Channel:         sub.Channel,
		Product:         sub.ProductName,
		CreatedAt:       time.Now().UTC(),
		Listing:         &l,
		OldPrice:        &oldPrice,
		NewPrice:        &newPrice,
		DiscountPercent: discountFraction * 100,
	}
}

// NewSearchResultsAlert summarizes a finished search. listings must already be
// sorted ascending by price.
func NewSearchResultsAlert(target string, channel types.Channel, product string, listings []types.Listing) Alert {
	a := Alert{
		ID:          uuid.NewString(),
		Kind:        KindSearchResults,
		Target:      target,
		Channel:     channel,
		Product:     product,
		CreatedAt:   time.Now().UTC(),
		ResultCount: len(listings),
	}
	if len(listings) == 0 {
		return a
	}

	n := min(len(listings), TopResultsLimit)
	a.TopResults = append([]types.Listing(nil), listings[:n]...)

	if len(listings) > 1 {
		savings := listings[len(listings)-1].Price.Sub(listings[0].Price)
		if savings.IsPositive() {
			a.MaxSavings = &savings
		}
	}
	return a
}
