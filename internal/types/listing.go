package types

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrEmptyName is returned for listings without a product name
	ErrEmptyName = errors.New("listing name is empty")
	// ErrEmptyURL is returned for listings without an item URL
	ErrEmptyURL = errors.New("listing url is empty")
	// ErrNonPositivePrice is returned for listings whose price is zero or negative
	ErrNonPositivePrice = errors.New("listing price must be greater than zero")
)

var lower = cases.Lower(language.Und)

// Listing represents one product offer from one store at one point in time
type Listing struct {
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price" jsonschema:"type=string,description=Decimal price in the store currency"`
	Store           string          `json:"store"`
	URL             string          `json:"url"`
	Image           *string         `json:"image,omitempty"`
	DiscountPercent *int            `json:"discountPercent,omitempty"`
}

// Validate checks the listing invariants. Invalid listings never reach the
// result set or the price ledger.
func (l Listing) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(l.URL) == "" {
		return ErrEmptyURL
	}
	if !l.Price.IsPositive() {
		return ErrNonPositivePrice
	}
	return nil
}

// IsValid reports whether Validate returns nil
func (l Listing) IsValid() bool {
	return l.Validate() == nil
}

// Normalize trims text fields, canonicalizes the store identifier and drops an
// out-of-range discount. An empty store falls back to the provider name.
func (l Listing) Normalize(providerName string) Listing {
	l.Name = strings.TrimSpace(l.Name)
	l.URL = strings.TrimSpace(l.URL)
	if strings.TrimSpace(l.Store) == "" {
		l.Store = providerName
	}
	l.Store = CanonicalStore(l.Store)

	if l.Image != nil && strings.TrimSpace(*l.Image) == "" {
		l.Image = nil
	}
	if l.DiscountPercent != nil && (*l.DiscountPercent < 0 || *l.DiscountPercent > 100) {
		l.DiscountPercent = nil
	}
	return l
}

// Key returns the tracking identity of the listing
func (l Listing) Key() ItemKey {
	return NewItemKey(l.Store, l.URL)
}

// CanonicalStore lowercases and trims a store identifier
func CanonicalStore(store string) string {
	return lower.String(strings.TrimSpace(store))
}

// ProductKey is the case-insensitive identity of a subscribed product name
func ProductKey(name string) string {
	return lower.String(strings.TrimSpace(name))
}

// PriceObservation is the last price seen for an item
type PriceObservation struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observedAt"`
}

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to the given int
func IntPtr(i int) *int {
	return &i
}
