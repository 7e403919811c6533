package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Channel is an outbound notification channel
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
)

// Channels contains all supported channels
var Channels = []Channel{ChannelWhatsApp, ChannelTelegram}

// ParseChannel maps a case-insensitive channel name to a Channel
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Channels {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// SubscriptionKey identifies a subscription: lowercased product name, user
// identifier and channel
type SubscriptionKey struct {
	Product        string  `json:"product"`
	UserIdentifier string  `json:"userIdentifier"`
	Channel        Channel `json:"channel"`
}

// NewSubscriptionKey builds the composite key for a subscription
func NewSubscriptionKey(productName, userIdentifier string, channel Channel) SubscriptionKey {
	return SubscriptionKey{
		Product:        ProductKey(productName),
		UserIdentifier: strings.TrimSpace(userIdentifier),
		Channel:        channel,
	}
}

// Parts returns the key as [product, user, channel]
func (k SubscriptionKey) Parts() []string {
	return []string{k.Product, k.UserIdentifier, string(k.Channel)}
}

// String returns a stable representation used for logging and lock maps
func (k SubscriptionKey) String() string {
	return strings.Join(k.Parts(), "|")
}

// Subscription is a user's request to be alerted when a product drops in price.
// The price maps are private per subscription so each subscriber keeps its own
// baseline, independent of the global ledger.
type Subscription struct {
	ProductName             string    `json:"productName"`
	UserIdentifier          string    `json:"userIdentifier"`
	Channel                 Channel   `json:"channel"`
	DesiredDiscountFraction float64   `json:"desiredDiscountFraction"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`

	LastKnownPrices      map[ItemKey]decimal.Decimal `json:"lastKnownPrices,omitempty"`
	NotifiedForPrice     map[ItemKey]decimal.Decimal `json:"notifiedForPrice,omitempty"`
	AlertReferencePrices map[ItemKey]decimal.Decimal `json:"alertReferencePrices,omitempty"`
}

// Key returns the composite key of the subscription
func (s *Subscription) Key() SubscriptionKey {
	return NewSubscriptionKey(s.ProductName, s.UserIdentifier, s.Channel)
}

// EnsureMaps allocates nil price maps
func (s *Subscription) EnsureMaps() {
	if s.LastKnownPrices == nil {
		s.LastKnownPrices = make(map[ItemKey]decimal.Decimal)
	}
	if s.NotifiedForPrice == nil {
		s.NotifiedForPrice = make(map[ItemKey]decimal.Decimal)
	}
	if s.AlertReferencePrices == nil {
		s.AlertReferencePrices = make(map[ItemKey]decimal.Decimal)
	}
}

// Clone returns a deep copy so callers never share map state with a store
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.LastKnownPrices = clonePrices(s.LastKnownPrices)
	c.NotifiedForPrice = clonePrices(s.NotifiedForPrice)
	c.AlertReferencePrices = clonePrices(s.AlertReferencePrices)
	return &c
}

func clonePrices(m map[ItemKey]decimal.Decimal) map[ItemKey]decimal.Decimal {
	out := make(map[ItemKey]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
