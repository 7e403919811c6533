package alerts

import (
	"github.com/shopspring/decimal"

	"github.com/kosarica/deal-service/internal/ledger"
	"github.com/kosarica/deal-service/internal/types"
)

// Tolerance returns the smallest price difference treated as a new price
// level: 0.01 currency units
func Tolerance() decimal.Decimal {
	return decimal.New(1, -2)
}

// Outcome is the result of evaluating one observation for one subscription
type Outcome string

const (
	// OutcomeFirstSeen: the item had no baseline yet
	OutcomeFirstSeen Outcome = "first_seen"
	// OutcomeNotLower: the price stayed or rose
	OutcomeNotLower Outcome = "not_lower"
	// OutcomeBelowThreshold: the price dropped by less than the threshold
	OutcomeBelowThreshold Outcome = "below_threshold"
	// OutcomeTriggered: a notification must be sent
	OutcomeTriggered Outcome = "triggered"
	// OutcomeSuppressed: the threshold was met at an already notified level
	OutcomeSuppressed Outcome = "suppressed"
)

// Evaluation describes what Evaluate decided. ReferencePrice is the price the
// discount was measured against.
type Evaluation struct {
	Outcome        Outcome
	ReferencePrice decimal.Decimal
	NewPrice       decimal.Decimal
	Discount       float64
}

// Triggered reports whether a notification must be sent
func (e Evaluation) Triggered() bool {
	return e.Outcome == OutcomeTriggered
}

// Evaluate runs one observation of key at price through the subscription's
// tracking state and mutates its price maps. The last known price always
// moves to the observed one.
//
// A drop of at least the desired fraction below the last known price
// triggers unless the item was already notified within Tolerance of price.
// An item that was notified before also triggers whenever it falls below the
// notified price by at least Tolerance; that discount is measured against
// the baseline of the original alert.
func Evaluate(sub *types.Subscription, key types.ItemKey, price decimal.Decimal) Evaluation {
	sub.EnsureMaps()

	last, seen := sub.LastKnownPrices[key]
	sub.LastKnownPrices[key] = price
	if !seen {
		return Evaluation{Outcome: OutcomeFirstSeen, NewPrice: price}
	}
	if !price.LessThan(last) {
		return Evaluation{Outcome: OutcomeNotLower, ReferencePrice: last, NewPrice: price}
	}

	tolerance := Tolerance()
	discount := ledger.DropFraction(last, price)
	notified, alerted := sub.NotifiedForPrice[key]

	if discount >= sub.DesiredDiscountFraction {
		if alerted && notified.Sub(price).Abs().LessThan(tolerance) {
			return Evaluation{Outcome: OutcomeSuppressed, ReferencePrice: last, NewPrice: price, Discount: discount}
		}
		sub.NotifiedForPrice[key] = price
		sub.AlertReferencePrices[key] = last
		return Evaluation{Outcome: OutcomeTriggered, ReferencePrice: last, NewPrice: price, Discount: discount}
	}

	if alerted && notified.Sub(price).GreaterThanOrEqual(tolerance) {
		ref, ok := sub.AlertReferencePrices[key]
		if !ok {
			ref = last
			sub.AlertReferencePrices[key] = ref
		}
		sub.NotifiedForPrice[key] = price
		return Evaluation{Outcome: OutcomeTriggered, ReferencePrice: ref, NewPrice: price, Discount: ledger.DropFraction(ref, price)}
	}

	return Evaluation{Outcome: OutcomeBelowThreshold, ReferencePrice: last, NewPrice: price, Discount: discount}
}
