// Package subscriptions persists price-drop subscriptions.
package subscriptions

import (
	"context"
	"errors"

	"github.com/kosarica/deal-service/internal/types"
)

// ErrNotFound is returned when no subscription matches a key
var ErrNotFound = errors.New("subscription not found")

// UpdateFunc mutates a subscription in place. Returning an error aborts the
// update and leaves the stored subscription untouched.
type UpdateFunc func(sub *types.Subscription) error

// Store persists subscriptions. Implementations serialize Update calls per key
// so concurrent writers never lose price state.
type Store interface {
	// Upsert creates the subscription or, if the key exists, overwrites its
	// threshold and keeps its price state. It reports whether it created one.
	Upsert(ctx context.Context, sub *types.Subscription) (bool, error)
	Get(ctx context.Context, key types.SubscriptionKey) (*types.Subscription, error)
	List(ctx context.Context) ([]*types.Subscription, error)
	Update(ctx context.Context, key types.SubscriptionKey, fn UpdateFunc) error
}
