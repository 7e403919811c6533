package providers

import (
	"context"

	"github.com/kosarica/deal-service/internal/types"
)

// Provider searches one retailer for a query. Returning no listings without an
// error means "no results"; any error is reported as a failed provider.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]types.Listing, error)
}

// SearchFunc adapts a plain function to a Provider
type SearchFunc func(ctx context.Context, query string) ([]types.Listing, error)

type funcProvider struct {
	name string
	fn   SearchFunc
}

// NewFunc creates a Provider named name that delegates to fn
func NewFunc(name string, fn SearchFunc) Provider {
	return &funcProvider{name: name, fn: fn}
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) Search(ctx context.Context, query string) ([]types.Listing, error) {
	return p.fn(ctx, query)
}
