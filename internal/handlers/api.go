package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kosarica/deal-service/internal/alerts"
	"github.com/kosarica/deal-service/internal/ledger"
	"github.com/kosarica/deal-service/internal/notify"
	"github.com/kosarica/deal-service/internal/types"
	"github.com/kosarica/deal-service/internal/validation"
)

// Searcher starts a streaming fan-out search
type Searcher interface {
	Search(ctx context.Context, query string) (<-chan types.Event, error)
}

// ListingRecorder records a finished search in the price ledger
type ListingRecorder interface {
	RecordListings(ctx context.Context, listings []types.Listing, now time.Time) ([]ledger.Recorded, error)
}

// AlertEngine manages subscriptions and price check cycles
type AlertEngine interface {
	Subscribe(ctx context.Context, req validation.SubscribeRequest) (alerts.SubscribeResult, error)
	List(ctx context.Context) ([]*types.Subscription, error)
	TriggerCycle(ctx context.Context) (<-chan alerts.CycleResult, error)
}

// Submitter queues notifications
type Submitter interface {
	Submit(alert notify.Alert) bool
}

// Pinger checks a backing service for the health endpoint
type Pinger func(ctx context.Context) error

// Deps are the collaborators of the HTTP API. Ledger and Pingers are optional.
type Deps struct {
	Searcher  Searcher
	Ledger    ListingRecorder
	Engine    AlertEngine
	Submitter Submitter
	Logger    *zerolog.Logger
	Pingers   map[string]Pinger
	// BaseContext bounds background work started by requests, such as a
	// triggered price check. Defaults to context.Background.
	BaseContext context.Context
}

// API serves the HTTP endpoints
type API struct {
	searcher  Searcher
	ledger    ListingRecorder
	engine    AlertEngine
	submitter Submitter
	logger    *zerolog.Logger
	pingers   map[string]Pinger
	baseCtx   context.Context
	now       func() time.Time
}

// NewAPI creates the API from its dependencies
func NewAPI(deps Deps) *API {
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &API{
		searcher:  deps.Searcher,
		ledger:    deps.Ledger,
		engine:    deps.Engine,
		submitter: deps.Submitter,
		logger:    logger,
		pingers:   deps.Pingers,
		baseCtx:   baseCtx,
		now:       time.Now,
	}
}
