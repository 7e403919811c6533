package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kosarica/deal-service/internal/aggregator"
	"github.com/kosarica/deal-service/internal/notify"
	"github.com/kosarica/deal-service/internal/types"
	"github.com/kosarica/deal-service/internal/validation"
)

// NDJSONContentType is the media type of streamed search results
const NDJSONContentType = "application/x-ndjson"

// Search streams one progress record per provider, in completion order,
// followed by one results record. Each record is one JSON line.
// GET /search?product=&notify=&target=&channel=
func (a *API) Search(c *gin.Context) {
	var req validation.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := req.Validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := a.searcher.Search(c.Request.Context(), in.Product)
	switch {
	case errors.Is(err, aggregator.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, aggregator.ErrNoProviders):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		a.logger.Error().Err(err).Str("product", in.Product).Msg("Failed to start search")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.Header("Content-Type", NDJSONContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	writeFailed := false
	for ev := range events {
		if ev.Type == types.EventResults && ev.Results != nil {
			a.finishSearch(c.Request.Context(), in, ev.Results)
		}
		if writeFailed {
			continue
		}
		if err := enc.Encode(ev); err != nil {
			a.logger.Warn().Err(err).Str("product", in.Product).Msg("Client went away during search stream")
			writeFailed = true
			continue
		}
		c.Writer.Flush()
	}
}

// finishSearch records the final listings in the ledger and queues the
// optional search summary. It sets NotificationQueued on the event.
func (a *API) finishSearch(ctx context.Context, in validation.SearchInput, results *types.ResultsEvent) {
	ctx = context.WithoutCancel(ctx)

	if a.ledger != nil && len(results.Listings) > 0 {
		if _, err := a.ledger.RecordListings(ctx, results.Listings, a.now().UTC()); err != nil {
			a.logger.Warn().Err(err).Str("session_id", results.SessionID).Msg("Failed to record listings in ledger")
		}
	}

	if !in.Notify || len(results.Listings) == 0 || a.submitter == nil {
		return
	}
	alert := notify.NewSearchResultsAlert(in.Target, in.Channel, in.Product, results.Listings)
	results.NotificationQueued = a.submitter.Submit(alert)
	if !results.NotificationQueued {
		a.logger.Warn().Str("session_id", results.SessionID).Msg("Search summary notification dropped")
	}
}
