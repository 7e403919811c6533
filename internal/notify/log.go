package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the log. It is the default when no outbound
// transport is configured.
type LogNotifier struct {
	logger *zerolog.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	ev := n.logger.Info().
		Str("alert_id", alert.ID).
		Str("kind", string(alert.Kind)).
		Str("channel", string(alert.Channel)).
		Str("target", alert.Target).
		Str("product", alert.Product)

	switch alert.Kind {
	case KindPriceDrop:
		if alert.Listing != nil {
			ev = ev.Str("store", alert.Listing.Store).Str("url", alert.Listing.URL)
		}
		if alert.OldPrice != nil && alert.NewPrice != nil {
			ev = ev.Str("old_price", alert.OldPrice.String()).Str("new_price", alert.NewPrice.String())
		}
		ev = ev.Float64("discount_percent", alert.DiscountPercent)
	case KindSearchResults:
		ev = ev.Int("results", alert.ResultCount)
		if len(alert.TopResults) > 0 {
			ev = ev.Str("best_price", alert.TopResults[0].Price.String())
		}
	}
	ev.Msg("Notification")
	return nil
}
