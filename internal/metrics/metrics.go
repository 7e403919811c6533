// Package metrics holds the prometheus collectors of the deal service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// providerSearches counts provider calls by final status.
	providerSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_provider_searches_total",
		Help: "Total number of provider searches by provider and status",
	}, []string{"provider", "status"})

	// providerDuration tracks how long each provider takes to answer.
	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deal_provider_search_duration_seconds",
		Help:    "Time taken by a provider search",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"provider"})

	// providerListings tracks valid listings returned per provider call.
	providerListings = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deal_provider_listings_count",
		Help:    "Number of valid listings returned by a provider search",
		Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
	}, []string{"provider"})

	// invalidListings counts listings dropped by validation.
	invalidListings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_invalid_listings_total",
		Help: "Total number of listings rejected by validation",
	}, []string{"provider"})

	// searchDuration tracks full aggregations.
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deal_search_duration_seconds",
		Help:    "Time taken by a full fan-out search",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// activeSearches tracks in-flight aggregations.
	activeSearches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deal_active_searches",
		Help: "Number of fan-out searches in progress",
	})

	// ledgerClassifications counts ledger observations by classification.
	ledgerClassifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_ledger_classifications_total",
		Help: "Total number of price observations by classification",
	}, []string{"classification"})

	// hugeDrops counts drops flagged as huge.
	hugeDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_ledger_huge_drops_total",
		Help: "Total number of huge price drops by store",
	}, []string{"store"})

	// cycleRuns counts alert cycles by outcome.
	cycleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_alert_cycles_total",
		Help: "Total number of alert cycles by outcome",
	}, []string{"outcome"}) // outcome: completed, skipped, failed

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deal_alert_cycle_duration_seconds",
		Help:    "Time taken by an alert cycle",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
	})

	alertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_alerts_triggered_total",
		Help: "Total number of price drop alerts by channel",
	}, []string{"channel"})

	alertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deal_alerts_suppressed_total",
		Help: "Total number of alerts suppressed because the price was already notified",
	})

	// notifications counts dispatcher outcomes.
	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_notifications_total",
		Help: "Total number of notifications by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome: sent, failed, dropped

	notificationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deal_notification_queue_depth",
		Help: "Number of notifications waiting to be delivered",
	})

	subscriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_subscriptions_total",
		Help: "Total number of subscribe requests by channel and result",
	}, []string{"channel", "result"}) // result: created, updated
)

// Recorder provides methods to record deal service metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordProviderSearch records the outcome of one provider call.
func (r *Recorder) RecordProviderSearch(provider, status string, duration time.Duration, listings int) {
	providerSearches.WithLabelValues(provider, status).Inc()
	providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
	providerListings.WithLabelValues(provider).Observe(float64(listings))
}

// RecordInvalidListings records listings dropped by validation.
func (r *Recorder) RecordInvalidListings(provider string, n int) {
	if n > 0 {
		invalidListings.WithLabelValues(provider).Add(float64(n))
	}
}

// SearchStarted increments the in-flight search gauge.
func (r *Recorder) SearchStarted() {
	activeSearches.Inc()
}

// SearchFinished records a completed aggregation.
func (r *Recorder) SearchFinished(duration time.Duration) {
	activeSearches.Dec()
	searchDuration.Observe(duration.Seconds())
}

// RecordClassification records one ledger classification.
func (r *Recorder) RecordClassification(kind string) {
	ledgerClassifications.WithLabelValues(kind).Inc()
}

// RecordHugeDrop records a drop over the huge-drop threshold.
func (r *Recorder) RecordHugeDrop(store string) {
	hugeDrops.WithLabelValues(store).Inc()
}

// RecordCycle records an alert cycle outcome.
func (r *Recorder) RecordCycle(outcome string, duration time.Duration) {
	cycleRuns.WithLabelValues(outcome).Inc()
	if duration > 0 {
		cycleDuration.Observe(duration.Seconds())
	}
}

// RecordAlert records a triggered alert.
func (r *Recorder) RecordAlert(channel string) {
	alertsTriggered.WithLabelValues(channel).Inc()
}

// RecordSuppressedAlert records an alert skipped as already notified.
func (r *Recorder) RecordSuppressedAlert() {
	alertsSuppressed.Inc()
}

// RecordNotification records a dispatcher outcome.
func (r *Recorder) RecordNotification(kind, outcome string) {
	notifications.WithLabelValues(kind, outcome).Inc()
}

// SetQueueDepth sets the current notification queue depth.
func (r *Recorder) SetQueueDepth(n int) {
	notificationQueueDepth.Set(float64(n))
}

// RecordSubscription records a subscribe request.
func (r *Recorder) RecordSubscription(channel string, created bool) {
	result := "updated"
	if created {
		result = "created"
	}
	subscriptions.WithLabelValues(channel, result).Inc()
}
