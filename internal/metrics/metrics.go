// Package metrics provides Prometheus metrics for the media relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the media relay.
type Metrics struct {
	// Transfer metrics
	Transfers         *prometheus.CounterVec
	TransferBytes     *prometheus.CounterVec
	TransferDuration  *prometheus.HistogramVec
	InFlightTransfers prometheus.Gauge
	SizeMismatches    prometheus.Counter

	// Storage metrics
	StorageOps    *prometheus.CounterVec
	StorageErrors *prometheus.CounterVec
	RetryAttempts *prometheus.CounterVec

	// Link metrics
	LinksIssued          prometheus.Counter
	LinkIssuanceFailures prometheus.Counter
	PlayerRequests       *prometheus.CounterVec

	// Notification metrics
	NotificationsSent    prometheus.Counter
	NotificationsDropped *prometheus.CounterVec

	// Event metrics
	EventErrors   *prometheus.CounterVec
	EventsDropped prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled   bool
	Namespace string
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics registered on the
// default registry. Call this once at startup.
func Init(namespace string) *Metrics {
	m := NewWithRegistry(namespace, prometheus.DefaultRegisterer)
	defaultMetrics = m
	return m
}

// NewWithRegistry builds a metrics set registered on reg without installing it globally.
func NewWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "media_relay"
	}
	f := promauto.With(reg)

	return &Metrics{
		Transfers: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Total number of transfers by final outcome",
			},
			[]string{"outcome"},
		),
		TransferBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_bytes_total",
				Help:      "Bytes moved by direction (inbound, upload, download)",
			},
			[]string{"direction"},
		),
		TransferDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_duration_seconds",
				Help:      "Wall time of a transfer run from start to final outcome",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 0.1s to ~27m
			},
			[]string{"outcome"},
		),
		InFlightTransfers: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_transfers",
				Help:      "Number of transfers currently running",
			},
		),
		SizeMismatches: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "size_mismatches_total",
				Help:      "Transfers whose fetched size differed from the declared size",
			},
		),
		StorageOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_ops_total",
				Help:      "Storage operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		StorageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Storage errors by backend and class",
			},
			[]string{"backend", "class"},
		),
		RetryAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation"},
		),
		LinksIssued: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "links_issued_total",
				Help:      "Access links issued",
			},
		),
		LinkIssuanceFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "link_issuance_failures_total",
				Help:      "Transfers stored without an access link",
			},
		),
		PlayerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "player_requests_total",
				Help:      "Player route requests by media kind and status",
			},
			[]string{"kind", "status"},
		),
		NotificationsSent: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Status notifications delivered",
			},
		),
		NotificationsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Status notifications dropped by reason",
			},
			[]string{"reason"},
		),
		EventErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_errors_total",
				Help:      "Lifecycle event emission errors",
			},
			[]string{"emitter"},
		),
		EventsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Lifecycle events dropped because the delivery queue was full",
			},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Labels is a convenience type for metric labels.
type Labels struct {
	Outcome   string
	Direction string
	Operation string
	Result    string
	Backend   string
	Class     string
	Kind      string
	Status    string
	Reason    string
	Emitter   string
}

// IncTransfers increments the transfers counter for an outcome.
func (m *Metrics) IncTransfers(l Labels) {
	m.Transfers.WithLabelValues(l.Outcome).Inc()
}

// AddTransferBytes adds to the byte counter for a direction.
func (m *Metrics) AddTransferBytes(l Labels, n float64) {
	m.TransferBytes.WithLabelValues(l.Direction).Add(n)
}

// ObserveTransferDuration records the duration of a transfer run.
func (m *Metrics) ObserveTransferDuration(l Labels, seconds float64) {
	m.TransferDuration.WithLabelValues(l.Outcome).Observe(seconds)
}

// AddInFlight adjusts the in-flight transfer gauge.
func (m *Metrics) AddInFlight(delta float64) {
	m.InFlightTransfers.Add(delta)
}

// IncSizeMismatches increments the size mismatch counter.
func (m *Metrics) IncSizeMismatches() {
	m.SizeMismatches.Inc()
}

// IncStorageOps increments the storage operation counter.
func (m *Metrics) IncStorageOps(l Labels) {
	m.StorageOps.WithLabelValues(l.Operation, l.Result).Inc()
}

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(l Labels) {
	m.StorageErrors.WithLabelValues(l.Backend, l.Class).Inc()
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(l Labels) {
	m.RetryAttempts.WithLabelValues(l.Operation).Inc()
}

// IncLinksIssued increments the issued links counter.
func (m *Metrics) IncLinksIssued() {
	m.LinksIssued.Inc()
}

// IncLinkIssuanceFailures increments the link issuance failure counter.
func (m *Metrics) IncLinkIssuanceFailures() {
	m.LinkIssuanceFailures.Inc()
}

// IncPlayerRequests increments the player route counter.
func (m *Metrics) IncPlayerRequests(l Labels) {
	m.PlayerRequests.WithLabelValues(l.Kind, l.Status).Inc()
}

// IncNotificationsSent increments the delivered notifications counter.
func (m *Metrics) IncNotificationsSent() {
	m.NotificationsSent.Inc()
}

// IncNotificationsDropped increments the dropped notifications counter.
func (m *Metrics) IncNotificationsDropped(l Labels) {
	m.NotificationsDropped.WithLabelValues(l.Reason).Inc()
}

// IncEventErrors increments the event emission error counter.
func (m *Metrics) IncEventErrors(l Labels) {
	m.EventErrors.WithLabelValues(l.Emitter).Inc()
}

// IncEventsDropped increments the dropped events counter.
func (m *Metrics) IncEventsDropped() {
	m.EventsDropped.Inc()
}
