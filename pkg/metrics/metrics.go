package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event bus metrics
	EventsAcquired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_events_acquired_total",
			Help: "Total number of events acquired by publisher",
		},
		[]string{"publisher"},
	)

	EventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_events_dispatched_total",
			Help: "Total number of events delivered to subscriber callbacks",
		},
		[]string{"publisher", "subscriber"},
	)

	CallbackErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_callback_errors_total",
			Help: "Total number of subscriber callbacks that failed or panicked",
		},
		[]string{"publisher", "subscriber"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookout_dispatch_duration_seconds",
			Help:    "Time taken to dispatch one event to all matching subscriptions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"publisher"},
	)

	Subscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lookout_subscriptions",
			Help: "Current number of subscriptions by publisher",
		},
		[]string{"publisher"},
	)

	PublisherRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lookout_publisher_running",
			Help: "Whether the publisher loop is running (1 = running, 0 = stopped)",
		},
		[]string{"publisher"},
	)

	// Audit metrics
	AuditReacquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_audit_reacquisitions_total",
			Help: "Total number of audit netlink handle acquisitions by resulting status",
		},
		[]string{"status"},
	)

	AuditRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_audit_records_total",
			Help: "Total number of raw audit records by processing result",
		},
		[]string{"result"},
	)

	AuditControlLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lookout_audit_control_lost_total",
			Help: "Total number of times another process took control of the audit subsystem",
		},
	)

	AuditSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lookout_audit_subscribers",
			Help: "Current number of audit driver subscriber handles",
		},
	)

	AuditRulesInstalled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lookout_audit_rules_installed",
			Help: "Number of audit rules installed by this process",
		},
	)

	// Storage metrics
	StoreRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_store_rows_total",
			Help: "Total number of event rows persisted by subscriber",
		},
		[]string{"subscriber"},
	)

	StoreExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_store_expired_total",
			Help: "Total number of event rows removed by expiry",
		},
		[]string{"subscriber"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsAcquired)
	prometheus.MustRegister(EventsDispatched)
	prometheus.MustRegister(CallbackErrors)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(Subscriptions)
	prometheus.MustRegister(PublisherRunning)
	prometheus.MustRegister(AuditReacquisitions)
	prometheus.MustRegister(AuditRecords)
	prometheus.MustRegister(AuditControlLost)
	prometheus.MustRegister(AuditSubscribers)
	prometheus.MustRegister(AuditRulesInstalled)
	prometheus.MustRegister(StoreRows)
	prometheus.MustRegister(StoreExpired)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
