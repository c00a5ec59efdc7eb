/*
Package metrics provides Prometheus metrics and component health for lookout.

All collectors are package-level vectors registered with the default
registry in init(), and Handler exposes them for scraping.

# Metrics

	┌──────────────────────── METRICS ─────────────────────────┐
	│                                                            │
	│  Event bus                                                 │
	│    lookout_events_acquired_total{publisher}                │
	│    lookout_events_dispatched_total{publisher,subscriber}   │
	│    lookout_callback_errors_total{publisher,subscriber}     │
	│    lookout_dispatch_duration_seconds{publisher}            │
	│    lookout_subscriptions{publisher}                        │
	│    lookout_publisher_running{publisher}                    │
	│                                                            │
	│  Audit driver                                              │
	│    lookout_audit_reacquisitions_total{status}              │
	│    lookout_audit_records_total{result}                     │
	│    lookout_audit_control_lost_total                        │
	│    lookout_audit_subscribers                               │
	│    lookout_audit_rules_installed                           │
	│                                                            │
	│  Store                                                     │
	│    lookout_store_rows_total{subscriber}                    │
	│    lookout_store_expired_total{subscriber}                 │
	└────────────────────────────────────────────────────────────┘

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DispatchDuration, "inotify")

# Health

The health registry tracks named components. Every publisher registers
itself when its loop starts and reports failures through UpdateComponent.
GetHealth reports unhealthy when a critical component (one named in
SetCriticalComponents) is unhealthy, and degraded when only other components
are. GetReadiness requires every critical component to be registered and
healthy. pkg/api serves both over HTTP.
*/
package metrics
