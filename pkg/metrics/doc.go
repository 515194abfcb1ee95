/*
Package metrics provides Prometheus metrics collection and exposition for the
orchestrator.

The metrics package defines and registers metrics using the Prometheus client
library, providing observability into range/guest/host state, provisioning
latency, image distribution, and reconciliation activity. Metrics are exposed
via an HTTP endpoint for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │  Inventory: ranges, guests, hosts, tasks    │          │
	│  │  Planning:  scheduling latency, step counts │          │
	│  │  Images:    transfer duration, failures     │          │
	│  │  Transport: ssh retries, circuit breaker    │          │
	│  │  Reconcile: cycle duration, orphans/phantoms│          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Handler(): promhttp.Handler()             │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	// ... clone a guest ...
	timer.ObserveDuration(metrics.GuestCloneDuration)

	metrics.StepsDispatchedTotal.WithLabelValues("clone_guest", "succeeded").Inc()

Collector periodically samples pkg/registry and publishes gauge metrics
(RangesTotal, GuestsTotal, HostsTotal, TasksTotal, ImagesPlacedTotal):

	c := metrics.NewCollector(store)
	c.Start()
	defer c.Stop()

# Integration Points

Used by pkg/planner, pkg/orchestrator, pkg/transport, pkg/images and
pkg/registry.

# Best Practices

Histograms use prometheus.DefBuckets unless the operation's natural duration
spans minutes (image transfer, destroy), in which case explicit wider
buckets are used. Counters are suffixed _total. Labels stay low-cardinality
(state/kind/outcome, never a range or guest ID).
*/
package metrics
