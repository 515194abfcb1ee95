package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Range metrics
	RangesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyris_ranges_total",
			Help: "Total number of ranges by state",
		},
		[]string{"state"},
	)

	GuestsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyris_guests_total",
			Help: "Total number of guests by state",
		},
		[]string{"state"},
	)

	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyris_hosts_total",
			Help: "Total number of hypervisor hosts by status",
		},
		[]string{"status"},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyris_tasks_total",
			Help: "Total number of post-boot tasks by state",
		},
		[]string{"state"},
	)

	ImagesPlacedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cyris_images_placed_total",
			Help: "Total number of image record placements tracked",
		},
	)

	// Scheduling / planning metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cyris_scheduling_latency_seconds",
			Help:    "Time taken to plan and dispatch a step in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StepsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyris_steps_dispatched_total",
			Help: "Total number of plan steps dispatched by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Guest provisioning metrics
	GuestCloneDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cyris_guest_clone_duration_seconds",
			Help:    "Time taken to clone a guest VM in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GuestBootDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cyris_guest_boot_duration_seconds",
			Help:    "Time taken for a guest to report booted in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Image distribution metrics
	ImageTransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cyris_image_transfer_duration_seconds",
			Help:    "Time taken to distribute a base image to a host in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	ImageTransferFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cyris_image_transfer_failures_total",
			Help: "Total number of image transfer failures (pre-retry)",
		},
	)

	// Remote executor metrics
	SSHRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cyris_ssh_retries_total",
			Help: "Total number of SSH operation retries",
		},
	)

	CircuitBreakerOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyris_circuit_breaker_open_total",
			Help: "Total number of times a host's circuit breaker opened",
		},
		[]string{"host_id"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyris_task_duration_seconds",
			Help:    "Time taken to execute a post-boot task by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cyris_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cyris_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	OrphansDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cyris_orphans_detected_total",
			Help: "Total number of orphaned hypervisor artifacts detected",
		},
	)

	PhantomsDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cyris_phantoms_detected_total",
			Help: "Total number of phantom (registry-only) guests detected",
		},
	)

	// Destroy metrics
	DestroyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyris_destroy_duration_seconds",
			Help:    "Time taken to destroy a range in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(RangesTotal)
	prometheus.MustRegister(GuestsTotal)
	prometheus.MustRegister(HostsTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(ImagesPlacedTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(StepsDispatchedTotal)
	prometheus.MustRegister(GuestCloneDuration)
	prometheus.MustRegister(GuestBootDuration)
	prometheus.MustRegister(ImageTransferDuration)
	prometheus.MustRegister(ImageTransferFailuresTotal)
	prometheus.MustRegister(SSHRetriesTotal)
	prometheus.MustRegister(CircuitBreakerOpenTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(OrphansDetectedTotal)
	prometheus.MustRegister(PhantomsDetectedTotal)
	prometheus.MustRegister(DestroyDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
