package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hq_workers_total",
			Help: "Total number of known workers by lifecycle state",
		},
		[]string{"state"},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hq_tasks_total",
			Help: "Total number of tasks by state",
		},
		[]string{"state"},
	)

	WaitingTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hq_autoalloc_waiting_tasks",
			Help: "Tasks currently counted as backlog pressure across all queues",
		},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hq_scheduling_pass_duration_seconds",
			Help:    "Duration of one Assign/Balance/Finish scheduling pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksAssigned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hq_tasks_assigned_total",
			Help: "Total number of tasks assigned to a worker",
		},
	)

	TasksStolen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hq_tasks_stolen_total",
			Help: "Total number of tasks reassigned by the balance phase",
		},
	)

	AutoAllocTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hq_autoalloc_tick_duration_seconds",
			Help:    "Duration of one autoalloc tick (refresh + schedule, all descriptors)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	AllocationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hq_autoalloc_allocations_created_total",
			Help: "Total number of allocations submitted to the batch system, by descriptor",
		},
		[]string{"descriptor"},
	)

	AllocationsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hq_autoalloc_allocations_active",
			Help: "Currently active (queued or running) allocations per descriptor",
		},
		[]string{"descriptor"},
	)

	QueueFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hq_autoalloc_queue_failures_total",
			Help: "Total number of schedule_allocation failures, by descriptor",
		},
		[]string{"descriptor"},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(WaitingTasks)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(TasksAssigned)
	prometheus.MustRegister(TasksStolen)
	prometheus.MustRegister(AutoAllocTickDuration)
	prometheus.MustRegister(AllocationsCreated)
	prometheus.MustRegister(AllocationsActive)
	prometheus.MustRegister(QueueFailuresTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
