package metrics

import (
	"time"

	"taxlab-hq/ledger/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// TaskMetrics tracks background computations started by the cache.
//
// Metrics:
//   - ledger_api_tasks_total: finished tasks by endpoint and terminal status
//   - ledger_api_task_duration_seconds: task run time by endpoint
//   - ledger_api_tasks_running: tasks currently holding a worker
type TaskMetrics struct {
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	running      *prometheus.GaugeVec
}

// NewTaskMetrics creates and registers task metrics with registry.
func NewTaskMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TaskMetrics {
	tm := &TaskMetrics{
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tasks_total",
				Help:      "Total number of finished background tasks by terminal status",
			},
			[]string{"endpoint", "status"},
		),

		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "task_duration_seconds",
				Help:      "Run time of background tasks in seconds",
				Buckets:   cfg.TaskDurationBuckets,
			},
			[]string{"endpoint"},
		),

		running: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tasks_running",
				Help:      "Number of background tasks currently running",
			},
			[]string{"endpoint"},
		),
	}

	registry.MustRegister(tm.tasksTotal, tm.taskDuration, tm.running)
	return tm
}

// Started records a task acquiring a worker.
func (tm *TaskMetrics) Started(endpoint string) {
	tm.running.WithLabelValues(endpoint).Inc()
}

// Finished records a task reaching a terminal status.
func (tm *TaskMetrics) Finished(endpoint, status string, elapsed time.Duration) {
	tm.running.WithLabelValues(endpoint).Dec()
	tm.tasksTotal.WithLabelValues(endpoint, status).Inc()
	tm.taskDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}
