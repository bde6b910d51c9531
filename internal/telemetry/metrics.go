package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — Prometheus метрики воркера.
//
// Методы nil-безопасны: компоненты принимают *Metrics опционально.
type Metrics struct {
	registry *prometheus.Registry

	tasksClaimed      prometheus.Counter
	tasksFinished     *prometheus.CounterVec
	activeTasks       prometheus.Gauge
	navigations       *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	maintenance       *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	signatureRejected *prometheus.CounterVec
}

// NewMetrics создаёт метрики в собственном registry (плюс Go/process collectors).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tasksClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_tasks_claimed_total",
			Help: "Tasks moved from pending to processing",
		}),
		tasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_tasks_finished_total",
			Help: "Tasks that reached a terminal status",
		}, []string{"status"}),
		activeTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_active_tasks",
			Help: "Tasks currently executing",
		}),
		navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_navigation_total",
			Help: "Navigation outcomes (success, blocked, failed)",
		}, []string{"outcome"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_result_submissions_total",
			Help: "Result deliveries to the controller",
		}, []string{"outcome"}),
		maintenance: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_maintenance_affected_total",
			Help: "Tasks affected by maintenance sweeps",
		}, []string{"sweep"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_task_duration_seconds",
			Help:    "Task execution duration",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"type"}),
		signatureRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_signature_rejected_total",
			Help: "Inbound requests rejected by signature verification",
		}, []string{"reason"}),
	}
}

// Handler возвращает http.Handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry возвращает registry метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) TaskClaimed(n int) {
	if m == nil {
		return
	}
	m.tasksClaimed.Add(float64(n))
}

func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.activeTasks.Inc()
}

// TaskFinished учитывает терминальный переход и длительность выполнения.
func (m *Metrics) TaskFinished(taskType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.activeTasks.Dec()
	m.tasksFinished.WithLabelValues(status).Inc()
	m.taskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

func (m *Metrics) Navigation(outcome string) {
	if m == nil {
		return
	}
	m.navigations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MaintenanceAffected(sweep string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.maintenance.WithLabelValues(sweep).Add(float64(n))
}

func (m *Metrics) SignatureRejected(reason string) {
	if m == nil {
		return
	}
	m.signatureRejected.WithLabelValues(reason).Inc()
}
