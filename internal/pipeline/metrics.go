package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leadscout/leadscout/internal/models"
)

const metricsNamespace = "leadscout"

// Metrics holds the Prometheus collectors for job runs. A nil *Metrics
// records nothing.
type Metrics struct {
	JobsTotal          *prometheus.CounterVec
	JobDurationSeconds *prometheus.HistogramVec
	ItemsTotal         *prometheus.CounterVec
	LeadsTotal         *prometheus.CounterVec
	ActiveJobs         prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by final state and trigger",
		}, []string{"state", "trigger"}),
		JobDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of job runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14), // 0.5s to ~68min
		}, []string{"state"}),
		ItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_total",
			Help:      "Fetched items by platform and outcome",
		}, []string{"platform", "outcome"}),
		LeadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "leads_total",
			Help:      "Lead upserts by result",
		}, []string{"result"}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_jobs",
			Help:      "Jobs currently running in this process",
		}),
	}
}

// Item outcomes
const (
	outcomeFetched      = "fetched"
	outcomeDeduplicated = "deduplicated"
	outcomeRejected     = "rejected"
	outcomeLead         = "lead"
	outcomeError        = "error"
)

func (m *Metrics) item(platform, outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) items(platform, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ItemsTotal.WithLabelValues(platform, outcome).Add(float64(n))
}

func (m *Metrics) lead(created bool) {
	if m == nil {
		return
	}
	result := "updated"
	if created {
		result = "created"
	}
	m.LeadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

func (m *Metrics) jobFinished(summary *models.JobSummary, elapsed time.Duration, ran bool) {
	if m == nil {
		return
	}
	if ran {
		m.ActiveJobs.Dec()
	}
	m.JobsTotal.WithLabelValues(string(summary.State), string(summary.Trigger)).Inc()
	m.JobDurationSeconds.WithLabelValues(string(summary.State)).Observe(elapsed.Seconds())
}
