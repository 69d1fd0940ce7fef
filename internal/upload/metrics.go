package upload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the upload counters exposed on /metrics. A nil *Metrics
// records nothing.
type Metrics struct {
	items    *prometheus.CounterVec
	runs     *prometheus.CounterVec
	problems prometheus.Counter
	latency  prometheus.Histogram
}

// NewMetrics registers the upload collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz_uploader",
			Name:      "items_total",
			Help:      "Quiz items processed, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz_uploader",
			Name:      "runs_total",
			Help:      "Upload runs, by final status.",
		}, []string{"status"}),
		problems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz_uploader",
			Name:      "validation_problems_total",
			Help:      "Validation problems found in built items.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quiz_uploader",
			Name:      "item_submit_seconds",
			Help:      "Time to submit one item, retries included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
	}
	reg.MustRegister(m.items, m.runs, m.problems, m.latency)
	return m
}

func (m *Metrics) item(outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(outcome).Inc()
}

func (m *Metrics) run(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) validation(n int) {
	if m == nil || n == 0 {
		return
	}
	m.problems.Add(float64(n))
}

func (m *Metrics) submitted(d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}
