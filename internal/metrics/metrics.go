// Package metrics holds the Prometheus collectors of the reminder pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors shared by the service, sweeper and delivery worker.
type Metrics struct {
	submissions *prometheus.CounterVec
	swept       prometheus.Counter
	deliveries  *prometheus.CounterVec
	lag         prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remind",
			Name:      "submissions_total",
			Help:      "Reminder submissions by final state.",
		}, []string{"state"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remind",
			Name:      "swept_reminders_total",
			Help:      "Expired reminders removed by the sweeper.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remind",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by result.",
		}, []string{"result"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "remind",
			Name:      "delivery_lag_seconds",
			Help:      "Delay between the target fire time and the delivery attempt.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submissions, m.swept, m.deliveries, m.lag)
	}
	return m
}

// Submission counts one finished submission.
func (m *Metrics) Submission(state string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(state).Inc()
}

// Swept adds removed reminders.
func (m *Metrics) Swept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

// Delivery counts one delivery attempt and its lag in seconds.
func (m *Metrics) Delivery(result string, lagSeconds float64) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
	if lagSeconds >= 0 {
		m.lag.Observe(lagSeconds)
	}
}
