// Package metrics exposes Prometheus counters for post submissions, admin
// lookups and image normalization.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	deletions   *prometheus.CounterVec
	adminLookup *prometheus.CounterVec
	normalize   prometheus.Histogram
	subscribers prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lostfound",
			Name:      "post_submissions_total",
			Help:      "Post submissions by outcome.",
		}, []string{"outcome"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lostfound",
			Name:      "post_deletions_total",
			Help:      "Post deletions by outcome.",
		}, []string{"outcome"}),
		adminLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lostfound",
			Name:      "admin_lookups_total",
			Help:      "Admin authorization checks by cache result.",
		}, []string{"result"}),
		normalize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lostfound",
			Name:      "image_normalize_seconds",
			Help:      "Time spent normalizing uploaded images.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lostfound",
			Name:      "feed_subscribers",
			Help:      "Open realtime feed connections.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions, m.deletions, m.adminLookup, m.normalize, m.subscribers,
	)
	return m
}

// ObserveSubmission counts one CreatePost result; outcome is "accepted" or a
// rejection reason.
func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDeletion(outcome string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAdminLookup(result string) {
	if m == nil {
		return
	}
	m.adminLookup.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveNormalize(d time.Duration) {
	if m == nil {
		return
	}
	m.normalize.Observe(d.Seconds())
}

func (m *Metrics) SubscriberOpened() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberClosed() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
