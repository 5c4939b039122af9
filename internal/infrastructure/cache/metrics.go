package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cache traffic. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	compute  prometheus.Histogram
}

// NewMetrics registers the cache collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Failed cache store commands by operation.",
		}, []string{"operation"}),
		compute: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "cache",
			Name:      "compute_duration_seconds",
			Help:      "Time spent recomputing values on a miss.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) hit() {
	if m != nil {
		m.requests.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.requests.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) failed(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) computed(d time.Duration) {
	if m != nil {
		m.compute.Observe(d.Seconds())
	}
}
