package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"storefront/internal/domain"
	"storefront/pkg/errcodes"
)

// RefreshMetrics records sold-count view refreshes.
type RefreshMetrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	last     prometheus.Gauge
}

// NewRefreshMetrics registers the refresh collectors on reg.
func NewRefreshMetrics(reg prometheus.Registerer) *RefreshMetrics {
	factory := promauto.With(reg)

	return &RefreshMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "sold_count",
			Name:      "refresh_total",
			Help:      "Sold count view refreshes by outcome.",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "sold_count",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of sold count view refreshes.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		last: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "sold_count",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
	}
}

// ObserveRefresh counts a refresh by outcome. Only successful runs are timed.
func (m *RefreshMetrics) ObserveRefresh(d time.Duration, err error) {
	switch {
	case domain.HasCode(err, errcodes.RefreshInProgress):
		m.runs.WithLabelValues("skipped").Inc()

		return
	case err != nil:
		m.runs.WithLabelValues("error").Inc()

		return
	}

	m.runs.WithLabelValues("ok").Inc()
	m.duration.Observe(d.Seconds())
	m.last.SetToCurrentTime()
}
