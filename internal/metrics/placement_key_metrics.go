package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PlacementKeyMetrics описывает очистку просроченных ключей повтора размещения.
type PlacementKeyMetrics struct {
	sweeps        *prometheus.CounterVec
	removed       prometheus.Counter
	lastRemoved   prometheus.Gauge
	sweepDuration prometheus.Histogram
}

// NewPlacementKeyMetrics создаёт метрики очистки в DefaultRegisterer.
func NewPlacementKeyMetrics() *PlacementKeyMetrics {
	return NewPlacementKeyMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPlacementKeyMetricsWithRegisterer создаёт метрики очистки в указанном реестре.
func NewPlacementKeyMetricsWithRegisterer(registerer prometheus.Registerer) *PlacementKeyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PlacementKeyMetrics{
		sweeps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "canteen_placement_key_sweeps_total",
			Help: "Placement key sweeps by result",
		}, []string{"result"}),
		removed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_placement_keys_removed_total",
			Help: "Expired placement keys removed from storage",
		}),
		lastRemoved: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "canteen_placement_keys_last_sweep_removed",
			Help: "Placement keys removed by the last completed sweep",
		}),
		sweepDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "canteen_placement_key_sweep_duration_seconds",
			Help:    "Duration of a placement key sweep in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}
}

// RecordSweep фиксирует завершённую очистку: result ok, partial или error.
func (m *PlacementKeyMetrics) RecordSweep(result string, removed int, duration time.Duration) {
	m.sweeps.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(duration.Seconds())
	if removed > 0 {
		m.removed.Add(float64(removed))
	}
	if result != "error" {
		m.lastRemoved.Set(float64(removed))
	}
}
