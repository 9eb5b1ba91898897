package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gsb"

type metrics struct {
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	active      prometheus.Gauge
	lastSuccess prometheus.Gauge
	archives    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "backup",
			Name:      "runs_total",
			Help:      "Backup runs by trigger and result",
		}, []string{"trigger", "result"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "backup",
			Name:      "duration_seconds",
			Help:      "Wall time of a backup run including verification and pruning",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "active",
			Help:      "1 while the backup loop is running",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "backup",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful backup",
		}),
		archives: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "backup",
			Name:      "archives",
			Help:      "Archives kept after the last run",
		}),
	}
}
