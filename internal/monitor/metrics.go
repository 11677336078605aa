package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by the monitor.
type Metrics struct {
	HealthScore        *prometheus.GaugeVec
	DeviationPct       *prometheus.GaugeVec
	APR                *prometheus.GaugeVec
	Evaluations        *prometheus.CounterVec
	RebalancesExecuted prometheus.Counter
	CycleDuration      prometheus.Histogram
}

// NewMetrics creates the monitor collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HealthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lpm",
			Name:      "position_health_score",
			Help:      "Latest health score (0-100) of a tracked position.",
		}, []string{"position"}),
		DeviationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lpm",
			Name:      "position_deviation_pct",
			Help:      "Percent drift of the position range centre from the active bin.",
		}, []string{"position"}),
		APR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lpm",
			Name:      "position_apr",
			Help:      "Fee APR of a tracked position in percent.",
		}, []string{"position"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpm",
			Name:      "evaluations_total",
			Help:      "Position evaluations by result.",
		}, []string{"result"}),
		RebalancesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lpm",
			Name:      "rebalances_executed_total",
			Help:      "Range adjustments submitted to the position manager.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lpm",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of monitor cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	reg.MustRegister(m.HealthScore, m.DeviationPct, m.APR, m.Evaluations, m.RebalancesExecuted, m.CycleDuration)
	return m
}
