package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EngineLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nebula",
			Subsystem: "engine",
			Name:      "latency_seconds",
			Help:      "Latency of signal engine reads",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CausalityVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nebula",
			Subsystem: "engine",
			Name:      "causality_verdicts_total",
			Help:      "Causality screens by resulting status",
		},
		[]string{"status"},
	)

	NowcastOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nebula",
			Subsystem: "engine",
			Name:      "nowcasts_total",
			Help:      "Nowcast requests by resulting status",
		},
		[]string{"status"},
	)
)

// Register adds the engine collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(EngineLatency, CausalityVerdicts, NowcastOutcomes)
	})
}
