package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"AlphaNebula/internal/domain/repository"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	resolutions *prometheus.CounterVec
	cache       *prometheus.CounterVec
	ingested    *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var _ repository.Metrics = (*Recorder)(nil)

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// New returns the recorder registered with the default registry. Repeated calls share it.
func New() *Recorder {
	defaultOnce.Do(func() { defaultRecorder = NewWithRegistry(prometheus.DefaultRegisterer) })
	return defaultRecorder
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nebula_resolutions_total",
				Help: "Entity resolutions by terminal status and deciding stage",
			},
			[]string{"status", "method"},
		),
		cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nebula_cache_results_total",
				Help: "TTL cache lookups by result",
			},
			[]string{"result"},
		),
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nebula_signals_ingested_total",
				Help: "Signal events appended to the log",
			},
			[]string{"signal_type"},
		),
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nebula_anomalies_total",
				Help: "Events whose rolling z-score crossed the threshold",
			},
			[]string{"signal_type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nebula_errors_total",
				Help: "Errors encountered by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nebula_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordResolution(status, method string) {
	r.resolutions.WithLabelValues(status, method).Inc()
}

// RecordCacheResult accepts hit, miss, shared or error.
func (r *Recorder) RecordCacheResult(result string) {
	r.cache.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordSignalIngested(signalType string) {
	r.ingested.WithLabelValues(signalType).Inc()
}

func (r *Recorder) RecordAnomaly(signalType string) {
	r.anomalies.WithLabelValues(signalType).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
