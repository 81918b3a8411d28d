package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	samplesDropped *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	dispatched     *prometheus.CounterVec
	bundleSize     *prometheus.HistogramVec
	degradedScores prometheus.Counter
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	bandLower      *prometheus.GaugeVec
	bandUpper      *prometheus.GaugeVec
}

// New creates a Prometheus metrics recorder. Collectors register on the
// default registry, so construct it once per process.
func New() *Recorder {
	return &Recorder{
		samplesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertpulse_samples_dropped_total",
				Help: "Invalid metric samples dropped before filtering",
			},
			[]string{"metric"},
		),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertpulse_decisions_total",
				Help: "Dedup gate decisions by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		dispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertpulse_bundles_dispatched_total",
				Help: "Alert bundles handed to the dispatcher",
			},
			[]string{"bundle_key"},
		),
		bundleSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alertpulse_bundle_members",
				Help:    "Member count of dispatched bundles",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"bundle_key"},
		),
		degradedScores: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "alertpulse_degraded_scores_total",
				Help: "Candidates scored in rule-confidence-only fallback",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertpulse_errors_total",
				Help: "Errors encountered by pipeline stage",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alertpulse_operation_duration_seconds",
				Help:    "Duration of pipeline operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		bandLower: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alertpulse_band_lower",
				Help: "Lower trigger band per symbol and metric",
			},
			[]string{"symbol", "metric"},
		),
		bandUpper: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alertpulse_band_upper",
				Help: "Upper trigger band per symbol and metric",
			},
			[]string{"symbol", "metric"},
		),
	}
}

func (r *Recorder) RecordSampleDropped(metric string) {
	r.samplesDropped.WithLabelValues(metric).Inc()
}

func (r *Recorder) RecordDecision(strategy, outcome string) {
	r.decisions.WithLabelValues(strategy, outcome).Inc()
}

func (r *Recorder) RecordDispatch(bundleKey string, members int) {
	r.dispatched.WithLabelValues(bundleKey).Inc()
	r.bundleSize.WithLabelValues(bundleKey).Observe(float64(members))
}

func (r *Recorder) RecordDegradedScore() {
	r.degradedScores.Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordBand(symbol, metric string, lower, upper float64) {
	r.bandLower.WithLabelValues(symbol, metric).Set(lower)
	r.bandUpper.WithLabelValues(symbol, metric).Set(upper)
}
