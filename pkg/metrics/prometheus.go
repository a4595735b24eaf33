package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradesIngested     *prometheus.CounterVec
	alertsTotal        *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	latency            *prometheus.HistogramVec
	calibrationQuality *prometheus.GaugeVec
	brierScore         prometheus.Gauge
	cacheLookups       *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		tradesIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletwatch_trades_ingested_total",
				Help: "Total number of trades ingested per market",
			},
			[]string{"market"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletwatch_alerts_total",
				Help: "Total number of alerts by priority level",
			},
			[]string{"level"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walletwatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		calibrationQuality: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "walletwatch_calibration_quality",
				Help: "Current calibration quality (1 when the labeled quality is active)",
			},
			[]string{"quality"},
		),
		brierScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "walletwatch_calibration_brier_score",
				Help: "Brier score from the latest calibration pass",
			},
		),
		cacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletwatch_cache_lookups_total",
				Help: "Cache lookups by cache name and outcome",
			},
			[]string{"cache", "outcome"},
		),
	}
}

// RecordTradeIngested records one ingested trade for a market.
func (r *Recorder) RecordTradeIngested(marketID string) {
	r.tradesIngested.WithLabelValues(marketID).Inc()
}

// RecordAlert records one produced alert at a priority level.
func (r *Recorder) RecordAlert(level string) {
	r.alertsTotal.WithLabelValues(level).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCalibrationQuality records the latest calibration quality and Brier
// score. The previous quality label is not reset; dashboards should read the
// most recent sample per label.
func (r *Recorder) RecordCalibrationQuality(quality string, brier float64) {
	r.calibrationQuality.WithLabelValues(quality).Set(1)
	r.brierScore.Set(brier)
}

// RecordCacheLookup records a cache hit or miss.
func (r *Recorder) RecordCacheLookup(cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(cache, outcome).Inc()
}
