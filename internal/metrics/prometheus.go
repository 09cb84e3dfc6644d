package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
)

// PrometheusMetrics exposes the same submit/verify observations the
// Aggregator accumulates internally, as live gauges and histograms, for a
// dashboard scraping the run in progress. It never feeds back into
// aggregation: no report value depends on whether anything scrapes it.
type PrometheusMetrics struct {
	SubmitLatency *prometheus.HistogramVec
	VerifyLatency *prometheus.HistogramVec
	SubmitTotal   *prometheus.CounterVec
	VerifyTotal   *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	OfferedRate   *prometheus.GaugeVec
	AcceptedRate  *prometheus.GaugeVec
	BlockTPS      prometheus.Gauge
}

// NewPrometheusMetrics registers the gatling metric set against reg,
// defaulting to the global registry when reg is nil.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		SubmitLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatling_submit_latency_seconds",
			Help:    "Submission latency per shooter",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"shooter"}),

		VerifyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatling_verify_latency_seconds",
			Help:    "On-chain verification latency per shooter",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		}, []string{"shooter"}),

		SubmitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatling_submit_total",
			Help: "Submitted transactions by shooter and outcome",
		}, []string{"shooter", "outcome"}),

		VerifyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatling_verify_total",
			Help: "Verified transactions by shooter and outcome",
		}, []string{"shooter", "outcome"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatling_errors_total",
			Help: "Sample errors by shooter, phase, and error kind",
		}, []string{"shooter", "phase", "kind"}),

		OfferedRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatling_offered_rate",
			Help: "Submit attempts per second over the shooter's active interval",
		}, []string{"shooter"}),

		AcceptedRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatling_accepted_rate",
			Help: "Verified-ok transactions per second over the shooter's active interval",
		}, []string{"shooter"}),

		BlockTPS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gatling_block_tps",
			Help: "Transaction count of the most recently observed non-empty block",
		}),
	}
}

// ObserveSample mirrors one RequestSample into the live metric set.
func (m *PrometheusMetrics) ObserveSample(s RequestSample) {
	outcome := "ok"
	if !s.Ok() {
		outcome = "error"
	}
	switch s.Kind {
	case KindSubmit:
		m.SubmitLatency.WithLabelValues(s.Shooter).Observe(s.Elapsed.Seconds())
		m.SubmitTotal.WithLabelValues(s.Shooter, outcome).Inc()
	case KindVerify:
		m.VerifyLatency.WithLabelValues(s.Shooter).Observe(s.Elapsed.Seconds())
		m.VerifyTotal.WithLabelValues(s.Shooter, outcome).Inc()
	}
	if !s.Ok() {
		phase := s.Kind.String()
		kind := s.ErrKind()
		if kind == "" {
			kind = errkind.Transport
		}
		m.ErrorsTotal.WithLabelValues(s.Shooter, phase, string(kind)).Inc()
	}
}

// ObserveBlock sets the live block gauge to the value passed; cmd/gatling
// passes each non-empty block's transaction count, not a per-second rate.
func (m *PrometheusMetrics) ObserveBlock(tps float64) {
	m.BlockTPS.Set(tps)
}

// ObserveRates updates the offered/accepted rate gauges for shooter.
func (m *PrometheusMetrics) ObserveRates(shooter string, offered, accepted float64) {
	m.OfferedRate.WithLabelValues(shooter).Set(offered)
	m.AcceptedRate.WithLabelValues(shooter).Set(accepted)
}
