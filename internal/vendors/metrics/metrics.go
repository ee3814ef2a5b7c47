package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for outbound vendor calls.
type Metrics struct {
	CallLatency   *prometheus.HistogramVec
	CallErrors    *prometheus.CounterVec
	BreakerOpened *prometheus.CounterVec

	// Reused durable results that saved a vendor call
	ResultReused *prometheus.CounterVec

	// Document session step outcomes: advanced, suspended, not_ready, terminal
	StepOutcome *prometheus.CounterVec
}

// New creates a Metrics instance with all vendor metrics registered.
func New() *Metrics {
	return &Metrics{
		CallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_vendor_call_duration_seconds",
			Help:    "Latency of outbound vendor calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"vendor", "api"}),

		CallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_vendor_call_errors_total",
			Help: "Failed vendor calls by category",
		}, []string{"vendor", "api", "category"}),

		BreakerOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_vendor_breaker_opened_total",
			Help: "Times the vendor circuit breaker opened",
		}, []string{"vendor"}),

		ResultReused: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_vendor_results_reused_total",
			Help: "Vendor calls skipped because a successful result already existed",
		}, []string{"vendor", "api"}),

		StepOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_document_step_outcomes_total",
			Help: "Document session step outcomes by step",
		}, []string{"step", "outcome"}),
	}
}

func (m *Metrics) ObserveLatency(vendor, api string, d time.Duration) {
	if m != nil {
		m.CallLatency.WithLabelValues(vendor, api).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementError(vendor, api, category string) {
	if m != nil {
		m.CallErrors.WithLabelValues(vendor, api, category).Inc()
	}
}

func (m *Metrics) IncrementBreakerOpened(vendor string) {
	if m != nil {
		m.BreakerOpened.WithLabelValues(vendor).Inc()
	}
}

func (m *Metrics) IncrementReused(vendor, api string) {
	if m != nil {
		m.ResultReused.WithLabelValues(vendor, api).Inc()
	}
}

func (m *Metrics) IncrementStepOutcome(step, outcome string) {
	if m != nil {
		m.StepOutcome.WithLabelValues(step, outcome).Inc()
	}
}
