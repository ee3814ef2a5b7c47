package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for rule evaluation and vendor arbitration.
type Metrics struct {
	// Rule set outcomes by rule set and resulting action
	RuleSetOutcome *prometheus.CounterVec

	// Individual rule hits, useful when tuning tenant rules
	RuleTriggered *prometheus.CounterVec

	// Waterfall selections by capability and winning vendor
	WaterfallSelection *prometheus.CounterVec

	// Time spent computing a decision, excluding vendor calls
	DecideLatency prometheus.Histogram
}

// New creates a Metrics instance with all decision metrics registered.
func New() *Metrics {
	return &Metrics{
		RuleSetOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_rule_set_outcomes_total",
			Help: "Rule set evaluations by rule set and triggered action",
		}, []string{"rule_set", "action"}),

		RuleTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_rules_triggered_total",
			Help: "Triggered rules by rule set and rule name",
		}, []string{"rule_set", "rule"}),

		WaterfallSelection: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_waterfall_selections_total",
			Help: "Vendor selected by waterfall arbitration",
		}, []string{"capability", "vendor"}),

		DecideLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboarding_decide_duration_seconds",
			Help:    "Duration of rule evaluation and arbitration for one decision",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// ObserveRuleSet records one rule set evaluation.
func (m *Metrics) ObserveRuleSet(ruleSet, action string, triggered []string) {
	if m == nil {
		return
	}
	m.RuleSetOutcome.WithLabelValues(ruleSet, action).Inc()
	for _, rule := range triggered {
		m.RuleTriggered.WithLabelValues(ruleSet, rule).Inc()
	}
}

// IncrementWaterfall records which vendor won arbitration.
func (m *Metrics) IncrementWaterfall(capability, vendor string) {
	if m != nil {
		m.WaterfallSelection.WithLabelValues(capability, vendor).Inc()
	}
}

// ObserveDecideLatency records the decision computation duration.
func (m *Metrics) ObserveDecideLatency(d time.Duration) {
	if m != nil {
		m.DecideLatency.Observe(d.Seconds())
	}
}
