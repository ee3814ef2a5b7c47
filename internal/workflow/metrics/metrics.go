package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for workflow transitions and the scheduler.
type Metrics struct {
	// Transitions by kind, source state, action and outcome (advanced, stayed, failed)
	Transitions *prometheus.CounterVec

	// Commits rejected because the row moved since the async phase
	ConcurrentStateChanges *prometheus.CounterVec

	// Duration of each transition phase
	PhaseLatency *prometheus.HistogramVec

	// Decisions by kind and status
	Decisions *prometheus.CounterVec

	// Scheduler ticks and the workflows each tick advanced
	SchedulerTicks    prometheus.Counter
	SchedulerAdvanced *prometheus.CounterVec
	SchedulerSkipped  prometheus.Counter

	// Best-effort post-commit hooks that failed
	PostCommitFailures *prometheus.CounterVec

	// Stored workflows that failed to load and were left out of a listing
	CorruptWorkflows prometheus.Counter
}

// New creates a Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_workflow_transitions_total",
			Help: "Workflow transitions by kind, source state, action and outcome",
		}, []string{"kind", "state", "action", "outcome"}),

		ConcurrentStateChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_workflow_concurrent_state_changes_total",
			Help: "Commits rejected because the workflow state changed concurrently",
		}, []string{"kind"}),

		PhaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_workflow_phase_duration_seconds",
			Help:    "Duration of transition phases",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "phase"}),

		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_decisions_total",
			Help: "Onboarding decisions by workflow kind and status",
		}, []string{"kind", "status", "manual_review"}),

		SchedulerTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_scheduler_ticks_total",
			Help: "Scheduler ticks",
		}),

		SchedulerAdvanced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_scheduler_runs_total",
			Help: "Default actions run by the scheduler by outcome",
		}, []string{"outcome"}),

		SchedulerSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_scheduler_lease_skips_total",
			Help: "Workflows skipped because another instance holds the lease",
		}),

		PostCommitFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_workflow_post_commit_failures_total",
			Help: "Best-effort post-commit hooks that failed",
		}, []string{"hook"}),

		CorruptWorkflows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_workflow_corrupt_rows_total",
			Help: "Workflow rows skipped because their state or config does not match their kind",
		}),
	}
}

func (m *Metrics) IncrementTransition(kind, state, action, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(kind, state, action, outcome).Inc()
	}
}

func (m *Metrics) IncrementConcurrentStateChange(kind string) {
	if m != nil {
		m.ConcurrentStateChanges.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObservePhase(kind, phase string, d time.Duration) {
	if m != nil {
		m.PhaseLatency.WithLabelValues(kind, phase).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementDecision(kind, status string, manualReview bool) {
	if m == nil {
		return
	}
	review := "false"
	if manualReview {
		review = "true"
	}
	m.Decisions.WithLabelValues(kind, status, review).Inc()
}

func (m *Metrics) IncrementSchedulerTick() {
	if m != nil {
		m.SchedulerTicks.Inc()
	}
}

func (m *Metrics) IncrementSchedulerRun(outcome string) {
	if m != nil {
		m.SchedulerAdvanced.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementSchedulerSkipped() {
	if m != nil {
		m.SchedulerSkipped.Inc()
	}
}

func (m *Metrics) IncrementPostCommitFailure(hook string) {
	if m != nil {
		m.PostCommitFailures.WithLabelValues(hook).Inc()
	}
}

func (m *Metrics) IncrementCorruptWorkflow() {
	if m != nil {
		m.CorruptWorkflows.Inc()
	}
}
