package models

import (
	"time"

	"github.com/google/uuid"

	"onboarding/internal/decision"
	"onboarding/internal/risk"
	id "onboarding/pkg/domain"
)

type DecisionStatus string

const (
	DecisionPass   DecisionStatus = "pass"
	DecisionFail   DecisionStatus = "fail"
	DecisionStepUp DecisionStatus = "step_up"
)

// Decision is the outcome of a Decisioning transition. ManualReview decisions are stored
// as Fail with ManualReview set until an operator clears them.
type Decision struct {
	ID           uuid.UUID
	WorkflowID   id.WorkflowID
	Status       DecisionStatus
	ManualReview bool
	// Action is the rule action the decision was derived from, nil for a pass.
	Action    *decision.Action
	CreatedAt time.Time
}

// StatusFor maps a rule action to the persisted decision.
func StatusFor(action *decision.Action) (DecisionStatus, bool) {
	switch {
	case action == nil:
		return DecisionPass, false
	case action.IsStepUp():
		return DecisionStepUp, false
	case action.Severity == decision.SeverityManualReview:
		return DecisionFail, true
	default:
		return DecisionFail, false
	}
}

// RuleSetResultRecord ties one rule set evaluation to the transition that produced it.
type RuleSetResultRecord struct {
	ID         uuid.UUID
	WorkflowID id.WorkflowID
	// Vendor is set for per-vendor evaluations that went through the waterfall.
	Vendor    string
	Selected  bool
	Result    decision.RuleSetResult
	CreatedAt time.Time
}

type ManualReview struct {
	ID         uuid.UUID
	WorkflowID id.WorkflowID
	Reason     string
	CreatedAt  time.Time
}

// DocumentRequest asks the user for one piece of evidence after a step-up.
type DocumentRequest struct {
	ID         uuid.UUID
	WorkflowID id.WorkflowID
	Kind       decision.DocumentKind
	CreatedAt  time.Time
}

// IntentKind scopes a decision intent to the async work it deduplicates.
type IntentKind string

const (
	IntentKycVendorCalls IntentKind = "kyc_vendor_calls"
	IntentKybVendorCalls IntentKind = "kyb_vendor_calls"
)

// DecisionIntent is created once per workflow and intent kind. Vendor results are owned by
// the intent, so a retried async phase finds the calls it already paid for.
type DecisionIntent struct {
	ID         id.DecisionIntentID
	WorkflowID id.WorkflowID
	Kind       IntentKind
	CreatedAt  time.Time
}

// RiskSignalRecord is a vendor signal persisted against a workflow.
type RiskSignalRecord struct {
	WorkflowID id.WorkflowID
	Signal     risk.Signal
	CreatedAt  time.Time
}
