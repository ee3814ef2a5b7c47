package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/decision"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

func TestParseState(t *testing.T) {
	for kind, states := range statesByKind {
		for _, s := range states {
			parsed, err := ParseState(kind, s.Name())
			require.NoError(t, err)
			assert.True(t, SameState(s, parsed))
		}
	}

	_, err := ParseState(KindKyb, "doc_collection")
	assert.Error(t, err)
	_, err = ParseState("composite", "complete")
	assert.Error(t, err)
}

func TestSameStateComparesKindTag(t *testing.T) {
	assert.True(t, SameState(KycDecisioning, KycDecisioning))
	assert.False(t, SameState(KycDecisioning, KybDecisioning), "same variant name in another kind")
	assert.False(t, SameState(KycDecisioning, KycComplete))
}

func TestDefaultAction(t *testing.T) {
	tests := []struct {
		state State
		want  ActionName
		ok    bool
	}{
		{KycDataCollection, "", false},
		{KycVendorCalls, ActionMakeVendorCalls, true},
		{KycDecisioning, ActionMakeDecision, true},
		{KycDocCollection, ActionDocCollected, true},
		{KybAwaitingBoKyc, "", false},
		{KybAwaitingAsyncVendors, ActionAsyncVendorsCompleted, true},
		{DocumentDocCollection, ActionProcessDocument, true},
		{DocumentComplete, "", false},
	}
	for _, tt := range tests {
		t.Run(StateString(tt.state), func(t *testing.T) {
			action, ok := DefaultAction(tt.state)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, action.Name())
				assert.Equal(t, tt.state.Kind(), action.Kind())
			}
		})
	}
	for _, s := range RunnableStates() {
		assert.False(t, IsComplete(s))
	}
}

func TestWorkflowValidate(t *testing.T) {
	w, err := NewWorkflow(KycConfig{}, id.TenantID{}, id.ScopedVaultID{}, id.OnboardingID{}, time.Now())
	require.NoError(t, err)
	assert.True(t, SameState(KycDataCollection, w.State))
	require.NoError(t, w.Validate())

	w.State = KybVendorCalls
	assert.True(t, dErrors.HasCode(w.Validate(), dErrors.CodeDataIntegrity))

	w.State = KycVendorCalls
	w.Config = DocumentConfig{}
	assert.True(t, dErrors.HasCode(w.Validate(), dErrors.CodeDataIntegrity))
}

func TestConfigRoundTrip(t *testing.T) {
	raw, err := MarshalConfig(KycConfig{SkipKyc: true, DocumentType: "passport"})
	require.NoError(t, err)
	cfg, err := UnmarshalConfig(KindKyc, raw)
	require.NoError(t, err)
	assert.Equal(t, KycConfig{SkipKyc: true, DocumentType: "passport"}, cfg)
}

func TestConcurrentStateChange(t *testing.T) {
	err := NewConcurrentStateChange(KycDecisioning, KycComplete)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConcurrentStateChange))
	assert.True(t, dErrors.IsRetryable(err))

	csc, ok := AsConcurrentStateChange(err)
	require.True(t, ok)
	assert.Equal(t, KycDecisioning, csc.Expected)
	assert.Equal(t, KycComplete, csc.Actual)
}

func TestStatusFor(t *testing.T) {
	stepUp := decision.StepUp(decision.StepUpIdentity)
	status, review := StatusFor(&stepUp)
	assert.Equal(t, DecisionStepUp, status)
	assert.False(t, review)

	status, review = StatusFor(&decision.ManualReview)
	assert.Equal(t, DecisionFail, status)
	assert.True(t, review)

	status, _ = StatusFor(nil)
	assert.Equal(t, DecisionPass, status)
}
