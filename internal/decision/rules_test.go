package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/risk"
)

func greetingRules() RuleSet[string] {
	return RuleSet[string]{
		Name: "greeting",
		Rules: []Rule[string]{
			{Name: "hello", Predicate: func(s string) bool { return s == "hello" }, Action: Fail},
			{Name: "length_gt_3", Predicate: func(s string) bool { return len(s) > 3 }, Action: StepUp(StepUpIdentity)},
		},
	}
}

func TestRuleSet_Evaluate(t *testing.T) {
	rs := greetingRules()

	t.Run("both rules trigger and the most severe action wins", func(t *testing.T) {
		result := rs.Evaluate("hello")
		require.NotNil(t, result.ActionTriggered)
		assert.Equal(t, Fail, *result.ActionTriggered)
		assert.Equal(t, []RuleSummary{
			{Name: "hello", Action: "fail"},
			{Name: "length_gt_3", Action: "step_up.identity"},
		}, result.RulesTriggered)
		assert.Empty(t, result.RulesNotTriggered)
	})

	t.Run("only the length rule triggers", func(t *testing.T) {
		result := rs.Evaluate("world")
		require.NotNil(t, result.ActionTriggered)
		assert.Equal(t, StepUp(StepUpIdentity), *result.ActionTriggered)
		assert.Equal(t, []RuleSummary{{Name: "hello", Action: "fail"}}, result.RulesNotTriggered)
	})

	t.Run("nothing triggers", func(t *testing.T) {
		result := rs.Evaluate("ab")
		assert.Nil(t, result.ActionTriggered)
		assert.Empty(t, result.RulesTriggered)
		assert.Len(t, result.RulesNotTriggered, 2)
		assert.Equal(t, "greeting", result.RuleSetName)
	})
}

func TestRuleSet_EvaluatesEveryRule(t *testing.T) {
	calls := 0
	counting := func(string) bool { calls++; return true }
	rs := RuleSet[string]{Name: "all", Rules: []Rule[string]{
		{Name: "a", Predicate: counting, Action: Fail},
		{Name: "b", Predicate: counting, Action: ManualReview},
		{Name: "c", Predicate: counting, Action: StepUp(StepUpIdentity)},
	}}

	rs.Evaluate("x")
	assert.Equal(t, 3, calls, "a triggered Fail must not short-circuit later rules")
}

func TestKycRules(t *testing.T) {
	rs := KycRules()

	tests := []struct {
		name    string
		signals risk.Set
		want    *Action
	}{
		{"clean identity passes", risk.NewSet(risk.IdentityCoreMatched), nil},
		{"name mismatch steps up identity", risk.NewSet(risk.NameDoesNotMatch), ptr(StepUp(StepUpIdentity))},
		{"address mismatch steps up proof of address", risk.NewSet(risk.AddressDoesNotMatch), ptr(StepUp(StepUpProofOfAddress))},
		{"pep hit goes to review over a step-up", risk.NewSet(risk.WatchlistHitPep, risk.NameDoesNotMatch), ptr(ManualReview)},
		{"ofac hit fails", risk.NewSet(risk.WatchlistHitOfac, risk.WatchlistHitPep), ptr(Fail)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rs.Evaluate(KycFeatures{Vendor: "idology", Signals: tt.signals})
			assert.Equal(t, tt.want, got.ActionTriggered)
		})
	}
}

func TestKybRules_BeneficialOwners(t *testing.T) {
	rs := KybRules()

	allPassed := rs.Evaluate(KybFeatures{Signals: risk.NewSet(risk.TinMatch), BoKycTotal: 2, BoKycPassed: 2})
	assert.Nil(t, allPassed.ActionTriggered)

	oneFailed := rs.Evaluate(KybFeatures{Signals: risk.NewSet(risk.TinMatch), BoKycTotal: 2, BoKycPassed: 1})
	assert.Equal(t, ptr(ManualReview), oneFailed.ActionTriggered)
}

func TestAction_ParseRoundTrip(t *testing.T) {
	for _, a := range []Action{Fail, ManualReview, StepUp(StepUpIdentity), StepUp(StepUpProofOfAddress), StepUp(StepUpIdentityProofOfSsn)} {
		parsed, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	_, err := ParseAction("step_up.selfie_only")
	assert.Error(t, err)
	_, err = ParseAction("pass")
	assert.Error(t, err)
}

func TestStepUpRequirements(t *testing.T) {
	assert.Equal(t, []DocumentKind{DocumentIdentity, DocumentSelfie}, StepUpIdentity.Requirements())
	assert.Equal(t, []DocumentKind{DocumentProofOfAddress}, StepUpProofOfAddress.Requirements())
}

func ptr(a Action) *Action { return &a }
