package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "onboarding/pkg/domain-errors"
)

func evaluation(vendor string, action *Action) VendorEvaluation {
	return VendorEvaluation{Vendor: vendor, Result: RuleSetResult{RuleSetName: RuleSetKyc, ActionTriggered: action}}
}

func TestWaterfall(t *testing.T) {
	stepUp := StepUp(StepUpIdentity)

	tests := []struct {
		name       string
		first      *Action
		second     *Action
		wantAction *Action
		wantVendor string
	}{
		{"fail and pass picks pass", ptr(Fail), nil, nil, "experian"},
		{"fail and fail stays fail", ptr(Fail), ptr(Fail), ptr(Fail), "idology"},
		{"fail and step-up picks step-up", ptr(Fail), &stepUp, &stepUp, "experian"},
		{"step-up tie picks the first", &stepUp, &stepUp, &stepUp, "idology"},
		{"review and step-up picks step-up", ptr(ManualReview), &stepUp, &stepUp, "experian"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Waterfall([]VendorEvaluation{evaluation("idology", tt.first), evaluation("experian", tt.second)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, got.Action())
			assert.Equal(t, tt.wantVendor, got.Vendor)
		})
	}
}

func TestWaterfall_EmptyInputIsAssertion(t *testing.T) {
	_, err := Waterfall(nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAssertion))

	_, err = Waterfall([]VendorEvaluation{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAssertion))
}

func TestWaterfall_SingleVendorPassesThrough(t *testing.T) {
	got, err := Waterfall([]VendorEvaluation{evaluation("idology", ptr(ManualReview))})
	require.NoError(t, err)
	assert.Equal(t, ptr(ManualReview), got.Action())
}
