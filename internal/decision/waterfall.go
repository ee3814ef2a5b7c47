package decision

import dErrors "onboarding/pkg/domain-errors"

// VendorEvaluation is one vendor's rule set outcome for a shared capability.
type VendorEvaluation struct {
	Vendor string
	Result RuleSetResult
}

func (v VendorEvaluation) Action() *Action {
	return v.Result.ActionTriggered
}

// Waterfall picks the least severe outcome across vendors that cover the same capability,
// so one noisy vendor cannot escalate a user when another vendor's evidence suffices.
// Ties resolve to the earliest entry. Calling it with no evaluations is a caller bug.
func Waterfall(evaluations []VendorEvaluation) (VendorEvaluation, error) {
	if len(evaluations) == 0 {
		return VendorEvaluation{}, dErrors.New(dErrors.CodeAssertion, "waterfall requires at least one vendor evaluation")
	}
	best := evaluations[0]
	for _, candidate := range evaluations[1:] {
		if CompareOptional(candidate.Action(), best.Action()) < 0 {
			best = candidate
		}
	}
	return best, nil
}
