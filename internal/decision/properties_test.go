package decision

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allActions = []Action{
	StepUp(StepUpIdentity),
	StepUp(StepUpProofOfAddress),
	StepUp(StepUpIdentityProofOfSsn),
	ManualReview,
	Fail,
}

// genOptionalAction yields nil (pass) or one of the actions.
func genOptionalAction() gopter.Gen {
	return gen.IntRange(-1, len(allActions)-1).Map(func(i int) *Action {
		if i < 0 {
			return nil
		}
		a := allActions[i]
		return &a
	})
}

func genAction() gopter.Gen {
	return gen.IntRange(0, len(allActions)-1).Map(func(i int) Action { return allActions[i] })
}

func TestActionOrderingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("declared order StepUp < ManualReview < Fail", prop.ForAll(
		func(kind int) bool {
			s := allActions[kind]
			return s.Less(ManualReview) && ManualReview.Less(Fail) && s.Less(Fail)
		},
		gen.IntRange(0, 2),
	))

	properties.Property("order is transitive", prop.ForAll(
		func(a, b, c Action) bool {
			if a.Compare(b) <= 0 && b.Compare(c) <= 0 {
				return a.Compare(c) <= 0
			}
			return true
		},
		genAction(), genAction(), genAction(),
	))

	properties.Property("order is antisymmetric", prop.ForAll(
		func(a, b Action) bool {
			return a.Compare(b) == -b.Compare(a)
		},
		genAction(), genAction(),
	))

	properties.TestingRun(t)
}

func TestRuleSetProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// Rules trigger when the input contains their letter.
	rs := RuleSet[string]{Name: "letters", Rules: []Rule[string]{
		{Name: "a", Predicate: containsByte('a'), Action: Fail},
		{Name: "b", Predicate: containsByte('b'), Action: ManualReview},
		{Name: "c", Predicate: containsByte('c'), Action: StepUp(StepUpIdentity)},
		{Name: "d", Predicate: containsByte('d'), Action: StepUp(StepUpProofOfAddress)},
	}}
	actionsByName := map[string]Action{}
	for _, r := range rs.Rules {
		actionsByName[r.Name] = r.Action
	}

	properties.Property("evaluation is deterministic", prop.ForAll(
		func(s string) bool {
			return reflect.DeepEqual(rs.Evaluate(s), rs.Evaluate(s))
		},
		gen.AlphaString(),
	))

	properties.Property("action is the max over triggered rules", prop.ForAll(
		func(s string) bool {
			result := rs.Evaluate(s)
			var want *Action
			for _, r := range result.RulesTriggered {
				a := actionsByName[r.Name]
				if want == nil || want.Less(a) {
					want = &a
				}
			}
			return CompareOptional(want, result.ActionTriggered) == 0
		},
		gen.AlphaString(),
	))

	properties.Property("every rule lands in exactly one partition", prop.ForAll(
		func(s string) bool {
			result := rs.Evaluate(s)
			return len(result.RulesTriggered)+len(result.RulesNotTriggered) == len(rs.Rules)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestWaterfallProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("result is no more severe than either input", prop.ForAll(
		func(a, b *Action) bool {
			got, err := Waterfall([]VendorEvaluation{evaluation("v1", a), evaluation("v2", b)})
			if err != nil {
				return false
			}
			return CompareOptional(got.Action(), a) <= 0 && CompareOptional(got.Action(), b) <= 0
		},
		genOptionalAction(), genOptionalAction(),
	))

	properties.Property("severity is symmetric in input order", prop.ForAll(
		func(a, b *Action) bool {
			ab, err1 := Waterfall([]VendorEvaluation{evaluation("v1", a), evaluation("v2", b)})
			ba, err2 := Waterfall([]VendorEvaluation{evaluation("v2", b), evaluation("v1", a)})
			if err1 != nil || err2 != nil {
				return false
			}
			return CompareOptional(ab.Action(), ba.Action()) == 0
		},
		genOptionalAction(), genOptionalAction(),
	))

	properties.TestingRun(t)
}

func containsByte(c byte) func(string) bool {
	return func(s string) bool {
		for i := 0; i < len(s); i++ {
			if s[i] == c {
				return true
			}
		}
		return false
	}
}
