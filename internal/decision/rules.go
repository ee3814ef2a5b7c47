package decision

// Rule is a named predicate over a feature vector T, tagged with the action it demands.
type Rule[T any] struct {
	Name      string
	Predicate func(T) bool
	Action    Action
}

// RuleSet is a named, ordered list of rules over the same feature vector.
type RuleSet[T any] struct {
	Name  string
	Rules []Rule[T]
}

// RuleSummary is the persisted view of a single rule.
type RuleSummary struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

// RuleSetResult records one evaluation. ActionTriggered is the most severe action among
// triggered rules, nil when nothing triggered.
type RuleSetResult struct {
	RuleSetName       string        `json:"rule_set_name"`
	RulesTriggered    []RuleSummary `json:"rules_triggered"`
	RulesNotTriggered []RuleSummary `json:"rules_not_triggered"`
	ActionTriggered   *Action       `json:"action_triggered,omitempty"`
}

// Evaluate applies every rule to features. It never short-circuits and has no side effects;
// result slices follow declared rule order.
func (rs RuleSet[T]) Evaluate(features T) RuleSetResult {
	result := RuleSetResult{
		RuleSetName:       rs.Name,
		RulesTriggered:    []RuleSummary{},
		RulesNotTriggered: []RuleSummary{},
	}
	for _, rule := range rs.Rules {
		summary := RuleSummary{Name: rule.Name, Action: rule.Action.String()}
		if !rule.Predicate(features) {
			result.RulesNotTriggered = append(result.RulesNotTriggered, summary)
			continue
		}
		result.RulesTriggered = append(result.RulesTriggered, summary)
		if result.ActionTriggered == nil || result.ActionTriggered.Less(rule.Action) {
			action := rule.Action
			result.ActionTriggered = &action
		}
	}
	return result
}

// With returns a copy of the rule set with extra rules appended.
func (rs RuleSet[T]) With(extra ...Rule[T]) RuleSet[T] {
	rules := make([]Rule[T], 0, len(rs.Rules)+len(extra))
	rules = append(rules, rs.Rules...)
	rules = append(rules, extra...)
	return RuleSet[T]{Name: rs.Name, Rules: rules}
}
