package decision

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile is the on-disk shape of tenant rule extensions:
//
//	rule_sets:
//	  kyc:
//	    - name: high_risk_address
//	      expression: '"address_high_risk" in reason_codes'
//	      action: manual_review
type RulesFile struct {
	RuleSets map[string][]RuleDef `yaml:"rule_sets"`
}

type RuleDef struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Action     string `yaml:"action"`
}

// LoadRulesFile reads a rules file. An empty path yields an empty file.
func LoadRulesFile(path string) (*RulesFile, error) {
	if path == "" {
		return &RulesFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRulesFile(data)
}

func ParseRulesFile(data []byte) (*RulesFile, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for set, defs := range file.RuleSets {
		switch set {
		case RuleSetKyc, RuleSetDocument, RuleSetKyb:
		default:
			return nil, fmt.Errorf("unknown rule set %q", set)
		}
		for i, def := range defs {
			if def.Name == "" || def.Expression == "" {
				return nil, fmt.Errorf("rule set %s: rule %d needs name and expression", set, i)
			}
			if _, err := ParseAction(def.Action); err != nil {
				return nil, fmt.Errorf("rule set %s: rule %s: %w", set, def.Name, err)
			}
		}
	}
	return &file, nil
}

func compileDefs[T Activator](c *CELCompiler, defs []RuleDef) ([]Rule[T], error) {
	rules := make([]Rule[T], 0, len(defs))
	for _, def := range defs {
		action, err := ParseAction(def.Action)
		if err != nil {
			return nil, err
		}
		rule, err := CompileRule[T](c, def.Name, def.Expression, action)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", def.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
