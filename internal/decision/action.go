package decision

import (
	"fmt"
	"strings"
)

// Severity orders rule actions. The order is part of the contract:
// StepUp < ManualReview < Fail.
type Severity int

const (
	SeverityStepUp Severity = iota + 1
	SeverityManualReview
	SeverityFail
)

// StepUpKind names the extra evidence a step-up asks for.
type StepUpKind string

const (
	StepUpIdentity           StepUpKind = "identity"
	StepUpProofOfAddress     StepUpKind = "proof_of_address"
	StepUpIdentityProofOfSsn StepUpKind = "identity_proof_of_ssn"
)

// stepUpRank breaks ties between step-ups: a step-up asking for more evidence is more severe.
var stepUpRank = map[StepUpKind]int{
	StepUpIdentity:           1,
	StepUpProofOfAddress:     2,
	StepUpIdentityProofOfSsn: 3,
}

// DocumentKind is one piece of evidence requested from the user.
type DocumentKind string

const (
	DocumentIdentity       DocumentKind = "identity"
	DocumentSelfie         DocumentKind = "selfie"
	DocumentProofOfAddress DocumentKind = "proof_of_address"
	DocumentProofOfSsn     DocumentKind = "proof_of_ssn"
)

// Requirements lists the documents implied by a step-up kind.
func (k StepUpKind) Requirements() []DocumentKind {
	switch k {
	case StepUpIdentity:
		return []DocumentKind{DocumentIdentity, DocumentSelfie}
	case StepUpProofOfAddress:
		return []DocumentKind{DocumentProofOfAddress}
	case StepUpIdentityProofOfSsn:
		return []DocumentKind{DocumentIdentity, DocumentSelfie, DocumentProofOfSsn}
	default:
		return nil
	}
}

// Action is the consequence attached to a rule. The zero value is invalid; "no action"
// is represented by a nil *Action.
type Action struct {
	Severity Severity
	StepUp   StepUpKind
}

var (
	ManualReview = Action{Severity: SeverityManualReview}
	Fail         = Action{Severity: SeverityFail}
)

func StepUp(kind StepUpKind) Action {
	return Action{Severity: SeverityStepUp, StepUp: kind}
}

func (a Action) IsStepUp() bool { return a.Severity == SeverityStepUp }

// Compare returns -1, 0 or 1. Step-ups of different kinds compare by the evidence they request.
func (a Action) Compare(b Action) int {
	if a.Severity != b.Severity {
		if a.Severity < b.Severity {
			return -1
		}
		return 1
	}
	if a.Severity != SeverityStepUp {
		return 0
	}
	ra, rb := stepUpRank[a.StepUp], stepUpRank[b.StepUp]
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

func (a Action) Less(b Action) bool { return a.Compare(b) < 0 }

func (a Action) String() string {
	switch a.Severity {
	case SeverityStepUp:
		return "step_up." + string(a.StepUp)
	case SeverityManualReview:
		return "manual_review"
	case SeverityFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ParseAction is the inverse of String.
func ParseAction(s string) (Action, error) {
	switch {
	case s == "fail":
		return Fail, nil
	case s == "manual_review":
		return ManualReview, nil
	case strings.HasPrefix(s, "step_up."):
		kind := StepUpKind(strings.TrimPrefix(s, "step_up."))
		if _, ok := stepUpRank[kind]; !ok {
			return Action{}, fmt.Errorf("unknown step-up kind %q", kind)
		}
		return StepUp(kind), nil
	default:
		return Action{}, fmt.Errorf("unknown rule action %q", s)
	}
}

// CompareOptional orders optional actions with nil (pass) below every action.
func CompareOptional(a, b *Action) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

// ActionString renders an optional action, "pass" for nil.
func ActionString(a *Action) string {
	if a == nil {
		return "pass"
	}
	return a.String()
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
