package models

import (
	"errors"
	"fmt"

	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

// ErrTransitionConsumed is returned when a transition value is applied twice.
var ErrTransitionConsumed = errors.New("workflow transition already consumed")

// ConcurrentStateChange reports that the persisted state moved between the async phase
// and the commit.
type ConcurrentStateChange struct {
	Expected State
	Actual   State
}

func (e *ConcurrentStateChange) Error() string {
	return fmt.Sprintf("concurrent state change: expected %s, found %s", StateString(e.Expected), StateString(e.Actual))
}

func NewConcurrentStateChange(expected, actual State) error {
	cause := &ConcurrentStateChange{Expected: expected, Actual: actual}
	return dErrors.Wrap(cause, dErrors.CodeConcurrentStateChange, "workflow state changed concurrently")
}

// AsConcurrentStateChange extracts the expected and actual states from err.
func AsConcurrentStateChange(err error) (*ConcurrentStateChange, bool) {
	var csc *ConcurrentStateChange
	if errors.As(err, &csc) {
		return csc, true
	}
	return nil, false
}

func UnexpectedActionForState(state State, action Action) error {
	return dErrors.New(dErrors.CodeUnexpectedAction,
		fmt.Sprintf("action %s is not accepted in state %s", action.Name(), StateString(state)))
}

func UnexpectedStateForWorkflow(wid id.WorkflowID, kind Kind, state State) error {
	return dErrors.New(dErrors.CodeDataIntegrity,
		fmt.Sprintf("workflow %s of kind %s has state %s", wid, kind, StateString(state)))
}

func UnexpectedConfigForWorkflow(wid id.WorkflowID, kind Kind, config Config) error {
	found := "none"
	if config != nil {
		found = string(config.Kind())
	}
	return dErrors.New(dErrors.CodeDataIntegrity,
		fmt.Sprintf("workflow %s of kind %s has %s config", wid, kind, found))
}
