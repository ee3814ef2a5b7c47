package models

import id "onboarding/pkg/domain"

// ActionName identifies what an action asks a state to do.
type ActionName string

const (
	ActionAuthorize             ActionName = "authorize"
	ActionMakeVendorCalls       ActionName = "make_vendor_calls"
	ActionMakeDecision          ActionName = "make_decision"
	ActionDocCollected          ActionName = "doc_collected"
	ActionProcessDocument       ActionName = "process_document"
	ActionBoKycCompleted        ActionName = "bo_kyc_completed"
	ActionAsyncVendorsCompleted ActionName = "async_vendors_completed"
)

// Action is submitted to a workflow and consumed by exactly one transition. The variants
// are KycAction, KybAction, and DocumentAction.
type Action interface {
	Kind() Kind
	Name() ActionName
	isAction()
}

type KycAction struct {
	Type ActionName
}

// KybAction carries the child workflow for ActionBoKycCompleted.
type KybAction struct {
	Type  ActionName
	Child id.WorkflowID
}

type DocumentAction struct {
	Type ActionName
}

func (KycAction) Kind() Kind              { return KindKyc }
func (a KycAction) Name() ActionName      { return a.Type }
func (KycAction) isAction()               {}
func (KybAction) Kind() Kind              { return KindKyb }
func (a KybAction) Name() ActionName      { return a.Type }
func (KybAction) isAction()               {}
func (DocumentAction) Kind() Kind         { return KindDocument }
func (a DocumentAction) Name() ActionName { return a.Type }
func (DocumentAction) isAction()          {}

// NewAction builds the action variant for kind.
func NewAction(kind Kind, name ActionName) Action {
	switch kind {
	case KindKyb:
		return KybAction{Type: name}
	case KindDocument:
		return DocumentAction{Type: name}
	default:
		return KycAction{Type: name}
	}
}

// DefaultAction is the action a scheduler may apply to s without external input.
func DefaultAction(s State) (Action, bool) {
	switch st := s.(type) {
	case KycState:
		switch st {
		case KycVendorCalls:
			return KycAction{Type: ActionMakeVendorCalls}, true
		case KycDecisioning:
			return KycAction{Type: ActionMakeDecision}, true
		case KycDocCollection:
			return KycAction{Type: ActionDocCollected}, true
		}
	case KybState:
		switch st {
		case KybVendorCalls:
			return KybAction{Type: ActionMakeVendorCalls}, true
		case KybAwaitingAsyncVendors:
			return KybAction{Type: ActionAsyncVendorsCompleted}, true
		case KybDecisioning:
			return KybAction{Type: ActionMakeDecision}, true
		}
	case DocumentState:
		switch st {
		case DocumentDocCollection:
			return DocumentAction{Type: ActionProcessDocument}, true
		case DocumentDecisioning:
			return DocumentAction{Type: ActionMakeDecision}, true
		}
	}
	return nil, false
}

// RunnableStates lists every state that declares a default action.
func RunnableStates() []State {
	var out []State
	for _, kind := range []Kind{KindKyc, KindKyb, KindDocument} {
		for _, s := range statesByKind[kind] {
			if _, ok := DefaultAction(s); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
