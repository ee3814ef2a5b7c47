package models

import "fmt"

// Kind selects the state graph a workflow follows.
type Kind string

const (
	KindKyc      Kind = "kyc"
	KindKyb      Kind = "kyb"
	KindDocument Kind = "document"
)

// State is the current node of a workflow's graph. The variants are KycState, KybState,
// and DocumentState; a state's Kind always matches its workflow's Kind.
type State interface {
	Kind() Kind
	Name() string
	isState()
}

type KycState string

const (
	KycDataCollection KycState = "data_collection"
	KycVendorCalls    KycState = "vendor_calls"
	KycDecisioning    KycState = "decisioning"
	KycDocCollection  KycState = "doc_collection"
	KycComplete       KycState = "complete"
)

type KybState string

const (
	KybDataCollection       KybState = "data_collection"
	KybVendorCalls          KybState = "vendor_calls"
	KybAwaitingBoKyc        KybState = "awaiting_bo_kyc"
	KybAwaitingAsyncVendors KybState = "awaiting_async_vendors"
	KybDecisioning          KybState = "decisioning"
	KybComplete             KybState = "complete"
)

type DocumentState string

const (
	DocumentDataCollection DocumentState = "data_collection"
	DocumentDocCollection  DocumentState = "doc_collection"
	DocumentDecisioning    DocumentState = "decisioning"
	DocumentComplete       DocumentState = "complete"
)

func (KycState) Kind() Kind          { return KindKyc }
func (s KycState) Name() string      { return string(s) }
func (KycState) isState()            {}
func (KybState) Kind() Kind          { return KindKyb }
func (s KybState) Name() string      { return string(s) }
func (KybState) isState()            {}
func (DocumentState) Kind() Kind     { return KindDocument }
func (s DocumentState) Name() string { return string(s) }
func (DocumentState) isState()       {}

var statesByKind = map[Kind][]State{
	KindKyc: {KycDataCollection, KycVendorCalls, KycDecisioning, KycDocCollection, KycComplete},
	KindKyb: {
		KybDataCollection, KybVendorCalls, KybAwaitingBoKyc, KybAwaitingAsyncVendors,
		KybDecisioning, KybComplete,
	},
	KindDocument: {DocumentDataCollection, DocumentDocCollection, DocumentDecisioning, DocumentComplete},
}

// InitialState is the entry state of every kind's graph.
func InitialState(kind Kind) (State, error) {
	states, ok := statesByKind[kind]
	if !ok {
		return nil, fmt.Errorf("unknown workflow kind %q", kind)
	}
	return states[0], nil
}

// ParseState restores a persisted (kind, name) pair.
func ParseState(kind Kind, name string) (State, error) {
	states, ok := statesByKind[kind]
	if !ok {
		return nil, fmt.Errorf("unknown workflow kind %q", kind)
	}
	for _, s := range states {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown %s state %q", kind, name)
}

// SameState compares by kind tag and variant.
func SameState(a, b State) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind() == b.Kind() && a.Name() == b.Name()
}

// IsComplete reports whether s is the terminal state of its kind.
func IsComplete(s State) bool {
	switch st := s.(type) {
	case KycState:
		return st == KycComplete
	case KybState:
		return st == KybComplete
	case DocumentState:
		return st == DocumentComplete
	default:
		return false
	}
}

// StateString renders a state as "kind.name" for logs and metrics.
func StateString(s State) string {
	if s == nil {
		return "none"
	}
	return string(s.Kind()) + "." + s.Name()
}
