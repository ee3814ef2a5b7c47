package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "onboarding/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so a workflow id can never be passed where a
// session id is expected.
type (
	WorkflowID            uuid.UUID
	SessionID             uuid.UUID
	TenantID              uuid.UUID
	OnboardingID          uuid.UUID
	ScopedVaultID         uuid.UUID
	DecisionIntentID      uuid.UUID
	VerificationRequestID uuid.UUID
	DocumentID            uuid.UUID
)

func NewWorkflowID() WorkflowID                       { return WorkflowID(uuid.New()) }
func NewSessionID() SessionID                         { return SessionID(uuid.New()) }
func NewDecisionIntentID() DecisionIntentID           { return DecisionIntentID(uuid.New()) }
func NewVerificationRequestID() VerificationRequestID { return VerificationRequestID(uuid.New()) }
func NewDocumentID() DocumentID                       { return DocumentID(uuid.New()) }

func (id WorkflowID) String() string            { return uuid.UUID(id).String() }
func (id SessionID) String() string             { return uuid.UUID(id).String() }
func (id TenantID) String() string              { return uuid.UUID(id).String() }
func (id OnboardingID) String() string          { return uuid.UUID(id).String() }
func (id ScopedVaultID) String() string         { return uuid.UUID(id).String() }
func (id DecisionIntentID) String() string      { return uuid.UUID(id).String() }
func (id VerificationRequestID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string            { return uuid.UUID(id).String() }

func (id WorkflowID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id OnboardingID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ScopedVaultID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func ParseWorkflowID(s string) (WorkflowID, error) {
	id, err := parseUUID(s, "workflow")
	return WorkflowID(id), err
}

func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID(s, "session")
	return SessionID(id), err
}

func ParseTenantID(s string) (TenantID, error) {
	id, err := parseUUID(s, "tenant")
	return TenantID(id), err
}

func ParseOnboardingID(s string) (OnboardingID, error) {
	id, err := parseUUID(s, "onboarding")
	return OnboardingID(id), err
}

func ParseScopedVaultID(s string) (ScopedVaultID, error) {
	id, err := parseUUID(s, "scoped vault")
	return ScopedVaultID(id), err
}

// parseUUID rejects empty, malformed and nil UUIDs.
func parseUUID(s, what string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what+" id")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id must not be nil")
	}
	return id, nil
}
