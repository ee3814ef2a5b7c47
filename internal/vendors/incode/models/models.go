package models

import (
	"fmt"
	"time"

	"onboarding/internal/risk"
	id "onboarding/pkg/domain"
)

// State is a step of the document verification session. Sessions only move forward
// through stateOrder.
type State string

const (
	StateStartOnboarding State = "start_onboarding"
	StateAddConsent      State = "add_consent"
	StateAddFront        State = "add_front"
	StateAddBack         State = "add_back"
	StateProcessID       State = "process_id"
	StateFetchScores     State = "fetch_scores"
	StateFetchOCR        State = "fetch_ocr"
	StateComplete        State = "complete"
)

var stateOrder = []State{
	StateStartOnboarding,
	StateAddConsent,
	StateAddFront,
	StateAddBack,
	StateProcessID,
	StateFetchScores,
	StateFetchOCR,
	StateComplete,
}

// Index is the position of s in the forward chain, or -1 when s is unknown.
func (s State) Index() int {
	for i, st := range stateOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func ParseState(s string) (State, error) {
	st := State(s)
	if st.Index() < 0 {
		return "", fmt.Errorf("unknown incode state %q", s)
	}
	return st, nil
}

type DocumentType string

const (
	DocumentDriversLicense DocumentType = "drivers_license"
	DocumentIDCard         DocumentType = "id_card"
	DocumentPassport       DocumentType = "passport"
)

// RequiresBack reports whether the document has a back side to upload.
func (d DocumentType) RequiresBack() bool {
	return d != DocumentPassport
}

func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(s) {
	case DocumentDriversLicense, DocumentIDCard, DocumentPassport:
		return DocumentType(s), nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// FailureReason is a recoverable vendor rejection. The session stays on the current
// step until the user supplies new input.
type FailureReason string

const (
	FailureBlurry              FailureReason = "blurry"
	FailureGlare               FailureReason = "glare"
	FailureWrongSide           FailureReason = "wrong_side"
	FailureDocumentNotFound    FailureReason = "document_not_found"
	FailureUnsupportedDocument FailureReason = "unsupported_document"
	FailureWrongDocumentType   FailureReason = "wrong_document_type"
)

// Credentials are issued by the start step and authorize every later call.
type Credentials struct {
	Token       string `json:"token"`
	InterviewID string `json:"interview_id"`
}

// Scores are persisted at FetchScores and consumed when the session completes.
type Scores struct {
	IDScore       float64  `json:"id_score"`
	LivenessScore float64  `json:"liveness_score"`
	FaceMatch     float64  `json:"face_match"`
	Overall       string   `json:"overall"`
	Flags         []string `json:"flags,omitempty"`
}

type Session struct {
	ID             id.SessionID
	WorkflowID     id.WorkflowID
	TenantID       id.TenantID
	ScopedVaultID  id.ScopedVaultID
	DocumentType   DocumentType
	State          State
	Credentials    Credentials
	FailureReason  *FailureReason
	FailedAttempts int
	// Terminal is set once the retry budget for a step is spent.
	Terminal    bool
	Scores      *Scores
	Signals     []risk.ReasonCode
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (s *Session) IsComplete() bool {
	return s.State == StateComplete
}

// Finished reports whether no further driving can change the session.
func (s *Session) Finished() bool {
	return s.IsComplete() || s.Terminal
}

type Upload struct {
	ID        id.DocumentID
	SessionID id.SessionID
	Side      Side
	ImageRef  string
	CreatedAt time.Time
}
