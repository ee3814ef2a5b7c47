// Package verification keeps the audit trail of outbound vendor calls. Every call writes one
// Request, and one Result when the vendor was reached. Successful results double as the
// idempotency cache: retried steps look them up before calling the vendor again.
package verification

import (
	"time"

	"github.com/google/uuid"

	"onboarding/internal/vendors"
	id "onboarding/pkg/domain"
)

// Owner scopes records to the entity that drove the call: a document session or a
// decision intent.
type Owner uuid.UUID

func SessionOwner(sid id.SessionID) Owner          { return Owner(sid) }
func IntentOwner(intent id.DecisionIntentID) Owner { return Owner(intent) }

func (o Owner) String() string { return uuid.UUID(o).String() }

// Request is written before the vendor call outcome is known.
type Request struct {
	ID         id.VerificationRequestID
	Vendor     vendors.Name
	API        vendors.API
	Owner      Owner
	WorkflowID id.WorkflowID
	// InputKey identifies the input the call was made with, e.g. the uploaded image id.
	// Two calls with the same owner, API, and input key are interchangeable.
	InputKey  string
	CreatedAt time.Time
}

// Result holds the sealed vendor response.
type Result struct {
	ID        uuid.UUID
	RequestID id.VerificationRequestID
	Response  []byte
	IsError   bool
	CreatedAt time.Time
}

// Record pairs a request with its result. Result is nil when the call never reached the vendor.
type Record struct {
	Request Request
	Result  *Result
}

// Successful reports whether the vendor answered without an error.
func (r Record) Successful() bool {
	return r.Result != nil && !r.Result.IsError
}

// Lookup selects records by owner, API, and input key.
type Lookup struct {
	Owner    Owner
	API      vendors.API
	InputKey string
}

func (l Lookup) matches(req Request) bool {
	return req.Owner == l.Owner && req.API == l.API && req.InputKey == l.InputKey
}
