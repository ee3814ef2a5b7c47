package incode

import (
	"context"

	"onboarding/internal/vendors/incode/models"
	"onboarding/internal/verification"
	id "onboarding/pkg/domain"
)

// Store persists sessions and uploads.
type Store interface {
	// CreateSession returns sentinel.ErrConflict when the workflow already has a session.
	CreateSession(ctx context.Context, session *models.Session) error
	FindSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindSessionByWorkflow(ctx context.Context, workflowID id.WorkflowID) (*models.Session, error)
	// LatestFinishedSession returns the newest complete or terminal session for the vault.
	LatestFinishedSession(ctx context.Context, sv id.ScopedVaultID) (*models.Session, error)
	AddUpload(ctx context.Context, upload *models.Upload) error
	LatestUpload(ctx context.Context, sessionID id.SessionID, side models.Side) (*models.Upload, error)
	RunInTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the view of Store inside a transaction. Writes become visible together when
// the transaction commits.
type TxStore interface {
	// LockSession loads the session and holds it against concurrent transitions.
	LockSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	AppendVerification(ctx context.Context, rec verification.Record) error
}
