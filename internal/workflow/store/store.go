// Package store persists workflows and everything a transition writes atomically with its
// state change.
package store

import (
	"context"
	"time"

	"onboarding/internal/outbox"
	"onboarding/internal/risk"
	"onboarding/internal/workflow/models"
	id "onboarding/pkg/domain"
)

// Store is the non-transactional surface used by the async phase and by readers.
type Store interface {
	Create(ctx context.Context, w *models.Workflow) error
	// Find returns sentinel.ErrNotFound for unknown ids. The returned workflow has
	// already passed Validate.
	Find(ctx context.Context, wid id.WorkflowID) (*models.Workflow, error)
	ListChildren(ctx context.Context, parent id.WorkflowID) ([]*models.Workflow, error)
	// ListRunnable returns workflows parked in one of states whose next run is due at or
	// before due, earliest first.
	ListRunnable(ctx context.Context, states []models.State, due time.Time, limit int) ([]*models.Workflow, error)
	RiskSignals(ctx context.Context, wid id.WorkflowID) ([]risk.Signal, error)
	LatestDecision(ctx context.Context, wid id.WorkflowID) (*models.Decision, error)
	RuleSetResults(ctx context.Context, wid id.WorkflowID) ([]models.RuleSetResultRecord, error)
	ManualReviews(ctx context.Context, wid id.WorkflowID) ([]models.ManualReview, error)
	DocumentRequests(ctx context.Context, wid id.WorkflowID) ([]models.DocumentRequest, error)
	// DecisionIntent returns the intent for (wid, kind), creating it on first use.
	DecisionIntent(ctx context.Context, wid id.WorkflowID, kind models.IntentKind) (*models.DecisionIntent, error)
	RunInTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the commit phase surface. Every write lands or none does.
type TxStore interface {
	// LockWorkflow reads the row with an exclusive lock held until the transaction ends.
	LockWorkflow(ctx context.Context, wid id.WorkflowID) (*models.Workflow, error)
	// UpdateState moves the workflow and makes it due for the scheduler at once.
	UpdateState(ctx context.Context, wid id.WorkflowID, state models.State, at time.Time) error
	// Reschedule postpones the next scheduled run of a workflow that stayed where it was.
	Reschedule(ctx context.Context, wid id.WorkflowID, next time.Time) error
	CreateWorkflow(ctx context.Context, w *models.Workflow) error
	SaveRiskSignals(ctx context.Context, wid id.WorkflowID, signals []risk.Signal, at time.Time) error
	SaveRuleSetResults(ctx context.Context, results []models.RuleSetResultRecord) error
	SaveDecision(ctx context.Context, d models.Decision) error
	CreateManualReview(ctx context.Context, review models.ManualReview) error
	CreateDocumentRequests(ctx context.Context, requests []models.DocumentRequest) error
	AppendOutbox(ctx context.Context, entry outbox.Entry) error
}
