package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/outbox"
	"onboarding/internal/workflow/models"
	"onboarding/internal/workflow/store"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/requestcontext"
)

// handler is the async phase of one (state, action) pair.
type handler func(ctx context.Context, w *models.Workflow, action models.Action) (*outcome, error)

// hook is a best-effort side effect run after a successful commit.
type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// outcome is what the async phase hands to the commit phase.
type outcome struct {
	// next is nil when there is nothing to advance yet. The commit still checks the state.
	next models.State
	// writes runs inside the commit transaction after the state check.
	writes   func(ctx context.Context, tx store.TxStore, w *models.Workflow, now time.Time) error
	decision *models.Decision
	hooks    []hook
}

func stay() *outcome {
	return &outcome{}
}

func advance(next models.State) *outcome {
	return &outcome{next: next}
}

// Result describes a committed transition.
type Result struct {
	Workflow *models.Workflow
	From     models.State
	Advanced bool
	Decision *models.Decision
}

// transition binds an async outcome to the state it was computed against. It can be
// committed once.
type transition struct {
	svc      *Service
	workflow *models.Workflow
	action   models.Action
	outcome  *outcome
	consumed bool
}

// prepare loads the workflow and runs the async phase for action.
func (s *Service) prepare(ctx context.Context, wid id.WorkflowID, action models.Action) (*transition, error) {
	if action == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "action is required")
	}
	w, err := s.Get(ctx, wid)
	if err != nil {
		return nil, err
	}
	kind, state := string(w.Kind), models.StateString(w.State)

	ctx, span := tracer.Start(ctx, "workflow.async", trace.WithAttributes(
		attribute.String("workflow.id", wid.String()),
		attribute.String("workflow.state", state),
		attribute.String("workflow.action", string(action.Name())),
	))
	defer span.End()

	start := time.Now()
	out, err := s.dispatch(ctx, w, action)
	s.metrics.ObservePhase(kind, "async", time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		s.metrics.IncrementTransition(kind, state, string(action.Name()), "failed")
		if isFatal(err) {
			s.logError(ctx, "workflow async phase failed",
				"workflow_id", wid.String(),
				"state", state,
				"action", string(action.Name()),
				"error", err,
			)
		}
		return nil, err
	}
	return &transition{svc: s, workflow: w, action: action, outcome: out}, nil
}

// dispatch finds the handler for the workflow's state and action.
func (s *Service) dispatch(ctx context.Context, w *models.Workflow, action models.Action) (*outcome, error) {
	if action.Kind() != w.Kind {
		return nil, models.UnexpectedActionForState(w.State, action)
	}
	var h handler
	switch st := w.State.(type) {
	case models.KycState:
		h = s.kycHandler(st, action.Name())
	case models.KybState:
		h = s.kybHandler(st, action.Name())
	case models.DocumentState:
		h = s.documentHandler(st, action.Name())
	default:
		return nil, models.UnexpectedStateForWorkflow(w.ID, w.Kind, w.State)
	}
	if h == nil {
		return nil, models.UnexpectedActionForState(w.State, action)
	}
	return h(ctx, w, action)
}

// commit runs the commit phase and then the post-commit hooks.
func (t *transition) commit(ctx context.Context) (*Result, error) {
	if t.consumed {
		return nil, models.ErrTransitionConsumed
	}
	t.consumed = true

	s := t.svc
	from := t.workflow.State
	kind, state, actionName := string(t.workflow.Kind), models.StateString(from), string(t.action.Name())

	ctx, span := tracer.Start(ctx, "workflow.commit", trace.WithAttributes(
		attribute.String("workflow.id", t.workflow.ID.String()),
		attribute.String("workflow.state", state),
	))
	defer span.End()

	start := time.Now()
	now := requestcontext.Now(ctx)
	var updated *models.Workflow
	err := s.store.RunInTx(ctx, func(tx store.TxStore) error {
		locked, err := tx.LockWorkflow(ctx, t.workflow.ID)
		if err != nil {
			return err
		}
		if !models.SameState(locked.State, from) {
			return models.NewConcurrentStateChange(from, locked.State)
		}
		if t.outcome.next == nil {
			next := now.Add(s.retryDelay(locked, now))
			if err := tx.Reschedule(ctx, locked.ID, next); err != nil {
				return fmt.Errorf("reschedule workflow: %w", err)
			}
			locked.NextRunAt = next
			updated = locked
			return nil
		}
		if t.outcome.writes != nil {
			if err := t.outcome.writes(ctx, tx, locked, now); err != nil {
				return err
			}
		}
		if err := tx.UpdateState(ctx, locked.ID, t.outcome.next, now); err != nil {
			return fmt.Errorf("update workflow state: %w", err)
		}
		entry, err := notification(ctx, locked, t.outcome.next, t.action, t.outcome.decision, now)
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, entry); err != nil {
			return fmt.Errorf("append transition notification: %w", err)
		}
		locked.State = t.outcome.next
		locked.UpdatedAt = now
		locked.NextRunAt = now
		if models.IsComplete(locked.State) {
			locked.CompletedAt = &now
		}
		updated = locked
		return nil
	})
	s.metrics.ObservePhase(kind, "commit", time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		s.metrics.IncrementTransition(kind, state, actionName, "failed")
		return nil, s.commitError(ctx, t, err)
	}

	result := &Result{Workflow: updated, From: from, Advanced: t.outcome.next != nil, Decision: t.outcome.decision}
	if !result.Advanced {
		s.metrics.IncrementTransition(kind, state, actionName, "stayed")
		return result, nil
	}
	s.metrics.IncrementTransition(kind, state, actionName, "advanced")
	if d := t.outcome.decision; d != nil {
		s.metrics.IncrementDecision(kind, string(d.Status), d.ManualReview)
	}
	s.logAudit(ctx, "workflow_transitioned",
		"workflow_id", updated.ID.String(),
		"kind", kind,
		"from", state,
		"to", models.StateString(updated.State),
		"action", actionName,
	)
	s.runHooks(ctx, t.outcome.hooks)
	return result, nil
}

// retryDelay is the time a workflow has spent in its state, clamped to the retry bounds.
func (s *Service) retryDelay(w *models.Workflow, now time.Time) time.Duration {
	d := now.Sub(w.UpdatedAt)
	if d < s.minRetry {
		return s.minRetry
	}
	if d > s.maxRetry {
		return s.maxRetry
	}
	return d
}

func (s *Service) commitError(ctx context.Context, t *transition, err error) error {
	if csc, ok := models.AsConcurrentStateChange(err); ok {
		s.metrics.IncrementConcurrentStateChange(string(t.workflow.Kind))
		if s.logger != nil {
			s.logger.WarnContext(ctx, "workflow changed during transition",
				"workflow_id", t.workflow.ID.String(),
				"expected", models.StateString(csc.Expected),
				"actual", models.StateString(csc.Actual),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return err
	}
	if isFatal(err) {
		s.logError(ctx, "workflow commit failed", "workflow_id", t.workflow.ID.String(), "error", err)
		return err
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit workflow transition")
}

// runHooks executes post-commit side effects. Failures are logged and counted; the
// transition has already happened.
func (s *Service) runHooks(ctx context.Context, hooks []hook) {
	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			s.metrics.IncrementPostCommitFailure(h.name)
			if s.logger != nil {
				s.logger.WarnContext(ctx, "post-commit hook failed",
					"hook", h.name,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
			}
		}
	}
}

func isFatal(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeDataIntegrity) || dErrors.HasCode(err, dErrors.CodeAssertion)
}

type transitionedEvent struct {
	WorkflowID   string `json:"workflow_id"`
	Kind         string `json:"kind"`
	TenantID     string `json:"tenant_id"`
	From         string `json:"from"`
	To           string `json:"to"`
	Action       string `json:"action"`
	Decision     string `json:"decision,omitempty"`
	ManualReview bool   `json:"manual_review,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	At           string `json:"at"`
}

func notification(ctx context.Context, w *models.Workflow, to models.State, action models.Action, d *models.Decision, now time.Time) (outbox.Entry, error) {
	event := transitionedEvent{
		WorkflowID: w.ID.String(),
		Kind:       string(w.Kind),
		TenantID:   w.TenantID.String(),
		From:       models.StateString(w.State),
		To:         models.StateString(to),
		Action:     string(action.Name()),
		RequestID:  requestcontext.RequestID(ctx),
		At:         now.Format(time.RFC3339Nano),
	}
	if d != nil {
		event.Decision = string(d.Status)
		event.ManualReview = d.ManualReview
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return outbox.Entry{}, fmt.Errorf("marshal transition event: %w", err)
	}
	return outbox.Entry{
		ID:            uuid.New(),
		AggregateType: "workflow",
		AggregateID:   w.ID.String(),
		EventType:     notificationEvent,
		Payload:       payload,
		CreatedAt:     now,
	}, nil
}
