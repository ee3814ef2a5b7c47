// Package service drives workflows through their state graphs.
//
// Every transition runs in three phases. The async phase executes the current state's
// handler without holding any lock; it may call vendors and evaluate rules, and must be
// safe to repeat. The commit phase locks the workflow row, checks that the state is still
// the one the handler ran against, and writes the next state together with everything
// that must land atomically with it. Post-commit hooks are best effort.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/decision"
	decisionmetrics "onboarding/internal/decision/metrics"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
	"onboarding/internal/workflow/metrics"
	"onboarding/internal/workflow/models"
	"onboarding/internal/workflow/store"
	"onboarding/pkg/attrs"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

var tracer = otel.Tracer("onboarding/workflow")

const (
	notificationEvent = "workflow.transitioned"
	parentRetries     = 3
	documentVendor    = string(vendors.Incode)

	defaultMinRetry = 5 * time.Second
	defaultMaxRetry = 5 * time.Minute
)

// Service dispatches actions to workflows.
type Service struct {
	store     store.Store
	vault     vault.Reader
	rules     *decision.RuleBook
	identity  IdentityVendors
	business  BusinessVendors
	documents DocumentSessions

	minRetry time.Duration
	maxRetry time.Duration

	logger          *slog.Logger
	metrics         *metrics.Metrics
	decisionMetrics *decisionmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithDecisionMetrics(m *decisionmetrics.Metrics) Option {
	return func(s *Service) {
		s.decisionMetrics = m
	}
}

func WithRuleBook(book *decision.RuleBook) Option {
	return func(s *Service) {
		if book != nil {
			s.rules = book
		}
	}
}

func WithIdentityVendors(v IdentityVendors) Option {
	return func(s *Service) {
		s.identity = v
	}
}

func WithBusinessVendors(v BusinessVendors) Option {
	return func(s *Service) {
		s.business = v
	}
}

func WithDocumentSessions(d DocumentSessions) Option {
	return func(s *Service) {
		s.documents = d
	}
}

// WithRetryBackoff bounds how long a workflow that stayed put waits before the scheduler
// runs its default action again. The wait grows with the time spent in the current state.
func WithRetryBackoff(minDelay, maxDelay time.Duration) Option {
	return func(s *Service) {
		if minDelay > 0 {
			s.minRetry = minDelay
		}
		if maxDelay > 0 {
			s.maxRetry = maxDelay
		}
		if s.maxRetry < s.minRetry {
			s.maxRetry = s.minRetry
		}
	}
}

func New(st store.Store, reader vault.Reader, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("workflow store is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("vault reader is required")
	}
	s := &Service{
		store: st,
		vault: reader,
		rules: decision.DefaultRuleBook(),

		minRetry: defaultMinRetry,
		maxRetry: defaultMaxRetry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateRequest starts a workflow for an onboarding.
type CreateRequest struct {
	Config        models.Config
	TenantID      id.TenantID
	ScopedVaultID id.ScopedVaultID
	OnboardingID  id.OnboardingID
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Workflow, error) {
	w, err := models.NewWorkflow(req.Config, req.TenantID, req.ScopedVaultID, req.OnboardingID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid workflow")
	}
	if err := s.store.Create(ctx, w); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create workflow")
	}
	s.logAudit(ctx, "workflow_created",
		"workflow_id", w.ID.String(),
		"kind", string(w.Kind),
		"tenant_id", w.TenantID.String(),
	)
	return w, nil
}

func (s *Service) Get(ctx context.Context, wid id.WorkflowID) (*models.Workflow, error) {
	w, err := s.store.Find(ctx, wid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "workflow not found")
		}
		if dErrors.HasCode(err, dErrors.CodeDataIntegrity) {
			s.logError(ctx, "corrupt workflow row", "workflow_id", wid.String(), "error", err)
			return nil, err
		}
		return nil, fmt.Errorf("find workflow: %w", err)
	}
	return w, nil
}

// Act runs action against the workflow's current state.
func (s *Service) Act(ctx context.Context, wid id.WorkflowID, action models.Action) (*Result, error) {
	t, err := s.prepare(ctx, wid, action)
	if err != nil {
		return nil, err
	}
	return t.commit(ctx)
}

// RunDefault applies the current state's default action. States without one reject the call
// with CodeUnexpectedAction.
func (s *Service) RunDefault(ctx context.Context, wid id.WorkflowID) (*Result, error) {
	w, err := s.Get(ctx, wid)
	if err != nil {
		return nil, err
	}
	action, ok := models.DefaultAction(w.State)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnexpectedAction,
			fmt.Sprintf("state %s has no default action", models.StateString(w.State)))
	}
	return s.Act(ctx, wid, action)
}

// ListRunnable returns workflows parked in a state with a default action whose retry
// time has come, longest waiting first.
func (s *Service) ListRunnable(ctx context.Context, limit int) ([]*models.Workflow, error) {
	ws, err := s.store.ListRunnable(ctx, models.RunnableStates(), requestcontext.Now(ctx), limit)
	if err != nil {
		return nil, fmt.Errorf("list runnable workflows: %w", err)
	}
	return ws, nil
}

func (s *Service) LatestDecision(ctx context.Context, wid id.WorkflowID) (*models.Decision, error) {
	d, err := s.store.LatestDecision(ctx, wid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no decision for workflow")
		}
		return nil, fmt.Errorf("find decision: %w", err)
	}
	return d, nil
}

// logAudit writes an audit line and marks the event on the current span.
func (s *Service) logAudit(ctx context.Context, event string, fields ...any) {
	trace.SpanFromContext(ctx).AddEvent(event, trace.WithAttributes(
		attribute.String("workflow.id", attrs.ExtractString(fields, "workflow_id")),
		attribute.String("workflow.to", attrs.ExtractString(fields, "to")),
	))
	if s.logger == nil {
		return
	}
	args := append(fields, "event", event, "log_type", "audit", "request_id", requestcontext.RequestID(ctx))
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) logError(ctx context.Context, msg string, fields ...any) {
	if s.logger == nil {
		return
	}
	args := append(fields, "request_id", requestcontext.RequestID(ctx))
	s.logger.ErrorContext(ctx, msg, args...)
}
