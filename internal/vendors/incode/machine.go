package incode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
	"onboarding/internal/vendors/incode/models"
	"onboarding/internal/vendors/metrics"
	"onboarding/internal/verification"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

const defaultMaxAttempts = 3

type RunStatus string

const (
	RunComplete  RunStatus = "complete"
	RunNotReady  RunStatus = "not_ready"
	RunSuspended RunStatus = "suspended"
	RunTerminal  RunStatus = "terminal"
)

// RunResult reports where a drive stopped. A suspension is an expected outcome, not an error:
// FailureReason tells the caller what the user has to fix.
type RunResult struct {
	Session       *models.Session
	Status        RunStatus
	FailureReason *models.FailureReason
}

type deps struct {
	store    Store
	client   Client
	recorder *verification.Recorder
	vault    vault.Reader
	guard    *vendors.Guard
	logger   *slog.Logger
	metrics  *metrics.Metrics

	maxAttempts int
}

type Option func(*deps)

func WithLogger(logger *slog.Logger) Option {
	return func(d *deps) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) {
		d.metrics = m
	}
}

// WithGuard routes every vendor call through a rate limiter and circuit breaker.
func WithGuard(g *vendors.Guard) Option {
	return func(d *deps) {
		d.guard = g
	}
}

// WithMaxAttempts bounds recoverable failures per step before the session is terminal.
func WithMaxAttempts(n int) Option {
	return func(d *deps) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

func newDeps(store Store, client Client, recorder *verification.Recorder, reader vault.Reader, opts ...Option) *deps {
	d := &deps{
		store:       store,
		client:      client,
		recorder:    recorder,
		vault:       reader,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Machine drives a session forward one step at a time.
type Machine struct {
	d     *deps
	steps map[models.State]Step
}

func NewMachine(store Store, client Client, recorder *verification.Recorder, reader vault.Reader, opts ...Option) *Machine {
	return newMachine(newDeps(store, client, recorder, reader, opts...))
}

func newMachine(d *deps) *Machine {
	m := &Machine{d: d, steps: make(map[models.State]Step)}
	for _, st := range []Step{
		startStep{d: d},
		consentStep{d: d},
		sideStep{d: d, side: models.SideFront},
		sideStep{d: d, side: models.SideBack},
		processStep{d: d},
		scoresStep{d: d},
		ocrStep{d: d},
	} {
		m.steps[st.State()] = st
	}
	return m
}

// Run advances the session until it completes, needs input, or is suspended on a
// recoverable failure. It is safe to call repeatedly: completed steps are never redone.
func (m *Machine) Run(ctx context.Context, sessionID id.SessionID) (*RunResult, error) {
	session, err := m.d.store.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document session not found")
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	for {
		if session.Terminal {
			m.d.metrics.IncrementStepOutcome(string(session.State), string(RunTerminal))
			return &RunResult{Session: session, Status: RunTerminal, FailureReason: session.FailureReason}, nil
		}
		if session.IsComplete() {
			return &RunResult{Session: session, Status: RunComplete}, nil
		}

		step, ok := m.steps[session.State]
		if !ok {
			return nil, dErrors.New(dErrors.CodeDataIntegrity, fmt.Sprintf("no step for session state %q", session.State))
		}

		sc, err := step.Init(ctx, session)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			if session.FailureReason != nil {
				m.d.metrics.IncrementStepOutcome(string(session.State), string(RunSuspended))
				return &RunResult{Session: session, Status: RunSuspended, FailureReason: session.FailureReason}, nil
			}
			m.d.metrics.IncrementStepOutcome(string(session.State), string(RunNotReady))
			return &RunResult{Session: session, Status: RunNotReady}, nil
		}

		updated, failure, err := m.transition(ctx, session, step, sc)
		if err != nil {
			return nil, err
		}
		session = updated
		if failure != nil && !session.Terminal {
			m.d.metrics.IncrementStepOutcome(string(session.State), string(RunSuspended))
			return &RunResult{Session: session, Status: RunSuspended, FailureReason: failure}, nil
		}
		if failure == nil {
			m.d.metrics.IncrementStepOutcome(string(step.State()), "advanced")
		}
	}
}

func (m *Machine) transition(ctx context.Context, session *models.Session, step Step, sc *StepContext) (*models.Session, *models.FailureReason, error) {
	var (
		updated *models.Session
		failure *models.FailureReason
	)
	err := m.d.store.RunInTx(ctx, func(tx TxStore) error {
		locked, err := tx.LockSession(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if locked.State != session.State || locked.Terminal {
			return dErrors.New(dErrors.CodeConcurrentStateChange,
				fmt.Sprintf("session moved from %s to %s", session.State, locked.State))
		}

		next, reason, err := step.Transition(ctx, tx, locked, sc)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if reason != nil {
			locked.FailureReason = reason
			locked.FailedAttempts++
			if locked.FailedAttempts >= m.d.maxAttempts {
				locked.Terminal = true
				locked.Signals = append(locked.Signals, risk.DocumentUploadAttemptsExceed)
			}
		} else {
			if next.Index() <= locked.State.Index() {
				return dErrors.New(dErrors.CodeAssertion,
					fmt.Sprintf("step %s tried to move backwards to %s", locked.State, next))
			}
			locked.State = next
			locked.FailureReason = nil
			locked.FailedAttempts = 0
			if next == models.StateComplete {
				locked.CompletedAt = &now
			}
		}
		locked.UpdatedAt = now
		if err := tx.UpdateSession(ctx, locked); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		updated, failure = locked, reason
		return nil
	})
	if err != nil {
		m.saveAbandoned(ctx, step, sc)
		return nil, nil, err
	}
	return updated, failure, nil
}

// saveAbandoned writes the audit pair of a call whose transaction rolled back. The vendor
// was still reached, and the saved result is reused on the next drive.
func (m *Machine) saveAbandoned(ctx context.Context, step Step, sc *StepContext) {
	if sc.Record == nil {
		return
	}
	if err := m.d.recorder.Save(ctx, *sc.Record); err != nil && m.d.logger != nil {
		m.d.logger.ErrorContext(ctx, "failed to record incode call",
			"state", string(step.State()),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
