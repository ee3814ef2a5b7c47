// Package scheduler advances workflows that are parked in a state with a default action.
// Workflows waiting on vendors or on other workflows make progress only through it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"onboarding/internal/workflow/metrics"
	"onboarding/internal/workflow/models"
	"onboarding/internal/workflow/service"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/requestcontext"
)

const (
	defaultInterval    = 5 * time.Second
	defaultBatchSize   = 100
	defaultConcurrency = 8
	defaultLeaseTTL    = 30 * time.Second
	leaseKeyPrefix     = "workflow:"
)

// Runner is the part of the workflow service the scheduler drives.
type Runner interface {
	ListRunnable(ctx context.Context, limit int) ([]*models.Workflow, error)
	RunDefault(ctx context.Context, wid id.WorkflowID) (*service.Result, error)
}

type Scheduler struct {
	runner      Runner
	lease       Lease
	interval    time.Duration
	batchSize   int
	concurrency int
	leaseTTL    time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithLeaseTTL(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.leaseTTL = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func New(runner Runner, lease Lease, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("workflow runner is required")
	}
	if lease == nil {
		return nil, fmt.Errorf("lease is required")
	}
	s := &Scheduler{
		runner:      runner,
		lease:       lease,
		interval:    defaultInterval,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		leaseTTL:    defaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick runs the default action of one batch of runnable workflows and returns how many
// advanced. Failures of single workflows are logged; they are picked up again next tick.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	s.metrics.IncrementSchedulerTick()
	ws, err := s.runner.ListRunnable(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	advanced := make([]bool, len(ws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, w := range ws {
		g.Go(func() error {
			advanced[i] = s.advance(gctx, w.ID)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range advanced {
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *Scheduler) advance(ctx context.Context, wid id.WorkflowID) bool {
	release, ok, err := s.lease.Acquire(ctx, leaseKeyPrefix+wid.String(), s.leaseTTL)
	if err != nil {
		s.warn(ctx, "acquire workflow lease failed", wid, err)
		return false
	}
	if !ok {
		s.metrics.IncrementSchedulerSkipped()
		return false
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.warn(ctx, "release workflow lease failed", wid, err)
		}
	}()

	ctx = requestcontext.WithRequestID(ctx, "scheduler-"+wid.String())
	res, err := s.runner.RunDefault(ctx, wid)
	switch {
	case err == nil && res.Advanced:
		s.metrics.IncrementSchedulerRun("advanced")
		return true
	case err == nil:
		s.metrics.IncrementSchedulerRun("stayed")
	case dErrors.HasCode(err, dErrors.CodeConcurrentStateChange), dErrors.HasCode(err, dErrors.CodeUnexpectedAction):
		// Another actor moved the workflow after it was listed.
		s.metrics.IncrementSchedulerRun("raced")
	default:
		s.metrics.IncrementSchedulerRun("failed")
		s.warn(ctx, "scheduled transition failed", wid, err)
	}
	return false
}

func (s *Scheduler) warn(ctx context.Context, msg string, wid id.WorkflowID, err error) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, msg,
		"workflow_id", wid.String(),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
