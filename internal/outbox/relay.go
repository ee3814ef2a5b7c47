package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"onboarding/pkg/requestcontext"
)

const (
	defaultRelayInterval = time.Second
	defaultBatchSize     = 100
)

// Relay moves committed entries from the store to the publisher. It runs next to the
// workflow service and is the only component that talks to the broker.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(store Store, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		interval:  defaultRelayInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. Failed batches stay pending and are retried on the
// next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.metrics.incFailure()
				if r.logger != nil {
					r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox: %w", err)
	}
	r.metrics.setBatch(len(entries))
	if len(entries) == 0 {
		return 0, nil
	}
	if err := r.publisher.Publish(ctx, entries); err != nil {
		return 0, fmt.Errorf("publish outbox batch: %w", err)
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := r.store.MarkPublished(ctx, ids, requestcontext.Now(ctx)); err != nil {
		return 0, err
	}
	r.metrics.addPublished(len(entries))
	return len(entries), nil
}
