package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"onboarding/internal/vendors"
	"onboarding/internal/vendors/metrics"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

// Store persists verification records. Append must write the request and its result
// together; implementations join the caller's transaction when one is on the context.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// LatestSuccessful returns sentinel.ErrNotFound when no successful record matches.
	LatestSuccessful(ctx context.Context, lookup Lookup) (*Record, error)
	ListByOwner(ctx context.Context, owner Owner) ([]Record, error)
}

// Recorder seals vendor responses into records and answers idempotency lookups.
type Recorder struct {
	store   Store
	sealer  *Sealer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func NewRecorder(store Store, sealer *Sealer, opts ...Option) *Recorder {
	r := &Recorder{store: store, sealer: sealer}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build turns a finished vendor call into a record without persisting it. Callers that
// must write the record inside a transition transaction use Build and append it there.
func (r *Recorder) Build(ctx context.Context, req Request, response []byte, callErr error) (Record, error) {
	now := requestcontext.Now(ctx)
	if req.ID == (id.VerificationRequestID{}) {
		req.ID = id.NewVerificationRequestID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	rec := Record{Request: req}

	if callErr != nil && !vendors.ReachedVendor(callErr) {
		return rec, nil
	}
	payload := response
	if callErr != nil && len(payload) == 0 {
		payload = []byte(callErr.Error())
	}
	sealed, err := r.sealer.Seal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("seal %s response: %w", req.API, err)
	}
	rec.Result = &Result{
		ID:        uuid.New(),
		RequestID: req.ID,
		Response:  sealed,
		IsError:   callErr != nil,
		CreatedAt: now,
	}
	return rec, nil
}

// Save persists a record built by Build.
func (r *Recorder) Save(ctx context.Context, rec Record) error {
	if err := r.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append verification record: %w", err)
	}
	return nil
}

// Record builds and persists in one step, for calls whose audit trail is not tied to a
// state transition.
func (r *Recorder) Record(ctx context.Context, req Request, response []byte, callErr error) error {
	rec, err := r.Build(ctx, req, response, callErr)
	if err != nil {
		return err
	}
	return r.Save(ctx, rec)
}

// Reusable returns the opened response of the latest successful call matching lookup.
func (r *Recorder) Reusable(ctx context.Context, lookup Lookup) ([]byte, bool, error) {
	rec, err := r.store.LatestSuccessful(ctx, lookup)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find verification result: %w", err)
	}
	raw, err := r.Open(*rec)
	if err != nil {
		return nil, false, err
	}
	r.metrics.IncrementReused(string(rec.Request.Vendor), string(lookup.API))
	return raw, true, nil
}

// Open decrypts a record's response.
func (r *Recorder) Open(rec Record) ([]byte, error) {
	if rec.Result == nil {
		return nil, nil
	}
	raw, err := r.sealer.Open(rec.Result.Response)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("verification result cannot be opened",
				"request_id", rec.Request.ID.String(),
				"api", rec.Request.API,
			)
		}
		return nil, fmt.Errorf("open %s response: %w", rec.Request.API, err)
	}
	return raw, nil
}
