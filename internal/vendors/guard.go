package vendors

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"onboarding/internal/vendors/metrics"
	"onboarding/pkg/platform/circuit"
)

var tracer = otel.Tracer("onboarding/vendor")

// Guard wraps every outbound call to one vendor with a rate limiter, a circuit breaker,
// a timeout, a span, and latency metrics.
type Guard struct {
	vendor  Name
	limiter *rate.Limiter
	breaker *circuit.Breaker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type GuardOption func(*Guard)

// WithRateLimit caps outbound calls at r per second with the given burst.
func WithRateLimit(r float64, burst int) GuardOption {
	return func(g *Guard) {
		if r > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(r), max(burst, 1))
		}
	}
}

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guard) {
		g.breaker = b
	}
}

func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithGuardMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = l
	}
}

func NewGuard(vendor Name, opts ...GuardOption) *Guard {
	g := &Guard{
		vendor:  vendor,
		timeout: 10 * time.Second,
		breaker: circuit.New(string(vendor)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Call runs fn under the guard. Errors that are not already *Error are normalized, so
// callers can rely on CategoryOf and ReachedVendor.
func Call[R any](ctx context.Context, g *Guard, api API, fn func(context.Context) (R, error)) (R, error) {
	var zero R
	if g == nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "vendor.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("vendor", string(g.vendor)),
		attribute.String("vendor.api", string(api)),
	)

	if !g.breaker.Allow() {
		g.metrics.IncrementError(string(g.vendor), string(api), string(ErrorCircuitOpen))
		err := NewError(ErrorCircuitOpen, g.vendor, "circuit open", nil)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.metrics.IncrementError(string(g.vendor), string(api), string(ErrorRateLimited))
			return zero, NewError(ErrorRateLimited, g.vendor, "rate limiter wait", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := fn(callCtx)
	g.metrics.ObserveLatency(string(g.vendor), string(api), time.Since(start))

	if err != nil {
		err = g.normalize(err)
		category := CategoryOf(err)
		g.metrics.IncrementError(string(g.vendor), string(api), string(category))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))
		// Only transport-level trouble says anything about vendor health.
		if IsRetryable(err) {
			if _, change := g.breaker.RecordFailure(); change.Opened {
				g.metrics.IncrementBreakerOpened(string(g.vendor))
				if g.logger != nil {
					g.logger.WarnContext(ctx, "vendor circuit opened", "vendor", g.vendor)
				}
			}
		}
		return zero, err
	}

	if _, change := g.breaker.RecordSuccess(); change.Closed && g.logger != nil {
		g.logger.InfoContext(ctx, "vendor circuit closed", "vendor", g.vendor)
	}
	return out, nil
}

func (g *Guard) normalize(err error) error {
	var ve *Error
	if errors.As(err, &ve) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTimeout, g.vendor, "call timed out", err)
	}
	return NewError(ErrorOutage, g.vendor, "call failed", err)
}
