package vendors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/pkg/platform/circuit"
)

func TestCall(t *testing.T) {
	ctx := context.Background()
	ok := func(context.Context) (string, error) { return "matched", nil }
	down := func(context.Context) (string, error) { return "", errors.New("connection reset") }

	t.Run("nil guard calls straight through", func(t *testing.T) {
		out, err := Call(ctx, nil, IdologyExpectID, ok)
		require.NoError(t, err)
		assert.Equal(t, "matched", out)
	})

	t.Run("plain errors become retryable outages", func(t *testing.T) {
		g := NewGuard(Idology)
		_, err := Call(ctx, g, IdologyExpectID, down)
		require.Error(t, err)
		assert.Equal(t, ErrorOutage, CategoryOf(err))
		assert.True(t, IsRetryable(err))
		assert.False(t, ReachedVendor(err))
	})

	t.Run("deadline becomes a timeout", func(t *testing.T) {
		g := NewGuard(Experian, WithTimeout(time.Millisecond))
		_, err := Call(ctx, g, ExperianPreciseID, func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		assert.Equal(t, ErrorTimeout, CategoryOf(err))
	})

	t.Run("vendor answers are not counted against the breaker", func(t *testing.T) {
		breaker := circuit.New("middesk", circuit.WithFailureThreshold(1))
		g := NewGuard(Middesk, WithBreaker(breaker))
		_, err := Call(ctx, g, MiddeskCreateOrder, func(context.Context) (string, error) {
			return "", NewError(ErrorBadData, Middesk, "unparseable TIN", nil)
		})
		assert.True(t, ReachedVendor(err))
		assert.False(t, breaker.IsOpen())
	})

	t.Run("open breaker rejects without calling", func(t *testing.T) {
		breaker := circuit.New("lexis", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
		g := NewGuard(Lexis, WithBreaker(breaker))
		_, err := Call(ctx, g, LexisBusinessID, down)
		require.Error(t, err)
		require.True(t, breaker.IsOpen())

		called := false
		_, err = Call(ctx, g, LexisBusinessID, func(context.Context) (string, error) {
			called = true
			return "", nil
		})
		assert.False(t, called)
		assert.Equal(t, ErrorCircuitOpen, CategoryOf(err))
	})

	t.Run("cancelled context fails the rate limiter wait", func(t *testing.T) {
		g := NewGuard(Incode, WithRateLimit(0.001, 1))
		_, err := Call(ctx, g, IncodeAddConsent, ok)
		require.NoError(t, err, "burst admits the first call")

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = Call(cancelled, g, IncodeAddConsent, ok)
		assert.Equal(t, ErrorRateLimited, CategoryOf(err))
	})
}

type namedClient struct{ name Name }

func (c namedClient) Name() Name { return c.name }

func TestRegistry(t *testing.T) {
	r := NewRegistry[namedClient]()
	require.NoError(t, r.Register(namedClient{Idology}))
	require.NoError(t, r.Register(namedClient{Experian}))
	assert.Error(t, r.Register(namedClient{Idology}), "duplicate name")

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []namedClient{{Idology}, {Experian}}, r.All(), "registration order")

	got, ok := r.Get(Experian)
	assert.True(t, ok)
	assert.Equal(t, Experian, got.Name())
	_, ok = r.Get(Lexis)
	assert.False(t, ok)
}
