//go:build integration

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/pkg/testutil/containers"
)

func TestRedisLease(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	first := NewRedisLease(rc.Client, "test:")
	second := NewRedisLease(rc.Client, "test:")

	release, ok, err := first.Acquire(ctx, "wf", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.Acquire(ctx, "wf", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "another instance holds the lease")

	require.NoError(t, release(ctx))
	releaseSecond, ok, err := second.Acquire(ctx, "wf", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, release(ctx), "releasing twice does not drop the new holder")
	exists, err := rc.Client.Exists(ctx, "test:wf").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
	require.NoError(t, releaseSecond(ctx))

	_, ok, err = first.Acquire(ctx, "short", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		_, ok, err := second.Acquire(ctx, "short", time.Second)
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond, "lease expires with its ttl")
}
