//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/platform/config"
	"onboarding/pkg/testutil/containers"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	client, err := New(ctx, config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client, "redis is optional")

	rc := containers.NewRedisContainer(t)
	client, err = New(ctx, config.RedisConfig{URL: rc.URL, PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Health(ctx))
}
