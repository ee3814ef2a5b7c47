package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"onboarding/internal/platform/config"
)

func TestSetup(t *testing.T) {
	t.Run("disabled leaves the no-op provider", func(t *testing.T) {
		var buf bytes.Buffer
		shutdown, err := Setup(context.Background(), config.TracingConfig{}, &buf)
		require.NoError(t, err)

		_, span := otel.Tracer("test").Start(context.Background(), "noop")
		span.End()
		require.NoError(t, shutdown(context.Background()))
		assert.Zero(t, buf.Len())
	})

	t.Run("enabled exports spans on shutdown", func(t *testing.T) {
		var buf bytes.Buffer
		shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true, ServiceName: "onboarding-test"}, &buf)
		require.NoError(t, err)

		_, span := otel.Tracer("test").Start(context.Background(), "workflow.commit")
		span.End()
		require.NoError(t, shutdown(context.Background()))
		assert.Contains(t, buf.String(), "workflow.commit")
		assert.Contains(t, buf.String(), "onboarding-test")
	})
}
