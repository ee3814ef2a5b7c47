package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/pkg/testutil"
)

func TestOpsRouter(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	testutil.Given(t, "all dependencies reachable", func(t *testing.T) {
		router := NewOpsRouter(map[string]Check{"postgres": healthy, "redis": healthy}, nil)

		testutil.Then(t, "healthz reports ok", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
			require.Equal(t, http.StatusOK, rr.Code)

			body := testutil.DecodeJSON[healthResponse](t, rr)
			assert.Equal(t, "ok", body.Status)
			assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, body.Checks)
		})
	})

	testutil.Given(t, "a dependency is down", func(t *testing.T) {
		router := NewOpsRouter(map[string]Check{"postgres": healthy, "kafka": down}, nil)

		testutil.Then(t, "healthz is unavailable and names the failing check", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
			require.Equal(t, http.StatusServiceUnavailable, rr.Code)

			body := testutil.DecodeJSON[healthResponse](t, rr)
			assert.Equal(t, "degraded", body.Status)
			assert.Equal(t, "connection refused", body.Checks["kafka"])
			assert.Equal(t, "ok", body.Checks["postgres"])
		})
	})

	testutil.When(t, "metrics are scraped", func(t *testing.T) {
		router := NewOpsRouter(nil, nil)
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "go_goroutines")
	})

	testutil.When(t, "writes are attempted on healthz", func(t *testing.T) {
		router := NewOpsRouter(nil, nil)
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/healthz"))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}
