package testutil

import (
	"context"
	"time"

	"onboarding/pkg/requestcontext"
)

// Context returns a context carrying a request id and a pinned clock, the way the scheduler
// and ops router prepare one before calling into services.
func Context(requestID string, now time.Time) context.Context {
	ctx := requestcontext.WithRequestID(context.Background(), requestID)
	return requestcontext.WithTime(ctx, now)
}
