// Package incode drives document verification sessions through the Incode vendor flow:
// consent, front and back images, processing, scores, and OCR.
package incode

import (
	"context"

	"onboarding/internal/vendors/incode/models"
)

// Client is the Incode API surface the session machine depends on.
type Client interface {
	StartOnboarding(ctx context.Context) (*models.StartOnboardingResponse, error)
	AddConsent(ctx context.Context, creds models.Credentials) (*models.AddConsentResponse, error)
	AddSide(ctx context.Context, creds models.Credentials, side models.Side, image []byte) (*models.AddSideResponse, error)
	ProcessID(ctx context.Context, creds models.Credentials) (*models.ProcessIDResponse, error)
	FetchScores(ctx context.Context, creds models.Credentials) (*models.FetchScoresResponse, error)
	FetchOCR(ctx context.Context, creds models.Credentials) (*models.FetchOCRResponse, error)
}
