package incode

import (
	"bytes"
	"context"

	"github.com/google/uuid"

	"onboarding/internal/vendors/incode/models"
)

// Sandbox image markers. Uploading an image whose bytes contain one of these makes the
// sandbox reject it with the matching vendor failure.
var sandboxRejections = map[string]string{
	"#blurry": "BLURRY",
	"#glare":  "GLARE",
	"#wrong":  "WRONG_SIDE",
}

// SandboxClient answers deterministically without network access. It backs local
// development and the end-to-end tests.
type SandboxClient struct {
	// Flags returned by FetchScores, e.g. "expired".
	Flags []string
	OCR   models.FetchOCRResponse
}

func NewSandboxClient() *SandboxClient {
	return &SandboxClient{}
}

func (c *SandboxClient) StartOnboarding(context.Context) (*models.StartOnboardingResponse, error) {
	return &models.StartOnboardingResponse{
		Token:       "sandbox-" + uuid.NewString(),
		InterviewID: uuid.NewString(),
	}, nil
}

func (c *SandboxClient) AddConsent(context.Context, models.Credentials) (*models.AddConsentResponse, error) {
	return &models.AddConsentResponse{Success: true}, nil
}

func (c *SandboxClient) AddSide(_ context.Context, _ models.Credentials, _ models.Side, image []byte) (*models.AddSideResponse, error) {
	for marker, failure := range sandboxRejections {
		if bytes.Contains(image, []byte(marker)) {
			return &models.AddSideResponse{Classification: true, Failure: failure}, nil
		}
	}
	return &models.AddSideResponse{Classification: true, Sharpness: 100}, nil
}

func (c *SandboxClient) ProcessID(context.Context, models.Credentials) (*models.ProcessIDResponse, error) {
	return &models.ProcessIDResponse{Success: true}, nil
}

func (c *SandboxClient) FetchScores(context.Context, models.Credentials) (*models.FetchScoresResponse, error) {
	overall := "OK"
	if len(c.Flags) > 0 {
		overall = "WARN"
	}
	return &models.FetchScoresResponse{
		IDScore:       0.98,
		LivenessScore: 0.97,
		FaceMatch:     0.95,
		Overall:       overall,
		Flags:         c.Flags,
	}, nil
}

func (c *SandboxClient) FetchOCR(context.Context, models.Credentials) (*models.FetchOCRResponse, error) {
	ocr := c.OCR
	return &ocr, nil
}
