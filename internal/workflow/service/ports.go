package service

import (
	"context"

	"onboarding/internal/vendors/incode"
	incodemodels "onboarding/internal/vendors/incode/models"
	"onboarding/internal/vendors/kyb"
	"onboarding/internal/vendors/kyc"
	id "onboarding/pkg/domain"
)

// IdentityVendors runs the KYC vendor round for a decision intent.
type IdentityVendors interface {
	Run(ctx context.Context, req kyc.Request) ([]kyc.Outcome, error)
}

// BusinessVendors places business orders and polls their reports.
type BusinessVendors interface {
	Submit(ctx context.Context, req kyb.Request) error
	Poll(ctx context.Context, req kyb.Request) ([]kyb.Outcome, bool, error)
}

// DocumentSessions drives document verification sessions.
type DocumentSessions interface {
	StartSession(ctx context.Context, req incode.StartRequest) (*incodemodels.Session, error)
	Run(ctx context.Context, sessionID id.SessionID) (*incode.RunResult, error)
	SessionForWorkflow(ctx context.Context, wid id.WorkflowID) (*incodemodels.Session, error)
	LatestOutcome(ctx context.Context, sv id.ScopedVaultID) (*incode.Outcome, error)
}
