package incode

import (
	"context"
	"errors"
	"fmt"

	"onboarding/internal/decision"
	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors/incode/models"
	"onboarding/internal/verification"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

// StartRequest opens a document session for a workflow.
type StartRequest struct {
	WorkflowID    id.WorkflowID
	TenantID      id.TenantID
	ScopedVaultID id.ScopedVaultID
	DocumentType  models.DocumentType
}

// Outcome is the document evidence a finished session contributes to decisioning.
type Outcome struct {
	SessionID id.SessionID
	Complete  bool
	Terminal  bool
	Features  decision.DocumentFeatures
}

// Service owns document sessions: creation, uploads, and driving them through the machine.
type Service struct {
	d       *deps
	machine *Machine
}

func New(store Store, client Client, recorder *verification.Recorder, reader vault.Reader, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("incode client is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("verification recorder is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("vault reader is required")
	}
	d := newDeps(store, client, recorder, reader, opts...)
	return &Service{d: d, machine: newMachine(d)}, nil
}

// StartSession returns the workflow's session, creating it on first use. The vendor is not
// contacted here; the first Run obtains the session's credentials.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (*models.Session, error) {
	existing, err := s.d.store.FindSessionByWorkflow(ctx, req.WorkflowID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("find session: %w", err)
	}

	now := requestcontext.Now(ctx)
	session := &models.Session{
		ID:            id.NewSessionID(),
		WorkflowID:    req.WorkflowID,
		TenantID:      req.TenantID,
		ScopedVaultID: req.ScopedVaultID,
		DocumentType:  req.DocumentType,
		State:         models.StateStartOnboarding,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.d.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent start; use the winner's session.
			return s.d.store.FindSessionByWorkflow(ctx, req.WorkflowID)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.d.logInfo(ctx, "document_session_started",
		"session_id", session.ID.String(),
		"workflow_id", req.WorkflowID.String(),
		"document_type", req.DocumentType,
	)
	return session, nil
}

// AddUpload registers a new image for one side. The next Run retries the side's step with it.
func (s *Service) AddUpload(ctx context.Context, sessionID id.SessionID, side models.Side, imageRef string) (*models.Upload, error) {
	if imageRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "image reference is required")
	}
	if side != models.SideFront && side != models.SideBack {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown side %q", side))
	}
	upload := &models.Upload{
		ID:        id.NewDocumentID(),
		SessionID: sessionID,
		Side:      side,
		ImageRef:  imageRef,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.d.store.AddUpload(ctx, upload); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document session not found")
		}
		return nil, fmt.Errorf("add upload: %w", err)
	}
	return upload, nil
}

// Run drives the session; see Machine.Run.
func (s *Service) Run(ctx context.Context, sessionID id.SessionID) (*RunResult, error) {
	return s.machine.Run(ctx, sessionID)
}

func (s *Service) SessionForWorkflow(ctx context.Context, workflowID id.WorkflowID) (*models.Session, error) {
	session, err := s.d.store.FindSessionByWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document session not found")
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

// LatestOutcome returns the newest finished session's evidence for the vault.
func (s *Service) LatestOutcome(ctx context.Context, sv id.ScopedVaultID) (*Outcome, error) {
	session, err := s.d.store.LatestFinishedSession(ctx, sv)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no finished document session")
		}
		return nil, fmt.Errorf("find finished session: %w", err)
	}
	return OutcomeOf(session), nil
}

// OutcomeOf projects a session onto document features.
func OutcomeOf(session *models.Session) *Outcome {
	features := decision.DocumentFeatures{
		Signals:      risk.NewSet(session.Signals...),
		DocumentType: string(session.DocumentType),
	}
	if session.Scores != nil {
		features.IDScore = session.Scores.IDScore
		features.LivenessScore = session.Scores.LivenessScore
		features.FaceMatch = session.Scores.FaceMatch
	}
	return &Outcome{
		SessionID: session.ID,
		Complete:  session.IsComplete(),
		Terminal:  session.Terminal,
		Features:  features,
	}
}

func (d *deps) logInfo(ctx context.Context, event string, attrs ...any) {
	if d.logger == nil {
		return
	}
	args := append(attrs, "event", event, "request_id", requestcontext.RequestID(ctx))
	d.logger.InfoContext(ctx, event, args...)
}
