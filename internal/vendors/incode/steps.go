package incode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"onboarding/internal/vault"
	"onboarding/internal/vendors"
	"onboarding/internal/vendors/incode/models"
	"onboarding/internal/verification"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
)

// StepContext carries what a step's Init produced into its Transition.
type StepContext struct {
	// Record is the audit pair of a fresh vendor call, nil when a durable result was reused.
	Record   *verification.Record
	Response []byte
	Reused   bool

	identity *vault.IdentityData
}

// Step is one state of the session machine.
type Step interface {
	State() models.State
	// Init performs the step's vendor call outside any transaction, or reuses a durable
	// result for the same input. A nil StepContext means the step is waiting for input.
	Init(ctx context.Context, session *models.Session) (*StepContext, error)
	// Transition runs inside the session's transaction with the row locked. It persists the
	// call's audit record and returns the next state or a recoverable failure.
	Transition(ctx context.Context, tx TxStore, session *models.Session, sc *StepContext) (models.State, *models.FailureReason, error)
}

func decode[R any](sc *StepContext) (*R, error) {
	var out R
	if err := json.Unmarshal(sc.Response, &out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDataIntegrity, "decode incode response")
	}
	return &out, nil
}

func persistRecord(ctx context.Context, tx TxStore, sc *StepContext) error {
	if sc.Record == nil {
		return nil
	}
	return tx.AppendVerification(ctx, *sc.Record)
}

// call issues one guarded vendor call, reusing a durable successful result for the same
// owner, API, and input key when one exists.
func call[R any](ctx context.Context, d *deps, session *models.Session, api vendors.API, inputKey string, fn func(context.Context) (*R, error)) (*StepContext, error) {
	lookup := verification.Lookup{Owner: verification.SessionOwner(session.ID), API: api, InputKey: inputKey}
	raw, ok, err := d.recorder.Reusable(ctx, lookup)
	if err != nil {
		return nil, err
	}
	if ok {
		return &StepContext{Response: raw, Reused: true}, nil
	}

	resp, callErr := vendors.Call(ctx, d.guard, api, fn)
	var payload []byte
	if callErr == nil {
		if payload, err = json.Marshal(resp); err != nil {
			return nil, fmt.Errorf("encode %s response: %w", api, err)
		}
	}
	rec, err := d.recorder.Build(ctx, verification.Request{
		Vendor:     vendors.Incode,
		API:        api,
		Owner:      lookup.Owner,
		WorkflowID: session.WorkflowID,
		InputKey:   inputKey,
	}, payload, callErr)
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		// No transition follows a hard failure, so the audit pair is written on its own.
		if saveErr := d.recorder.Save(ctx, rec); saveErr != nil && d.logger != nil {
			d.logger.ErrorContext(ctx, "failed to record incode call", "api", api, "error", saveErr)
		}
		return nil, dErrors.Wrap(callErr, dErrors.CodeVendor, fmt.Sprintf("incode %s failed", api))
	}
	return &StepContext{Record: &rec, Response: payload}, nil
}

type startStep struct{ d *deps }

func (startStep) State() models.State { return models.StateStartOnboarding }

func (s startStep) Init(ctx context.Context, session *models.Session) (*StepContext, error) {
	return call(ctx, s.d, session, vendors.IncodeStartOnboarding, "", s.d.client.StartOnboarding)
}

func (startStep) Transition(ctx context.Context, tx TxStore, session *models.Session, sc *StepContext) (models.State, *models.FailureReason, error) {
	if err := persistRecord(ctx, tx, sc); err != nil {
		return "", nil, err
	}
	resp, err := decode[models.StartOnboardingResponse](sc)
	if err != nil {
		return "", nil, err
	}
	session.Credentials = models.Credentials{Token: resp.Token, InterviewID: resp.InterviewID}
	return models.StateAddConsent, nil, nil
}

type consentStep struct{ d *deps }

func (consentStep) State() models.State { return models.StateAddConsent }

func (s consentStep) Init(ctx context.Context, session *models.Session) (*StepContext, error) {
	return call(ctx, s.d, session, vendors.IncodeAddConsent, "", func(ctx context.Context) (*models.AddConsentResponse, error) {
		return s.d.client.AddConsent(ctx, session.Credentials)
	})
}

func (consentStep) Transition(ctx context.Context, tx TxStore, _ *models.Session, sc *StepContext) (models.State, *models.FailureReason, error) {
	return models.StateAddFront, nil, persistRecord(ctx, tx, sc)
}

type sideStep struct {
	d    *deps
	side models.Side
}

func (s sideStep) State() models.State {
	if s.side == models.SideBack {
		return models.StateAddBack
	}
	return models.StateAddFront
}

func (s sideStep) api() vendors.API {
	if s.side == models.SideBack {
		return vendors.IncodeAddBack
	}
	return vendors.IncodeAddFront
}

func (s sideStep) Init(ctx context.Context, session *models.Session) (*StepContext, error) {
	upload, err := s.d.store.LatestUpload(ctx, session.ID, s.side)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s upload: %w", s.side, err)
	}

	sc, err := call(ctx, s.d, session, s.api(), upload.ID.String(), func(ctx context.Context) (*models.AddSideResponse, error) {
		image, err := s.d.vault.Image(ctx, upload.ImageRef)
		if err != nil {
			return nil, vendors.NewError(vendors.ErrorInternal, vendors.Incode, "load upload image", err)
		}
		return s.d.client.AddSide(ctx, session.Credentials, s.side, image)
	})
	if err != nil {
		return nil, err
	}
	if sc.Reused {
		// This upload was already rejected; only a new upload can move the step.
		resp, err := decode[models.AddSideResponse](sc)
		if err != nil {
			return nil, err
		}
		if resp.FailureReason() != nil {
			return nil, nil
		}
	}
	return sc, nil
}

func (s sideStep) Transition(ctx context.Context, tx TxStore, session *models.Session, sc *StepContext) (models.State, *models.FailureReason, error) {
	if err := persistRecord(ctx, tx, sc); err != nil {
		return "", nil, err
	}
	resp, err := decode[models.AddSideResponse](sc)
	if err != nil {
		return "", nil, err
	}
	if reason := resp.FailureReason(); reason != nil {
		return session.State, reason, nil
	}
	if s.side == models.SideFront && session.DocumentType.RequiresBack() {
		return models.StateAddBack, nil, nil
	}
	return models.StateProcessID, nil, nil
}

type processStep struct{ d *deps }

func (processStep) State() models.State { return models.StateProcessID }

func (s processStep) Init(ctx context.Context, session *models.Session) (*StepContext, error) {
	return call(ctx, s.d, session, vendors.IncodeProcessID, "", func(ctx context.Context) (*models.ProcessIDResponse, error) {
		return s.d.client.ProcessID(ctx, session.Credentials)
	})
}

func (processStep) Transition(ctx context.Context, tx TxStore, _ *models.Session, sc *StepContext) (models.State, *models.FailureReason, error) {
	return models.StateFetchScores, nil, persistRecord(ctx, tx, sc)
}

type scoresStep struct{ d *deps }

func (scoresStep) State() models.State { return models.StateFetchScores }

func (s scoresStep) Init(ctx context.Context, session *models.Session) (*StepContext, error) {
	return call(ctx, s.d, session, vendors.IncodeFetchScores, "", func(ctx context.Context) (*models.FetchScoresResponse, error) {
		return s.d.client.FetchScores(ctx, session.Credentials)
	})
}

func (scoresStep) Transition(ctx context.Context, tx TxStore, session *models.Session, sc *StepContext) (models.State, *models.FailureReason, error) {
	if err := persistRecord(ctx, tx, sc); err != nil {
		return "", nil, err
	}
	resp, err := decode[models.FetchScoresResponse](sc)
	if err != nil {
		return "", nil, err
	}
	session.Scores = &models.Scores{
		IDScore:       resp.IDScore,
		LivenessScore: resp.LivenessScore,
		FaceMatch:     resp.FaceMatch,
		Overall:       resp.Overall,
		Flags:         resp.Flags,
	}
	return models.StateFetchOCR, nil, nil
}

type ocrStep struct{ d *deps }

func (ocrStep) State() models.State { return models.StateFetchOCR }

func (s ocrStep) Init(ctx context.Context, session *models.Session) (*StepContext, error) {
	identity, err := s.d.vault.Identity(ctx, session.ScopedVaultID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("load identity for ocr comparison: %w", err)
	}
	sc, err := call(ctx, s.d, session, vendors.IncodeFetchOCR, "", func(ctx context.Context) (*models.FetchOCRResponse, error) {
		return s.d.client.FetchOCR(ctx, session.Credentials)
	})
	if err != nil {
		return nil, err
	}
	sc.identity = identity
	return sc, nil
}

func (ocrStep) Transition(ctx context.Context, tx TxStore, session *models.Session, sc *StepContext) (models.State, *models.FailureReason, error) {
	if err := persistRecord(ctx, tx, sc); err != nil {
		return "", nil, err
	}
	resp, err := decode[models.FetchOCRResponse](sc)
	if err != nil {
		return "", nil, err
	}
	session.Signals = deriveSignals(session.Scores, *resp, sc.identity)
	return models.StateComplete, nil, nil
}
