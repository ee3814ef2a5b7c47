package service

import (
	"context"
	"fmt"
	"time"

	"onboarding/internal/decision"
	"onboarding/internal/risk"
	"onboarding/internal/vendors/kyb"
	"onboarding/internal/workflow/models"
	"onboarding/pkg/requestcontext"
)

func (s *Service) kybHandler(state models.KybState, name models.ActionName) handler {
	switch {
	case state == models.KybDataCollection && name == models.ActionAuthorize:
		return s.kybAuthorize
	case state == models.KybVendorCalls && name == models.ActionMakeVendorCalls:
		return s.kybVendorCalls
	case state == models.KybAwaitingBoKyc && name == models.ActionBoKycCompleted:
		return s.kybBoKycCompleted
	case state == models.KybAwaitingAsyncVendors && name == models.ActionAsyncVendorsCompleted:
		return s.kybAsyncVendors
	case state == models.KybDecisioning && name == models.ActionMakeDecision:
		return s.kybDecide
	}
	return nil
}

// kybAuthorize creates one KYC workflow per beneficial owner in the same commit as the
// state change.
func (s *Service) kybAuthorize(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	cfg, ok := w.Config.(models.KybConfig)
	if !ok {
		return nil, configError(w)
	}
	p := &plan{}
	if !cfg.SkipBoKyc {
		business, err := s.vault.Business(ctx, w.ScopedVaultID)
		if err != nil {
			return nil, fmt.Errorf("load business: %w", err)
		}
		for _, bo := range business.BeneficialOwners {
			child, err := models.NewWorkflow(models.KycConfig{}, w.TenantID, bo.ScopedVaultID, w.OnboardingID, requestcontext.Now(ctx))
			if err != nil {
				return nil, err
			}
			parent := w.ID
			child.ParentID = &parent
			p.children = append(p.children, child)
		}
	}
	out := advance(models.KybVendorCalls)
	out.writes = p.apply
	return out, nil
}

func (s *Service) businessRequest(ctx context.Context, w *models.Workflow) (kyb.Request, error) {
	if s.business == nil {
		return kyb.Request{}, fmt.Errorf("business vendors are not configured")
	}
	intent, err := s.store.DecisionIntent(ctx, w.ID, models.IntentKybVendorCalls)
	if err != nil {
		return kyb.Request{}, fmt.Errorf("get decision intent: %w", err)
	}
	business, err := s.vault.Business(ctx, w.ScopedVaultID)
	if err != nil {
		return kyb.Request{}, fmt.Errorf("load business: %w", err)
	}
	return kyb.Request{WorkflowID: w.ID, Intent: intent.ID, Business: *business}, nil
}

// kybVendorCalls places the business orders. Owners that already finished do not hold the
// workflow in AwaitingBoKyc, since their completion notice was rejected earlier.
func (s *Service) kybVendorCalls(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	req, err := s.businessRequest(ctx, w)
	if err != nil {
		return nil, err
	}
	if err := s.business.Submit(ctx, req); err != nil {
		return nil, err
	}
	done, err := s.childrenComplete(ctx, w)
	if err != nil {
		return nil, err
	}
	if done {
		return advance(models.KybAwaitingAsyncVendors), nil
	}
	return advance(models.KybAwaitingBoKyc), nil
}

func (s *Service) kybBoKycCompleted(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	done, err := s.childrenComplete(ctx, w)
	if err != nil {
		return nil, err
	}
	if !done {
		return stay(), nil
	}
	return advance(models.KybAwaitingAsyncVendors), nil
}

func (s *Service) childrenComplete(ctx context.Context, w *models.Workflow) (bool, error) {
	children, err := s.store.ListChildren(ctx, w.ID)
	if err != nil {
		return false, fmt.Errorf("list child workflows: %w", err)
	}
	for _, child := range children {
		if !child.IsComplete() {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) kybAsyncVendors(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	req, err := s.businessRequest(ctx, w)
	if err != nil {
		return nil, err
	}
	outcomes, ready, err := s.business.Poll(ctx, req)
	if err != nil {
		return nil, err
	}
	if !ready {
		return stay(), nil
	}
	p := &plan{}
	for _, o := range outcomes {
		p.signals = append(p.signals, o.Signals...)
	}
	out := advance(models.KybDecisioning)
	out.writes = p.apply
	return out, nil
}

// kybDecide runs the business waterfall with the beneficial owners' decisions folded into
// every vendor's features.
func (s *Service) kybDecide(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	start := time.Now()
	signals, err := s.store.RiskSignals(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("load risk signals: %w", err)
	}
	children, err := s.store.ListChildren(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("list child workflows: %w", err)
	}
	base := decision.KybFeatures{BoKycTotal: len(children)}
	for _, child := range children {
		if !child.IsComplete() {
			base.BoKycIncomplete++
			continue
		}
		d, err := s.LatestDecision(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		if d.Status == models.DecisionPass {
			base.BoKycPassed++
		}
	}

	p := &plan{}
	business := inScope(signals, risk.ScopeBusiness)
	action, err := s.waterfall(w.ID, p, decision.RuleSetKyb, vendorsOf(business, risk.ScopeBusiness), func(vendor string) decision.RuleSetResult {
		features := base
		features.Vendor = vendor
		features.Signals = risk.FromSignals(business, vendor)
		return s.rules.Kyb.Evaluate(features)
	})
	if err != nil {
		return nil, err
	}
	p.decide(w.ID, withoutStepUp(action))
	s.decisionMetrics.ObserveDecideLatency(time.Since(start))
	return p.complete(models.KybComplete), nil
}
