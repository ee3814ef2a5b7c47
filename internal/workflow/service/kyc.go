package service

import (
	"context"
	"fmt"
	"time"

	"onboarding/internal/decision"
	"onboarding/internal/risk"
	"onboarding/internal/vendors/kyc"
	"onboarding/internal/workflow/models"
)

func (s *Service) kycHandler(state models.KycState, name models.ActionName) handler {
	switch {
	case state == models.KycDataCollection && name == models.ActionAuthorize:
		return s.kycAuthorize
	case state == models.KycVendorCalls && name == models.ActionMakeVendorCalls:
		return s.kycVendorCalls
	case state == models.KycDecisioning && name == models.ActionMakeDecision:
		return s.kycDecide
	case state == models.KycDocCollection && name == models.ActionDocCollected:
		return s.kycDocCollected
	}
	return nil
}

func kycConfig(w *models.Workflow) (models.KycConfig, error) {
	cfg, ok := w.Config.(models.KycConfig)
	if !ok {
		return models.KycConfig{}, configError(w)
	}
	return cfg, nil
}

// kycAuthorize starts vendor calls. A skip_kyc workflow instead decides on the vault's
// finished document session and waits here until there is one.
func (s *Service) kycAuthorize(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	cfg, err := kycConfig(w)
	if err != nil {
		return nil, err
	}
	if !cfg.SkipKyc {
		return advance(models.KycVendorCalls), nil
	}

	doc, ok, err := s.vaultDocument(ctx, w)
	if err != nil {
		return nil, err
	}
	if !ok {
		return stay(), nil
	}
	p := &plan{signals: documentSignals(doc)}
	result := s.rules.Document.Evaluate(doc.Features)
	s.observeRuleSet(result)
	p.record(w.ID, documentVendor, true, result)
	p.decide(w.ID, withoutStepUp(result.ActionTriggered))
	return s.completeKyc(w, p), nil
}

func (s *Service) kycVendorCalls(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	if s.identity == nil {
		return nil, fmt.Errorf("identity vendors are not configured")
	}
	intent, err := s.store.DecisionIntent(ctx, w.ID, models.IntentKycVendorCalls)
	if err != nil {
		return nil, fmt.Errorf("get decision intent: %w", err)
	}
	identity, err := s.vault.Identity(ctx, w.ScopedVaultID)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	outcomes, err := s.identity.Run(ctx, kyc.Request{WorkflowID: w.ID, Intent: intent.ID, Identity: *identity})
	if err != nil {
		return nil, err
	}
	p := &plan{}
	for _, o := range outcomes {
		p.signals = append(p.signals, o.Signals...)
	}
	out := advance(models.KycDecisioning)
	out.writes = p.apply
	return out, nil
}

// kycDecide runs the identity waterfall. Once a document step-up has been collected the
// document rules decide whether the step-up was satisfied; a second step-up goes to review.
func (s *Service) kycDecide(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	cfg, err := kycConfig(w)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	signals, err := s.store.RiskSignals(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("load risk signals: %w", err)
	}

	p := &plan{}
	identity := inScope(signals, risk.ScopeIdentity)
	action, err := s.waterfall(w.ID, p, decision.RuleSetKyc, vendorsOf(identity, risk.ScopeIdentity), func(vendor string) decision.RuleSetResult {
		return s.rules.Kyc.Evaluate(decision.KycFeatures{Vendor: vendor, Signals: risk.FromSignals(identity, vendor)})
	})
	if err != nil {
		return nil, err
	}

	if docSignals := inScope(signals, risk.ScopeDocument); len(docSignals) > 0 {
		features := decision.DocumentFeatures{Signals: risk.FromSignals(docSignals, "")}
		doc, ok, err := s.workflowDocument(ctx, w)
		if err != nil {
			return nil, err
		}
		if ok {
			features = doc.Features
		}
		result := s.rules.Document.Evaluate(features)
		s.observeRuleSet(result)
		p.record(w.ID, documentVendor, true, result)
		if action != nil && action.IsStepUp() {
			action = nil
		}
		action = withoutStepUp(maxAction(action, result.ActionTriggered))
	}

	p.decide(w.ID, action)
	s.decisionMetrics.ObserveDecideLatency(time.Since(start))
	if action != nil && action.IsStepUp() {
		out := p.complete(models.KycDocCollection)
		out.hooks = append(out.hooks, s.startDocumentHook(w, cfg.DocumentType))
		return out, nil
	}
	return s.completeKyc(w, p), nil
}

// kycDocCollected drives the step-up session, then brings its evidence back to decisioning.
func (s *Service) kycDocCollected(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	cfg, err := kycConfig(w)
	if err != nil {
		return nil, err
	}
	doc, ok, err := s.driveDocument(ctx, w, cfg.DocumentType)
	if err != nil {
		return nil, err
	}
	if !ok {
		return stay(), nil
	}
	p := &plan{signals: documentSignals(doc)}
	out := advance(models.KycDecisioning)
	out.writes = p.apply
	return out, nil
}

func (s *Service) completeKyc(w *models.Workflow, p *plan) *outcome {
	out := p.complete(models.KycComplete)
	if w.ParentID != nil {
		out.hooks = append(out.hooks, s.notifyParentHook(w))
	}
	return out
}
