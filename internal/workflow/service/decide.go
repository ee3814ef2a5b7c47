package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/decision"
	"onboarding/internal/risk"
	"onboarding/internal/vendors/incode"
	incodemodels "onboarding/internal/vendors/incode/models"
	"onboarding/internal/workflow/models"
	"onboarding/internal/workflow/store"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

// plan collects the rows a transition writes next to its state change. Timestamps are
// filled in at commit time.
type plan struct {
	signals  []risk.Signal
	results  []models.RuleSetResultRecord
	decision *models.Decision
	review   *models.ManualReview
	docs     []models.DocumentRequest
	children []*models.Workflow
}

func (p *plan) apply(ctx context.Context, tx store.TxStore, w *models.Workflow, now time.Time) error {
	for _, child := range p.children {
		child.CreatedAt, child.UpdatedAt = now, now
		if err := tx.CreateWorkflow(ctx, child); err != nil {
			return fmt.Errorf("create child workflow: %w", err)
		}
	}
	if len(p.signals) > 0 {
		if err := tx.SaveRiskSignals(ctx, w.ID, p.signals, now); err != nil {
			return fmt.Errorf("save risk signals: %w", err)
		}
	}
	if len(p.results) > 0 {
		for i := range p.results {
			p.results[i].CreatedAt = now
		}
		if err := tx.SaveRuleSetResults(ctx, p.results); err != nil {
			return fmt.Errorf("save rule set results: %w", err)
		}
	}
	if p.decision != nil {
		p.decision.CreatedAt = now
		if err := tx.SaveDecision(ctx, *p.decision); err != nil {
			return fmt.Errorf("save decision: %w", err)
		}
	}
	if p.review != nil {
		p.review.CreatedAt = now
		if err := tx.CreateManualReview(ctx, *p.review); err != nil {
			return fmt.Errorf("create manual review: %w", err)
		}
	}
	if len(p.docs) > 0 {
		for i := range p.docs {
			p.docs[i].CreatedAt = now
		}
		if err := tx.CreateDocumentRequests(ctx, p.docs); err != nil {
			return fmt.Errorf("create document requests: %w", err)
		}
	}
	return nil
}

// decide records the decision derived from action, plus a review row for manual review
// and one document request per requirement for a step-up.
func (p *plan) decide(wid id.WorkflowID, action *decision.Action) {
	status, review := models.StatusFor(action)
	p.decision = &models.Decision{
		ID:           uuid.New(),
		WorkflowID:   wid,
		Status:       status,
		ManualReview: review,
		Action:       action,
	}
	if review {
		p.review = &models.ManualReview{ID: uuid.New(), WorkflowID: wid, Reason: "rule action " + action.String()}
	}
	if action != nil && action.IsStepUp() {
		for _, kind := range action.StepUp.Requirements() {
			p.docs = append(p.docs, models.DocumentRequest{ID: uuid.New(), WorkflowID: wid, Kind: kind})
		}
	}
}

func (p *plan) record(wid id.WorkflowID, vendor string, selected bool, result decision.RuleSetResult) {
	p.results = append(p.results, models.RuleSetResultRecord{
		ID:         uuid.New(),
		WorkflowID: wid,
		Vendor:     vendor,
		Selected:   selected,
		Result:     result,
	})
}

// complete finishes the plan as an advance to next, carrying the decision.
func (p *plan) complete(next models.State) *outcome {
	out := advance(next)
	out.writes = p.apply
	out.decision = p.decision
	return out
}

// waterfall evaluates one rule set per vendor, records every result and returns the action of
// the least severe one. Vendors that raised no signal at all leave nothing to attribute, so
// an empty list is evaluated once without a vendor.
func (s *Service) waterfall(wid id.WorkflowID, p *plan, capability string, vendors []string, evaluate func(vendor string) decision.RuleSetResult) (*decision.Action, error) {
	if len(vendors) == 0 {
		vendors = []string{""}
	}
	evaluations := make([]decision.VendorEvaluation, 0, len(vendors))
	for _, v := range vendors {
		result := evaluate(v)
		s.observeRuleSet(result)
		evaluations = append(evaluations, decision.VendorEvaluation{Vendor: v, Result: result})
	}
	best, err := decision.Waterfall(evaluations)
	if err != nil {
		return nil, err
	}
	for _, e := range evaluations {
		p.record(wid, e.Vendor, e.Vendor == best.Vendor, e.Result)
	}
	s.decisionMetrics.IncrementWaterfall(capability, best.Vendor)
	return best.Action(), nil
}

func (s *Service) observeRuleSet(result decision.RuleSetResult) {
	triggered := make([]string, 0, len(result.RulesTriggered))
	for _, r := range result.RulesTriggered {
		triggered = append(triggered, r.Name)
	}
	s.decisionMetrics.ObserveRuleSet(result.RuleSetName, decision.ActionString(result.ActionTriggered), triggered)
}

// withoutStepUp escalates a step-up to manual review for flows that cannot collect more
// evidence.
func withoutStepUp(action *decision.Action) *decision.Action {
	if action != nil && action.IsStepUp() {
		review := decision.ManualReview
		return &review
	}
	return action
}

func maxAction(a, b *decision.Action) *decision.Action {
	if decision.CompareOptional(a, b) >= 0 {
		return a
	}
	return b
}

// vendorsOf lists the vendors behind signals of scope in first-seen order.
func vendorsOf(signals []risk.Signal, scope risk.Scope) []string {
	seen := make(map[string]bool)
	var vendors []string
	for _, sig := range signals {
		if sig.Scope != scope || seen[sig.Vendor] {
			continue
		}
		seen[sig.Vendor] = true
		vendors = append(vendors, sig.Vendor)
	}
	return vendors
}

func inScope(signals []risk.Signal, scope risk.Scope) []risk.Signal {
	var out []risk.Signal
	for _, sig := range signals {
		if sig.Scope == scope {
			out = append(out, sig)
		}
	}
	return out
}

// documentSignals attributes a session's reason codes to the document vendor.
func documentSignals(o *incode.Outcome) []risk.Signal {
	codes := o.Features.Signals.Sorted()
	signals := make([]risk.Signal, 0, len(codes))
	for _, code := range codes {
		signals = append(signals, risk.Signal{Code: risk.ReasonCode(code), Vendor: documentVendor, Scope: risk.ScopeDocument})
	}
	return signals
}

func (s *Service) requireDocuments() error {
	if s.documents == nil {
		return dErrors.New(dErrors.CodeInternal, "document sessions are not configured")
	}
	return nil
}

// workflowDocument returns the outcome of the session the workflow started. ok is false
// while there is no session or it can still progress.
func (s *Service) workflowDocument(ctx context.Context, w *models.Workflow) (*incode.Outcome, bool, error) {
	if err := s.requireDocuments(); err != nil {
		return nil, false, err
	}
	session, err := s.documents.SessionForWorkflow(ctx, w.ID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !session.Finished() {
		return nil, false, nil
	}
	return incode.OutcomeOf(session), true, nil
}

// vaultDocument returns the newest finished session for the workflow's vault, whichever
// workflow collected it.
func (s *Service) vaultDocument(ctx context.Context, w *models.Workflow) (*incode.Outcome, bool, error) {
	if err := s.requireDocuments(); err != nil {
		return nil, false, err
	}
	o, err := s.documents.LatestOutcome(ctx, w.ScopedVaultID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return o, true, nil
}

func startRequest(w *models.Workflow, documentType string) (incode.StartRequest, error) {
	dt := incodemodels.DocumentDriversLicense
	if documentType != "" {
		parsed, err := incodemodels.ParseDocumentType(documentType)
		if err != nil {
			return incode.StartRequest{}, dErrors.Wrap(err, dErrors.CodeDataIntegrity, "invalid document type in workflow config")
		}
		dt = parsed
	}
	return incode.StartRequest{
		WorkflowID:    w.ID,
		TenantID:      w.TenantID,
		ScopedVaultID: w.ScopedVaultID,
		DocumentType:  dt,
	}, nil
}

// startDocumentHook opens the document session once the workflow has moved to collection.
func (s *Service) startDocumentHook(w *models.Workflow, documentType string) hook {
	return hook{name: "start_document_session", fn: func(ctx context.Context) error {
		if err := s.requireDocuments(); err != nil {
			return err
		}
		req, err := startRequest(w, documentType)
		if err != nil {
			return err
		}
		_, err = s.documents.StartSession(ctx, req)
		return err
	}}
}

// notifyParentHook tells a KYB parent that one of its beneficial owners finished.
func (s *Service) notifyParentHook(w *models.Workflow) hook {
	parent, child := *w.ParentID, w.ID
	return hook{name: "notify_parent", fn: func(ctx context.Context) error {
		action := models.KybAction{Type: models.ActionBoKycCompleted, Child: child}
		var err error
		for range parentRetries {
			_, err = s.Act(ctx, parent, action)
			switch {
			case err == nil:
				return nil
			case dErrors.HasCode(err, dErrors.CodeUnexpectedAction):
				// The parent has not reached AwaitingBoKyc; it counts children on arrival.
				return nil
			case !dErrors.IsRetryable(err):
				return err
			}
		}
		return err
	}}
}

func configError(w *models.Workflow) error {
	return models.UnexpectedConfigForWorkflow(w.ID, w.Kind, w.Config)
}
