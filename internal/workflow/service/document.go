package service

import (
	"context"

	"onboarding/internal/vendors/incode"
	"onboarding/internal/workflow/models"
)

func (s *Service) documentHandler(state models.DocumentState, name models.ActionName) handler {
	switch {
	case state == models.DocumentDataCollection && name == models.ActionAuthorize:
		return s.documentAuthorize
	case state == models.DocumentDocCollection && name == models.ActionProcessDocument:
		return s.documentProcess
	case state == models.DocumentDecisioning && name == models.ActionMakeDecision:
		return s.documentDecide
	}
	return nil
}

func documentConfig(w *models.Workflow) (models.DocumentConfig, error) {
	cfg, ok := w.Config.(models.DocumentConfig)
	if !ok {
		return models.DocumentConfig{}, configError(w)
	}
	return cfg, nil
}

func (s *Service) documentAuthorize(_ context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	cfg, err := documentConfig(w)
	if err != nil {
		return nil, err
	}
	out := advance(models.DocumentDocCollection)
	out.hooks = append(out.hooks, s.startDocumentHook(w, cfg.DocumentType))
	return out, nil
}

// documentProcess moves on to decisioning once the session is finished, terminal included.
func (s *Service) documentProcess(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	cfg, err := documentConfig(w)
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
	out := advance(models.DocumentDecisioning)
	out.writes = p.apply
	return out, nil
}

// driveDocument runs the workflow's session as far as the uploads allow. ok is false while
// the session waits for input or is suspended on a recoverable failure.
func (s *Service) driveDocument(ctx context.Context, w *models.Workflow, documentType string) (*incode.Outcome, bool, error) {
	if err := s.requireDocuments(); err != nil {
		return nil, false, err
	}
	req, err := startRequest(w, documentType)
	if err != nil {
		return nil, false, err
	}
	session, err := s.documents.StartSession(ctx, req)
	if err != nil {
		return nil, false, err
	}
	res, err := s.documents.Run(ctx, session.ID)
	if err != nil {
		return nil, false, err
	}
	switch res.Status {
	case incode.RunComplete, incode.RunTerminal:
		return incode.OutcomeOf(res.Session), true, nil
	}
	if res.FailureReason != nil && s.logger != nil {
		s.logger.InfoContext(ctx, "document session suspended",
			"workflow_id", w.ID.String(),
			"session_id", session.ID.String(),
			"failure_reason", string(*res.FailureReason),
		)
	}
	return nil, false, nil
}

func (s *Service) documentDecide(ctx context.Context, w *models.Workflow, _ models.Action) (*outcome, error) {
	doc, ok, err := s.workflowDocument(ctx, w)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.UnexpectedStateForWorkflow(w.ID, w.Kind, w.State)
	}
	p := &plan{}
	result := s.rules.Document.Evaluate(doc.Features)
	s.observeRuleSet(result)
	p.record(w.ID, documentVendor, true, result)
	p.decide(w.ID, withoutStepUp(result.ActionTriggered))
	return p.complete(models.DocumentComplete), nil
}
