package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onboarding/internal/decision"
	"onboarding/internal/outbox"
	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
	"onboarding/internal/vendors/incode"
	incodemodels "onboarding/internal/vendors/incode/models"
	"onboarding/internal/vendors/kyb"
	"onboarding/internal/vendors/kyc"
	"onboarding/internal/verification"
	"onboarding/internal/workflow/models"
	"onboarding/internal/workflow/store"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/testutil"
)

// fakeDocuments stands in for the document session service. Sessions stay open until the
// test finishes them.
type fakeDocuments struct {
	mu       sync.Mutex
	sessions map[id.WorkflowID]*incodemodels.Session
	started  int
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{sessions: make(map[id.WorkflowID]*incodemodels.Session)}
}

func (f *fakeDocuments) StartSession(_ context.Context, req incode.StartRequest) (*incodemodels.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[req.WorkflowID]; ok {
		return s, nil
	}
	f.started++
	s := &incodemodels.Session{
		ID:            id.NewSessionID(),
		WorkflowID:    req.WorkflowID,
		TenantID:      req.TenantID,
		ScopedVaultID: req.ScopedVaultID,
		DocumentType:  req.DocumentType,
		State:         incodemodels.StateStartOnboarding,
	}
	f.sessions[req.WorkflowID] = s
	return s, nil
}

func (f *fakeDocuments) Run(_ context.Context, sessionID id.SessionID) (*incode.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID != sessionID {
			continue
		}
		switch {
		case s.Terminal:
			return &incode.RunResult{Session: s, Status: incode.RunTerminal}, nil
		case s.IsComplete():
			return &incode.RunResult{Session: s, Status: incode.RunComplete}, nil
		}
		return &incode.RunResult{Session: s, Status: incode.RunNotReady}, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "document session not found")
}

func (f *fakeDocuments) SessionForWorkflow(_ context.Context, wid id.WorkflowID) (*incodemodels.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[wid]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document session not found")
	}
	return s, nil
}

func (f *fakeDocuments) LatestOutcome(_ context.Context, sv id.ScopedVaultID) (*incode.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ScopedVaultID == sv && s.Finished() {
			return incode.OutcomeOf(s), nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no finished document session")
}

// finish completes the workflow's session with codes, opening one if needed.
func (f *fakeDocuments) finish(wid id.WorkflowID, sv id.ScopedVaultID, codes ...risk.ReasonCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[wid]
	if !ok {
		s = &incodemodels.Session{ID: id.NewSessionID(), WorkflowID: wid, ScopedVaultID: sv, DocumentType: incodemodels.DocumentDriversLicense}
		f.sessions[wid] = s
	}
	s.State = incodemodels.StateComplete
	s.Signals = codes
	s.Scores = &incodemodels.Scores{IDScore: 0.98, LivenessScore: 0.97, FaceMatch: 0.95}
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	outbox    *outbox.InMemoryStore
	store     *store.InMemoryStore
	vault     *vault.InMemory
	documents *fakeDocuments
	middesk   *kyb.SandboxClient
	service   *Service
	tenant    id.TenantID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.outbox = outbox.NewInMemoryStore()
	s.store = store.NewInMemoryStore(s.outbox)
	s.vault = vault.NewInMemory()
	s.documents = newFakeDocuments()
	s.tenant = id.TenantID(id.NewWorkflowID())

	sealer, err := verification.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	s.Require().NoError(err)
	recorder := verification.NewRecorder(verification.NewInMemoryStore(), sealer)

	identityVendors := vendors.NewRegistry[kyc.Client]()
	s.Require().NoError(identityVendors.Register(kyc.NewSandboxClient(vendors.Idology, vendors.IdologyExpectID)))
	identity, err := kyc.New(identityVendors, recorder)
	s.Require().NoError(err)

	s.middesk = kyb.NewSandboxClient(vendors.Middesk, vendors.MiddeskCreateOrder, vendors.MiddeskGetBusiness)
	businessVendors := vendors.NewRegistry[kyb.Client]()
	s.Require().NoError(businessVendors.Register(s.middesk))
	business, err := kyb.New(businessVendors, recorder)
	s.Require().NoError(err)

	s.service, err = New(s.store, s.vault,
		WithIdentityVendors(identity),
		WithBusinessVendors(business),
		WithDocumentSessions(s.documents),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) newPerson(email string) id.ScopedVaultID {
	sv := id.ScopedVaultID(id.NewWorkflowID())
	s.vault.PutIdentity(sv, vault.IdentityData{FirstName: "Jane", LastName: "Doe", Email: email})
	return sv
}

func (s *ServiceSuite) create(cfg models.Config, sv id.ScopedVaultID) *models.Workflow {
	w, err := s.service.Create(s.ctx, CreateRequest{Config: cfg, TenantID: s.tenant, ScopedVaultID: sv})
	s.Require().NoError(err)
	return w
}

func (s *ServiceSuite) act(wid id.WorkflowID, kind models.Kind, name models.ActionName) *Result {
	res, err := s.service.Act(s.ctx, wid, models.NewAction(kind, name))
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) runDefault(wid id.WorkflowID) *Result {
	res, err := s.service.RunDefault(s.ctx, wid)
	s.Require().NoError(err)
	return res
}

// runKyc takes a KYC workflow from data collection through its decision.
func (s *ServiceSuite) runKyc(wid id.WorkflowID) *Result {
	s.act(wid, models.KindKyc, models.ActionAuthorize)
	s.runDefault(wid)
	return s.runDefault(wid)
}

func (s *ServiceSuite) TestKycPass() {
	w := s.create(models.KycConfig{}, s.newPerson("jane@example.com"))

	res := s.runKyc(w.ID)

	s.Equal(models.KycComplete, res.Workflow.State)
	s.NotNil(res.Workflow.CompletedAt)
	s.Require().NotNil(res.Decision)
	s.Equal(models.DecisionPass, res.Decision.Status)

	stored, err := s.service.LatestDecision(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.DecisionPass, stored.Status)
	s.Len(s.outbox.All(), 3, "one notification per advance")
}

func (s *ServiceSuite) TestKycManualReview() {
	w := s.create(models.KycConfig{}, s.newPerson("jane#review@example.com"))

	res := s.runKyc(w.ID)

	s.Equal(models.KycComplete, res.Workflow.State)
	s.Equal(models.DecisionFail, res.Decision.Status)
	s.True(res.Decision.ManualReview)
	reviews, err := s.store.ManualReviews(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Len(reviews, 1)
}

func (s *ServiceSuite) TestSkipKycDecidesOnDocumentOnly() {
	sv := s.newPerson("jane#fail@example.com")
	w := s.create(models.KycConfig{SkipKyc: true}, sv)

	s.Run("waits for a finished document session", func() {
		res := s.act(w.ID, models.KindKyc, models.ActionAuthorize)
		s.False(res.Advanced)
		s.Equal(models.KycDataCollection, res.Workflow.State)
	})

	s.Run("completes on the document outcome", func() {
		s.documents.finish(id.NewWorkflowID(), sv, risk.DocumentVerified)

		res := s.act(w.ID, models.KindKyc, models.ActionAuthorize)
		s.Equal(models.KycComplete, res.Workflow.State)
		s.Equal(models.DecisionPass, res.Decision.Status)

		results, err := s.store.RuleSetResults(s.ctx, w.ID)
		s.Require().NoError(err)
		s.Require().Len(results, 1)
		s.Equal(decision.RuleSetDocument, results[0].Result.RuleSetName)

		signals, err := s.store.RiskSignals(s.ctx, w.ID)
		s.Require().NoError(err)
		s.Require().NotEmpty(signals)
		for _, sig := range signals {
			s.Equal(risk.ScopeDocument, sig.Scope)
		}
	})
}

func (s *ServiceSuite) TestStepUpCollectsDocument() {
	sv := s.newPerson("jane#stepup@example.com")
	w := s.create(models.KycConfig{DocumentType: "passport"}, sv)

	s.Run("identity step-up moves to document collection", func() {
		res := s.runKyc(w.ID)
		s.Equal(models.KycDocCollection, res.Workflow.State)
		s.Equal(models.DecisionStepUp, res.Decision.Status)

		requests, err := s.store.DocumentRequests(s.ctx, w.ID)
		s.Require().NoError(err)
		kinds := make([]decision.DocumentKind, 0, len(requests))
		for _, r := range requests {
			kinds = append(kinds, r.Kind)
		}
		s.Equal([]decision.DocumentKind{decision.DocumentIdentity, decision.DocumentSelfie}, kinds)

		results, err := s.store.RuleSetResults(s.ctx, w.ID)
		s.Require().NoError(err)
		s.Require().Len(results, 1)
		s.True(results[0].Selected)
		s.Require().NotNil(results[0].Result.ActionTriggered)
		s.Equal(decision.StepUp(decision.StepUpIdentity), *results[0].Result.ActionTriggered)

		s.Equal(1, s.documents.started)
		session, err := s.documents.SessionForWorkflow(s.ctx, w.ID)
		s.Require().NoError(err)
		s.Equal(incodemodels.DocumentPassport, session.DocumentType)
	})

	s.Run("stays until the session finishes", func() {
		res := s.act(w.ID, models.KindKyc, models.ActionDocCollected)
		s.False(res.Advanced)
		s.Equal(models.KycDocCollection, res.Workflow.State)
	})

	s.Run("a verified document satisfies the step-up", func() {
		s.documents.finish(w.ID, sv, risk.DocumentVerified)

		res := s.act(w.ID, models.KindKyc, models.ActionDocCollected)
		s.Equal(models.KycDecisioning, res.Workflow.State)

		res = s.runDefault(w.ID)
		s.Equal(models.KycComplete, res.Workflow.State)
		s.Equal(models.DecisionPass, res.Decision.Status)
	})
}

func (s *ServiceSuite) TestStepUpWithFailedDocument() {
	sv := s.newPerson("jane#stepup@example.com")
	w := s.create(models.KycConfig{}, sv)
	s.runKyc(w.ID)

	s.documents.finish(w.ID, sv, risk.DocumentExpired)
	s.act(w.ID, models.KindKyc, models.ActionDocCollected)
	res := s.runDefault(w.ID)

	s.Equal(models.KycComplete, res.Workflow.State)
	s.Equal(models.DecisionFail, res.Decision.Status)
	s.False(res.Decision.ManualReview)
}

func (s *ServiceSuite) TestStaleTransitionIsRejected() {
	w := s.create(models.KycConfig{}, s.newPerson("jane@example.com"))
	s.act(w.ID, models.KindKyc, models.ActionAuthorize)

	action := models.NewAction(models.KindKyc, models.ActionMakeVendorCalls)
	first, err := s.service.prepare(s.ctx, w.ID, action)
	s.Require().NoError(err)
	replay, err := s.service.prepare(s.ctx, w.ID, action)
	s.Require().NoError(err)

	res, err := first.commit(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.KycDecisioning, res.Workflow.State)

	s.Run("a transition computed against an old state is rejected", func() {
		_, err := replay.commit(s.ctx)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConcurrentStateChange))
		s.True(dErrors.IsRetryable(err))
		csc, ok := models.AsConcurrentStateChange(err)
		s.Require().True(ok)
		s.Equal(models.KycVendorCalls, csc.Expected)
		s.Equal(models.KycDecisioning, csc.Actual)

		current, err := s.service.Get(s.ctx, w.ID)
		s.Require().NoError(err)
		s.Equal(models.KycDecisioning, current.State)
	})

	s.Run("a transition commits at most once", func() {
		_, err := first.commit(s.ctx)
		s.ErrorIs(err, models.ErrTransitionConsumed)
	})

	signals, err := s.store.RiskSignals(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Len(signals, 1, "the rejected replay wrote nothing")
}

func (s *ServiceSuite) TestUnexpectedAction() {
	w := s.create(models.KycConfig{}, s.newPerson("jane@example.com"))

	cases := map[string]models.Action{
		"wrong action for state": models.NewAction(models.KindKyc, models.ActionMakeDecision),
		"action of another kind": models.NewAction(models.KindKyb, models.ActionAuthorize),
	}
	for name, action := range cases {
		s.Run(name, func() {
			_, err := s.service.Act(s.ctx, w.ID, action)
			s.Require().Error(err)
			s.Equal(dErrors.CodeUnexpectedAction, dErrors.CodeOf(err))
		})
	}

	s.Run("state without a default action", func() {
		_, err := s.service.RunDefault(s.ctx, w.ID)
		s.Equal(dErrors.CodeUnexpectedAction, dErrors.CodeOf(err))
	})

	s.Run("unknown workflow", func() {
		_, err := s.service.RunDefault(s.ctx, id.NewWorkflowID())
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *ServiceSuite) TestKybWaitsForBeneficialOwners() {
	s.middesk.PendingPolls = 1
	first, second := s.newPerson("owner1@example.com"), s.newPerson("owner2@example.com")
	sv := id.ScopedVaultID(id.NewWorkflowID())
	s.vault.PutBusiness(sv, vault.BusinessData{
		Name: "Acme",
		BeneficialOwners: []vault.BeneficialOwner{
			{ScopedVaultID: first, OwnershipStake: 60},
			{ScopedVaultID: second, OwnershipStake: 40},
		},
	})
	w := s.create(models.KybConfig{}, sv)

	s.act(w.ID, models.KindKyb, models.ActionAuthorize)
	children, err := s.store.ListChildren(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Require().Len(children, 2)
	for _, child := range children {
		s.Equal(models.KindKyc, child.Kind)
		s.Require().NotNil(child.ParentID)
		s.Equal(w.ID, *child.ParentID)
	}

	res := s.runDefault(w.ID)
	s.Equal(models.KybAwaitingBoKyc, res.Workflow.State)

	s.runKyc(children[0].ID)
	parent, err := s.service.Get(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.KybAwaitingBoKyc, parent.State, "one owner is still pending")

	s.runKyc(children[1].ID)
	parent, err = s.service.Get(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.KybAwaitingAsyncVendors, parent.State)

	res = s.runDefault(w.ID)
	s.False(res.Advanced, "business report still pending")

	res = s.runDefault(w.ID)
	s.Equal(models.KybDecisioning, res.Workflow.State)

	res = s.runDefault(w.ID)
	s.Equal(models.KybComplete, res.Workflow.State)
	s.Equal(models.DecisionPass, res.Decision.Status)
}

func (s *ServiceSuite) TestKybFailedOwnerGoesToReview() {
	owner := s.newPerson("owner#fail@example.com")
	sv := id.ScopedVaultID(id.NewWorkflowID())
	s.vault.PutBusiness(sv, vault.BusinessData{
		Name:             "Acme",
		BeneficialOwners: []vault.BeneficialOwner{{ScopedVaultID: owner, OwnershipStake: 100}},
	})
	w := s.create(models.KybConfig{}, sv)
	s.act(w.ID, models.KindKyb, models.ActionAuthorize)
	children, err := s.store.ListChildren(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Require().Len(children, 1)

	// The owner finishes before the parent places its orders.
	s.runKyc(children[0].ID)
	res := s.runDefault(w.ID)
	s.Equal(models.KybAwaitingAsyncVendors, res.Workflow.State)

	s.runDefault(w.ID)
	res = s.runDefault(w.ID)
	s.Equal(models.KybComplete, res.Workflow.State)
	s.Equal(models.DecisionFail, res.Decision.Status)
	s.True(res.Decision.ManualReview)
}

func (s *ServiceSuite) TestKybSkipBoKyc() {
	sv := id.ScopedVaultID(id.NewWorkflowID())
	s.vault.PutBusiness(sv, vault.BusinessData{
		Name:             "Acme #tin",
		BeneficialOwners: []vault.BeneficialOwner{{ScopedVaultID: s.newPerson("owner@example.com")}},
	})
	w := s.create(models.KybConfig{SkipBoKyc: true}, sv)

	s.act(w.ID, models.KindKyb, models.ActionAuthorize)
	children, err := s.store.ListChildren(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Empty(children)

	res := s.runDefault(w.ID)
	s.Equal(models.KybAwaitingAsyncVendors, res.Workflow.State)
	s.runDefault(w.ID)
	res = s.runDefault(w.ID)
	s.Equal(models.DecisionFail, res.Decision.Status)
	s.False(res.Decision.ManualReview)
}

func (s *ServiceSuite) TestDocumentWorkflow() {
	sv := s.newPerson("jane@example.com")
	w := s.create(models.DocumentConfig{DocumentType: "id_card"}, sv)

	res := s.act(w.ID, models.KindDocument, models.ActionAuthorize)
	s.Equal(models.DocumentDocCollection, res.Workflow.State)
	s.Equal(1, s.documents.started)

	res = s.runDefault(w.ID)
	s.False(res.Advanced, "uploads are missing")

	s.documents.finish(w.ID, sv, risk.DocumentVerified, risk.DocumentOcrNameDoesNotMatch)
	res = s.runDefault(w.ID)
	s.Equal(models.DocumentDecisioning, res.Workflow.State)

	res = s.runDefault(w.ID)
	s.Equal(models.DocumentComplete, res.Workflow.State)
	s.Equal(models.DecisionFail, res.Decision.Status)
	s.True(res.Decision.ManualReview)
	s.Equal(1, s.documents.started, "sessions are started once per workflow")
}

func (s *ServiceSuite) TestNotificationsAreWrittenWithTheTransition() {
	w := s.create(models.KycConfig{}, s.newPerson("jane@example.com"))
	s.act(w.ID, models.KindKyc, models.ActionAuthorize)

	entries := s.outbox.All()
	s.Require().Len(entries, 1)
	s.Equal(w.ID.String(), entries[0].AggregateID)
	s.Equal(notificationEvent, entries[0].EventType)
	s.Contains(string(entries[0].Payload), `"to":"kyc.vendor_calls"`)
	s.Nil(entries[0].PublishedAt)
}

func (s *ServiceSuite) TestTransitionUsesTheRequestClock() {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := testutil.Context("req-clock", at)
	w, err := s.service.Create(ctx, CreateRequest{Config: models.KycConfig{}, TenantID: s.tenant, ScopedVaultID: s.newPerson("jane@example.com")})
	s.Require().NoError(err)

	res, err := s.service.Act(ctx, w.ID, models.NewAction(models.KindKyc, models.ActionAuthorize))
	s.Require().NoError(err)
	s.True(res.Workflow.UpdatedAt.Equal(at))

	entries := s.outbox.All()
	s.Require().Len(entries, 1)
	s.True(entries[0].CreatedAt.Equal(at))
}

func (s *ServiceSuite) TestStayBacksOffTheNextRun() {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sv := s.newPerson("jane@example.com")
	w, err := s.service.Create(testutil.Context("create", at), CreateRequest{Config: models.DocumentConfig{DocumentType: "passport"}, TenantID: s.tenant, ScopedVaultID: sv})
	s.Require().NoError(err)
	_, err = s.service.Act(testutil.Context("authorize", at), w.ID, models.NewAction(models.KindDocument, models.ActionAuthorize))
	s.Require().NoError(err)

	stayAt := func(now time.Time) time.Time {
		res, err := s.service.RunDefault(testutil.Context("run", now), w.ID)
		s.Require().NoError(err)
		s.Require().False(res.Advanced)
		stored, err := s.store.Find(s.ctx, w.ID)
		s.Require().NoError(err)
		s.True(stored.NextRunAt.Equal(res.Workflow.NextRunAt))
		return stored.NextRunAt
	}

	s.Equal(at.Add(6*time.Second), stayAt(at.Add(time.Second)), "never sooner than the minimum")
	s.Equal(at.Add(3*time.Minute), stayAt(at.Add(90*time.Second)), "waits as long as it has waited")
	s.Equal(at.Add(15*time.Minute), stayAt(at.Add(10*time.Minute)), "never later than the maximum")

	s.Run("advancing makes the workflow due at once", func() {
		now := at.Add(11 * time.Minute)
		s.documents.finish(w.ID, sv, risk.DocumentVerified)
		res, err := s.service.RunDefault(testutil.Context("run", now), w.ID)
		s.Require().NoError(err)
		s.Require().True(res.Advanced)

		ws, err := s.service.ListRunnable(testutil.Context("list", now), 10)
		s.Require().NoError(err)
		s.Require().Len(ws, 1)
		s.Equal(w.ID, ws[0].ID)
	})
}
