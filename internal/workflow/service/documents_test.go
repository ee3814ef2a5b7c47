package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"onboarding/internal/outbox"
	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
	"onboarding/internal/vendors/incode"
	incodemodels "onboarding/internal/vendors/incode/models"
	"onboarding/internal/vendors/kyc"
	"onboarding/internal/verification"
	"onboarding/internal/workflow/models"
	"onboarding/internal/workflow/store"
	id "onboarding/pkg/domain"
)

// DocumentSessionSuite runs workflows against the real session machine with the sandbox
// vendor, so collection states only advance when the machine actually finishes.
type DocumentSessionSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.InMemoryStore
	vault     *vault.InMemory
	sessions  *incode.InMemoryStore
	documents *incode.Service
	service   *Service
}

func TestDocumentSessionSuite(t *testing.T) {
	suite.Run(t, new(DocumentSessionSuite))
}

func (s *DocumentSessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemoryStore(outbox.NewInMemoryStore())
	s.vault = vault.NewInMemory()

	sealer, err := verification.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	s.Require().NoError(err)
	verifications := verification.NewInMemoryStore()
	recorder := verification.NewRecorder(verifications, sealer)

	s.sessions = incode.NewInMemoryStore(verifications)
	s.documents, err = incode.New(s.sessions, incode.NewSandboxClient(), recorder, s.vault, incode.WithMaxAttempts(2))
	s.Require().NoError(err)

	identityVendors := vendors.NewRegistry[kyc.Client]()
	s.Require().NoError(identityVendors.Register(kyc.NewSandboxClient(vendors.Idology, vendors.IdologyExpectID)))
	identity, err := kyc.New(identityVendors, recorder)
	s.Require().NoError(err)

	s.service, err = New(s.store, s.vault,
		WithIdentityVendors(identity),
		WithDocumentSessions(s.documents),
	)
	s.Require().NoError(err)
}

func (s *DocumentSessionSuite) create(cfg models.Config, email string) *models.Workflow {
	sv := id.ScopedVaultID(id.NewWorkflowID())
	s.vault.PutIdentity(sv, vault.IdentityData{FirstName: "Jane", LastName: "Doe", Email: email})
	w, err := s.service.Create(s.ctx, CreateRequest{Config: cfg, TenantID: id.TenantID(id.NewWorkflowID()), ScopedVaultID: sv})
	s.Require().NoError(err)
	return w
}

func (s *DocumentSessionSuite) act(wid id.WorkflowID, kind models.Kind, name models.ActionName) *Result {
	res, err := s.service.Act(s.ctx, wid, models.NewAction(kind, name))
	s.Require().NoError(err)
	return res
}

func (s *DocumentSessionSuite) runDefault(wid id.WorkflowID) *Result {
	res, err := s.service.RunDefault(s.ctx, wid)
	s.Require().NoError(err)
	return res
}

func (s *DocumentSessionSuite) upload(wid id.WorkflowID, side incodemodels.Side, ref, image string) {
	session, err := s.documents.SessionForWorkflow(s.ctx, wid)
	s.Require().NoError(err)
	s.vault.PutImage(ref, []byte(image))
	_, err = s.documents.AddUpload(s.ctx, session.ID, side, ref)
	s.Require().NoError(err)
}

func (s *DocumentSessionSuite) session(wid id.WorkflowID) *incodemodels.Session {
	session, err := s.documents.SessionForWorkflow(s.ctx, wid)
	s.Require().NoError(err)
	return session
}

func (s *DocumentSessionSuite) TestKycStepUpDrivesTheSession() {
	w := s.create(models.KycConfig{DocumentType: "passport"}, "jane#stepup@example.com")

	s.act(w.ID, models.KindKyc, models.ActionAuthorize)
	s.runDefault(w.ID)
	res := s.runDefault(w.ID)
	s.Require().Equal(models.KycDocCollection, res.Workflow.State)
	s.Equal(incodemodels.StateStartOnboarding, s.session(w.ID).State)

	s.Run("waits at the front side without an upload", func() {
		res := s.runDefault(w.ID)
		s.False(res.Advanced)
		s.Equal(models.KycDocCollection, res.Workflow.State)
		s.Equal(incodemodels.StateAddFront, s.session(w.ID).State, "start and consent ran on the way")
	})

	s.Run("a rejected upload suspends the session", func() {
		s.upload(w.ID, incodemodels.SideFront, "front-1", "front #blurry")

		res := s.act(w.ID, models.KindKyc, models.ActionDocCollected)
		s.False(res.Advanced)
		session := s.session(w.ID)
		s.Equal(incodemodels.StateAddFront, session.State)
		s.NotNil(session.FailureReason)
	})

	s.Run("a good upload finishes the session and the decision", func() {
		s.upload(w.ID, incodemodels.SideFront, "front-2", "front")

		res := s.act(w.ID, models.KindKyc, models.ActionDocCollected)
		s.Require().Equal(models.KycDecisioning, res.Workflow.State)
		s.True(s.session(w.ID).IsComplete())

		res = s.runDefault(w.ID)
		s.Equal(models.KycComplete, res.Workflow.State)
		s.Equal(models.DecisionPass, res.Decision.Status)
	})
}

func (s *DocumentSessionSuite) TestKycStepUpEndsOnTerminalSession() {
	w := s.create(models.KycConfig{DocumentType: "passport"}, "jane#stepup@example.com")
	s.act(w.ID, models.KindKyc, models.ActionAuthorize)
	s.runDefault(w.ID)
	s.runDefault(w.ID)

	for i, ref := range []string{"front-1", "front-2"} {
		s.upload(w.ID, incodemodels.SideFront, ref, "front #glare")
		res := s.runDefault(w.ID)
		if i == 0 {
			s.False(res.Advanced)
		}
	}
	s.True(s.session(w.ID).Terminal)

	res := s.runDefault(w.ID)
	s.Equal(models.KycComplete, res.Workflow.State)
	s.Equal(models.DecisionFail, res.Decision.Status)

	signals, err := s.store.RiskSignals(s.ctx, w.ID)
	s.Require().NoError(err)
	codes := make([]risk.ReasonCode, 0, len(signals))
	for _, sig := range signals {
		codes = append(codes, sig.Code)
	}
	s.Contains(codes, risk.DocumentUploadAttemptsExceed)
}

func (s *DocumentSessionSuite) TestDocumentWorkflowDrivesTheSession() {
	w := s.create(models.DocumentConfig{DocumentType: "id_card"}, "jane@example.com")
	s.act(w.ID, models.KindDocument, models.ActionAuthorize)

	s.upload(w.ID, incodemodels.SideFront, "front-1", "front")
	res := s.runDefault(w.ID)
	s.False(res.Advanced, "the back side is missing")
	s.Equal(incodemodels.StateAddBack, s.session(w.ID).State)

	s.upload(w.ID, incodemodels.SideBack, "back-1", "back")
	res = s.runDefault(w.ID)
	s.Equal(models.DocumentDecisioning, res.Workflow.State)

	res = s.runDefault(w.ID)
	s.Equal(models.DocumentComplete, res.Workflow.State)
	s.Equal(models.DecisionPass, res.Decision.Status)
}
