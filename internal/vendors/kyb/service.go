package kyb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
	"onboarding/internal/verification"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

const defaultTimeout = 30 * time.Second

type Request struct {
	WorkflowID id.WorkflowID
	Intent     id.DecisionIntentID
	Business   vault.BusinessData
}

// Outcome is one vendor's report. Signals is empty until Ready.
type Outcome struct {
	Vendor  vendors.Name
	Ready   bool
	Signals []risk.Signal
}

// Service submits business orders to every registered vendor and polls their reports.
type Service struct {
	registry *vendors.Registry[Client]
	recorder *verification.Recorder
	guards   map[vendors.Name]*vendors.Guard
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithGuard(name vendors.Name, g *vendors.Guard) Option {
	return func(s *Service) {
		s.guards[name] = g
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(registry *vendors.Registry[Client], recorder *verification.Recorder, opts ...Option) (*Service, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, vendors.ErrNoVendorsAvailable
	}
	if recorder == nil {
		return nil, fmt.Errorf("verification recorder is required")
	}
	s := &Service{
		registry: registry,
		recorder: recorder,
		guards:   make(map[vendors.Name]*vendors.Guard),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit places one order per vendor. An intent that already has an order with a vendor
// keeps it.
func (s *Service) Submit(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, client := range s.registry.All() {
		g.Go(func() error {
			_, err := s.submit(ctx, client, req)
			return err
		})
	}
	return g.Wait()
}

func (s *Service) submit(ctx context.Context, client Client, req Request) (*Submission, error) {
	return verification.Do(ctx, s.recorder, s.guards[client.Name()], verification.Request{
		Vendor:     client.Name(),
		API:        client.SubmitAPI(),
		Owner:      verification.IntentOwner(req.Intent),
		WorkflowID: req.WorkflowID,
	}, func(ctx context.Context) (*Submission, error) {
		return client.Submit(ctx, req.Business)
	})
}

// Poll fetches every vendor's report for the intent, submitting first where no order
// exists yet. Reports that came back ready are reused. The second return value reports
// whether all vendors are ready.
func (s *Service) Poll(ctx context.Context, req Request) ([]Outcome, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	clients := s.registry.All()
	outcomes := make([]Outcome, len(clients))
	g, ctx := errgroup.WithContext(ctx)
	for i, client := range clients {
		g.Go(func() error {
			report, err := s.poll(ctx, client, req)
			if err != nil {
				return err
			}
			outcomes[i] = toOutcome(client.Name(), report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	ready := true
	for _, o := range outcomes {
		ready = ready && o.Ready
	}
	return outcomes, ready, nil
}

func (s *Service) poll(ctx context.Context, client Client, req Request) (*Report, error) {
	sub, err := s.submit(ctx, client, req)
	if err != nil {
		return nil, err
	}
	vreq := verification.Request{
		Vendor:     client.Name(),
		API:        client.PollAPI(),
		Owner:      verification.IntentOwner(req.Intent),
		WorkflowID: req.WorkflowID,
		InputKey:   sub.Reference,
	}

	// Only ready reports are final; a pending one is polled again.
	raw, ok, err := s.recorder.Reusable(ctx, verification.Lookup{Owner: vreq.Owner, API: vreq.API, InputKey: vreq.InputKey})
	if err != nil {
		return nil, err
	}
	if ok {
		var stored Report
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDataIntegrity, fmt.Sprintf("decode stored %s report", client.PollAPI()))
		}
		if stored.Ready {
			return &stored, nil
		}
	}

	report, callErr := vendors.Call(ctx, s.guards[client.Name()], vreq.API, func(ctx context.Context) (*Report, error) {
		return client.Poll(ctx, sub.Reference)
	})
	var payload []byte
	if callErr == nil {
		if payload, err = json.Marshal(report); err != nil {
			return nil, fmt.Errorf("encode %s report: %w", vreq.API, err)
		}
	}
	if err := s.recorder.Record(ctx, vreq, payload, callErr); err != nil && callErr == nil {
		return nil, err
	}
	if callErr != nil {
		return nil, dErrors.Wrap(callErr, dErrors.CodeVendor, fmt.Sprintf("%s %s failed", client.Name(), vreq.API))
	}
	if !report.Ready && s.logger != nil {
		s.logger.InfoContext(ctx, "business report pending",
			"vendor", client.Name(),
			"workflow_id", req.WorkflowID.String(),
		)
	}
	return report, nil
}

func toOutcome(name vendors.Name, report *Report) Outcome {
	out := Outcome{Vendor: name, Ready: report.Ready}
	for _, code := range report.ReasonCodes {
		out.Signals = append(out.Signals, risk.Signal{Code: code, Vendor: string(name), Scope: risk.ScopeBusiness})
	}
	return out
}
