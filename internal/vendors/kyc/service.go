package kyc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
	"onboarding/internal/verification"
	id "onboarding/pkg/domain"
)

const defaultTimeout = 30 * time.Second

// Request identifies one round of identity vendor calls.
type Request struct {
	WorkflowID id.WorkflowID
	Intent     id.DecisionIntentID
	Identity   vault.IdentityData
}

// Outcome is one vendor's contribution, in registry order.
type Outcome struct {
	Vendor  vendors.Name
	Signals []risk.Signal
}

// Service fans a request out to every registered identity vendor.
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

// WithGuard puts a vendor's calls behind g.
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

// Run calls every vendor in parallel. Vendors that already answered for this intent are
// not called again, so a retried round only pays for the calls that failed. Any hard
// failure aborts the round.
func (s *Service) Run(ctx context.Context, req Request) ([]Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	clients := s.registry.All()
	outcomes := make([]Outcome, len(clients))
	g, ctx := errgroup.WithContext(ctx)
	for i, client := range clients {
		g.Go(func() error {
			resp, err := verification.Do(ctx, s.recorder, s.guards[client.Name()], verification.Request{
				Vendor:     client.Name(),
				API:        client.API(),
				Owner:      verification.IntentOwner(req.Intent),
				WorkflowID: req.WorkflowID,
			}, func(ctx context.Context) (*Response, error) {
				return client.Verify(ctx, req.Identity)
			})
			if err != nil {
				return err
			}
			outcomes[i] = toOutcome(client.Name(), resp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func toOutcome(name vendors.Name, resp *Response) Outcome {
	out := Outcome{Vendor: name}
	for _, code := range resp.ReasonCodes {
		out.Signals = append(out.Signals, risk.Signal{Code: code, Vendor: string(name), Scope: risk.ScopeIdentity})
	}
	return out
}
