// Package kyb runs business verification vendors. Business vendors are asynchronous: an
// order is submitted first and its report is polled until the vendor finishes.
package kyb

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
)

// Client is one business vendor.
type Client interface {
	Name() vendors.Name
	SubmitAPI() vendors.API
	PollAPI() vendors.API
	Submit(ctx context.Context, data vault.BusinessData) (*Submission, error)
	// Poll fetches the report for a submission; Ready is false while the vendor is working.
	Poll(ctx context.Context, reference string) (*Report, error)
}

type Submission struct {
	Reference string `json:"reference"`
}

type Report struct {
	Ready       bool              `json:"ready"`
	ReasonCodes []risk.ReasonCode `json:"reason_codes,omitempty"`
}

var sandboxTags = map[string][]risk.ReasonCode{
	"#tin":       {risk.TinDoesNotMatch},
	"#inactive":  {risk.BusinessInactive},
	"#watchlist": {risk.BusinessWatchlistHit},
	"#name":      {risk.BusinessNameDoesNotMatch},
	"#address":   {risk.BusinessAddressDoesNotMatch},
	"#sos":       {risk.BusinessSecretaryOfStateHold},
}

// SandboxClient answers from tags in the business name. PendingPolls is how many polls
// return not ready before the report is available.
type SandboxClient struct {
	name         vendors.Name
	submitAPI    vendors.API
	pollAPI      vendors.API
	PendingPolls int

	mu     sync.Mutex
	orders map[string]*sandboxOrder
}

type sandboxOrder struct {
	polls int
	codes []risk.ReasonCode
}

func NewSandboxClient(name vendors.Name, submitAPI, pollAPI vendors.API) *SandboxClient {
	return &SandboxClient{
		name:      name,
		submitAPI: submitAPI,
		pollAPI:   pollAPI,
		orders:    make(map[string]*sandboxOrder),
	}
}

func (c *SandboxClient) Name() vendors.Name     { return c.name }
func (c *SandboxClient) SubmitAPI() vendors.API { return c.submitAPI }
func (c *SandboxClient) PollAPI() vendors.API   { return c.pollAPI }

func (c *SandboxClient) Submit(_ context.Context, data vault.BusinessData) (*Submission, error) {
	codes := []risk.ReasonCode{risk.BusinessNameVerified, risk.TinMatch}
	for tag, tagged := range sandboxTags {
		if strings.Contains(data.Name, tag) {
			codes = append(codes, tagged...)
		}
	}
	ref := uuid.NewString()
	c.mu.Lock()
	c.orders[ref] = &sandboxOrder{codes: codes}
	c.mu.Unlock()
	return &Submission{Reference: ref}, nil
}

func (c *SandboxClient) Poll(_ context.Context, reference string) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[reference]
	if !ok {
		return nil, vendors.NewError(vendors.ErrorBadData, c.name, "unknown reference "+reference, nil)
	}
	order.polls++
	if order.polls <= c.PendingPolls {
		return &Report{Ready: false}, nil
	}
	return &Report{Ready: true, ReasonCodes: order.codes}, nil
}
