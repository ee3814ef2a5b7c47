// Package kyc runs identity verification vendors for a decision intent.
package kyc

import (
	"context"
	"strings"

	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
)

// Client is one identity vendor.
type Client interface {
	Name() vendors.Name
	API() vendors.API
	Verify(ctx context.Context, data vault.IdentityData) (*Response, error)
}

// Response is the normalized vendor answer. It is what gets sealed into the
// verification result and decoded again on reuse.
type Response struct {
	ReasonCodes []risk.ReasonCode `json:"reason_codes"`
}

// Sandbox tags recognized in the email local part, e.g. "jane#stepup@example.com".
var sandboxTags = map[string][]risk.ReasonCode{
	"#fail":     {risk.WatchlistHitOfac},
	"#review":   {risk.WatchlistHitPep},
	"#stepup":   {risk.IdentityNotLocated},
	"#poa":      {risk.AddressDoesNotMatch},
	"#ssn":      {risk.SsnPartiallyMatches},
	"#deceased": {risk.SubjectDeceased},
}

// SandboxClient answers from tags in the applicant's email. Codes, when set, override
// the tags.
type SandboxClient struct {
	name  vendors.Name
	api   vendors.API
	Codes []risk.ReasonCode
}

func NewSandboxClient(name vendors.Name, api vendors.API) *SandboxClient {
	return &SandboxClient{name: name, api: api}
}

func (c *SandboxClient) Name() vendors.Name { return c.name }
func (c *SandboxClient) API() vendors.API   { return c.api }

func (c *SandboxClient) Verify(_ context.Context, data vault.IdentityData) (*Response, error) {
	if c.Codes != nil {
		return &Response{ReasonCodes: c.Codes}, nil
	}
	codes := []risk.ReasonCode{risk.IdentityCoreMatched}
	local, _, _ := strings.Cut(data.Email, "@")
	for tag, tagged := range sandboxTags {
		if strings.Contains(local, tag) {
			codes = append(codes, tagged...)
		}
	}
	return &Response{ReasonCodes: codes}, nil
}
