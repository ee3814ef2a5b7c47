package verification

import (
	"context"
	"encoding/json"
	"fmt"

	"onboarding/internal/vendors"
	dErrors "onboarding/pkg/domain-errors"
)

// Do reuses the latest successful result for req's owner, API, and input key, or performs
// the guarded call and records it right away. Hard failures come back as CodeVendor.
func Do[R any](ctx context.Context, r *Recorder, g *vendors.Guard, req Request, fn func(context.Context) (*R, error)) (*R, error) {
	raw, ok, err := r.Reusable(ctx, Lookup{Owner: req.Owner, API: req.API, InputKey: req.InputKey})
	if err != nil {
		return nil, err
	}
	if ok {
		var out R
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDataIntegrity, fmt.Sprintf("decode stored %s response", req.API))
		}
		return &out, nil
	}

	resp, callErr := vendors.Call(ctx, g, req.API, fn)
	var payload []byte
	if callErr == nil {
		if payload, err = json.Marshal(resp); err != nil {
			return nil, fmt.Errorf("encode %s response: %w", req.API, err)
		}
	}
	if err := r.Record(ctx, req, payload, callErr); err != nil {
		if callErr == nil {
			return nil, err
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "failed to record vendor call", "api", req.API, "error", err)
		}
	}
	if callErr != nil {
		return nil, dErrors.Wrap(callErr, dErrors.CodeVendor, fmt.Sprintf("%s %s failed", req.Vendor, req.API))
	}
	return resp, nil
}
