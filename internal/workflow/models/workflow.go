package models

import (
	"encoding/json"
	"fmt"
	"time"

	id "onboarding/pkg/domain"
)

// Config holds the immutable per-kind parameters fixed at creation. The variants are
// KycConfig, KybConfig, and DocumentConfig.
type Config interface {
	Kind() Kind
	isConfig()
}

type KycConfig struct {
	// SkipKyc decides on the document outcome alone; identity vendors are never called.
	SkipKyc bool `json:"skip_kyc"`
	// DocumentType is requested when the decision steps up to a document.
	DocumentType string `json:"document_type,omitempty"`
}

type KybConfig struct {
	// SkipBoKyc decides without waiting for beneficial owner KYC.
	SkipBoKyc bool `json:"skip_bo_kyc"`
}

type DocumentConfig struct {
	DocumentType string `json:"document_type"`
}

func (KycConfig) Kind() Kind      { return KindKyc }
func (KycConfig) isConfig()       {}
func (KybConfig) Kind() Kind      { return KindKyb }
func (KybConfig) isConfig()       {}
func (DocumentConfig) Kind() Kind { return KindDocument }
func (DocumentConfig) isConfig()  {}

// MarshalConfig encodes the variant payload; the kind is stored alongside.
func MarshalConfig(c Config) ([]byte, error) {
	return json.Marshal(c)
}

func UnmarshalConfig(kind Kind, data []byte) (Config, error) {
	var (
		c   Config
		err error
	)
	switch kind {
	case KindKyc:
		var v KycConfig
		err = json.Unmarshal(data, &v)
		c = v
	case KindKyb:
		var v KybConfig
		err = json.Unmarshal(data, &v)
		c = v
	case KindDocument:
		var v DocumentConfig
		err = json.Unmarshal(data, &v)
		c = v
	default:
		return nil, fmt.Errorf("unknown workflow kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s config: %w", kind, err)
	}
	return c, nil
}

// Workflow is one verification run.
type Workflow struct {
	ID            id.WorkflowID
	Kind          Kind
	State         State
	Config        Config
	TenantID      id.TenantID
	ScopedVaultID id.ScopedVaultID
	OnboardingID  id.OnboardingID
	// ParentID is set on beneficial owner KYC workflows spawned by a KYB workflow.
	ParentID    *id.WorkflowID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	// NextRunAt is the earliest time the scheduler applies the default action again.
	NextRunAt time.Time
}

// Validate checks that state and config carry the workflow's kind tag. A mismatch means
// the row is corrupt.
func (w *Workflow) Validate() error {
	if w.State == nil || w.State.Kind() != w.Kind {
		return UnexpectedStateForWorkflow(w.ID, w.Kind, w.State)
	}
	if w.Config == nil || w.Config.Kind() != w.Kind {
		return UnexpectedConfigForWorkflow(w.ID, w.Kind, w.Config)
	}
	return nil
}

func (w *Workflow) IsComplete() bool {
	return IsComplete(w.State)
}

// NewWorkflow creates a workflow in its kind's initial state.
func NewWorkflow(config Config, tenant id.TenantID, sv id.ScopedVaultID, onboarding id.OnboardingID, now time.Time) (*Workflow, error) {
	if config == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	state, err := InitialState(config.Kind())
	if err != nil {
		return nil, err
	}
	return &Workflow{
		ID:            id.NewWorkflowID(),
		Kind:          config.Kind(),
		State:         state,
		Config:        config,
		TenantID:      tenant,
		ScopedVaultID: sv,
		OnboardingID:  onboarding,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextRunAt:     now,
	}, nil
}
