package decision

import "onboarding/internal/risk"

// KycFeatures is the identity feature vector produced by a single KYC vendor.
type KycFeatures struct {
	Vendor  string
	Signals risk.Set
}

// DocumentFeatures is derived from a completed document verification session.
type DocumentFeatures struct {
	Signals       risk.Set
	DocumentType  string
	IDScore       float64
	LivenessScore float64
	FaceMatch     float64
}

// KybFeatures is the business feature vector produced by a single KYB vendor, plus the
// aggregate beneficial owner outcome.
type KybFeatures struct {
	Vendor          string
	Signals         risk.Set
	BoKycTotal      int
	BoKycPassed     int
	BoKycIncomplete int
}

// Activator exposes a feature vector to CEL rule expressions.
type Activator interface {
	Activation() map[string]any
}

func (f KycFeatures) Activation() map[string]any {
	return map[string]any{
		"vendor":       f.Vendor,
		"reason_codes": f.Signals.Sorted(),
		"scores":       map[string]float64{},
	}
}

func (f DocumentFeatures) Activation() map[string]any {
	return map[string]any{
		"vendor":       "incode",
		"reason_codes": f.Signals.Sorted(),
		"scores": map[string]float64{
			"id":         f.IDScore,
			"liveness":   f.LivenessScore,
			"face_match": f.FaceMatch,
		},
	}
}

func (f KybFeatures) Activation() map[string]any {
	return map[string]any{
		"vendor":       f.Vendor,
		"reason_codes": f.Signals.Sorted(),
		"scores": map[string]float64{
			"bo_kyc_total":  float64(f.BoKycTotal),
			"bo_kyc_passed": float64(f.BoKycPassed),
		},
	}
}
