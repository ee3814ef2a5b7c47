package decision

import (
	"fmt"

	"onboarding/internal/risk"
)

const (
	RuleSetKyc      = "kyc"
	RuleSetDocument = "document"
	RuleSetKyb      = "kyb"
)

func has(code risk.ReasonCode) func(risk.Set) bool {
	return func(s risk.Set) bool { return s.Has(code) }
}

func kycRule(name string, code risk.ReasonCode, action Action) Rule[KycFeatures] {
	pred := has(code)
	return Rule[KycFeatures]{Name: name, Action: action, Predicate: func(f KycFeatures) bool { return pred(f.Signals) }}
}

func docRule(name string, code risk.ReasonCode, action Action) Rule[DocumentFeatures] {
	pred := has(code)
	return Rule[DocumentFeatures]{Name: name, Action: action, Predicate: func(f DocumentFeatures) bool { return pred(f.Signals) }}
}

func kybRule(name string, code risk.ReasonCode, action Action) Rule[KybFeatures] {
	pred := has(code)
	return Rule[KybFeatures]{Name: name, Action: action, Predicate: func(f KybFeatures) bool { return pred(f.Signals) }}
}

// KycRules is the built-in identity rule set evaluated per KYC vendor.
func KycRules() RuleSet[KycFeatures] {
	return RuleSet[KycFeatures]{
		Name: RuleSetKyc,
		Rules: []Rule[KycFeatures]{
			kycRule("subject_deceased", risk.SubjectDeceased, Fail),
			kycRule("watchlist_hit_ofac", risk.WatchlistHitOfac, Fail),
			kycRule("ssn_does_not_match", risk.SsnDoesNotMatch, Fail),
			kycRule("ssn_issued_prior_to_dob", risk.SsnIssuedPriorToDob, Fail),
			kycRule("watchlist_hit_pep", risk.WatchlistHitPep, ManualReview),
			kycRule("adverse_media_hit", risk.AdverseMediaHit, ManualReview),
			kycRule("identity_not_located", risk.IdentityNotLocated, StepUp(StepUpIdentity)),
			kycRule("name_does_not_match", risk.NameDoesNotMatch, StepUp(StepUpIdentity)),
			kycRule("dob_does_not_match", risk.DobDoesNotMatch, StepUp(StepUpIdentity)),
			kycRule("address_does_not_match", risk.AddressDoesNotMatch, StepUp(StepUpProofOfAddress)),
			kycRule("ssn_partially_matches", risk.SsnPartiallyMatches, StepUp(StepUpIdentityProofOfSsn)),
		},
	}
}

// DocumentRules is the built-in rule set over document verification outcomes.
func DocumentRules() RuleSet[DocumentFeatures] {
	return RuleSet[DocumentFeatures]{
		Name: RuleSetDocument,
		Rules: []Rule[DocumentFeatures]{
			docRule("document_not_verified", risk.DocumentNotVerified, Fail),
			docRule("document_possible_fake_image", risk.DocumentPossibleFakeImage, Fail),
			docRule("document_selfie_does_not_match", risk.DocumentSelfieDoesNotMatch, Fail),
			docRule("document_expired", risk.DocumentExpired, Fail),
			docRule("document_liveness_check_failed", risk.DocumentLivenessCheckFailed, Fail),
			docRule("document_upload_attempts_exceeded", risk.DocumentUploadAttemptsExceed, Fail),
			docRule("document_ocr_name_does_not_match", risk.DocumentOcrNameDoesNotMatch, ManualReview),
			docRule("document_ocr_dob_does_not_match", risk.DocumentOcrDobDoesNotMatch, ManualReview),
			docRule("document_barcode_unreadable", risk.DocumentBarcodeUnreadable, ManualReview),
		},
	}
}

// KybRules is the built-in business rule set evaluated per KYB vendor.
func KybRules() RuleSet[KybFeatures] {
	return RuleSet[KybFeatures]{
		Name: RuleSetKyb,
		Rules: []Rule[KybFeatures]{
			kybRule("tin_does_not_match", risk.TinDoesNotMatch, Fail),
			kybRule("business_inactive", risk.BusinessInactive, Fail),
			kybRule("business_watchlist_hit", risk.BusinessWatchlistHit, ManualReview),
			kybRule("business_name_does_not_match", risk.BusinessNameDoesNotMatch, ManualReview),
			kybRule("business_address_does_not_match", risk.BusinessAddressDoesNotMatch, ManualReview),
			kybRule("business_sos_hold", risk.BusinessSecretaryOfStateHold, ManualReview),
			{
				Name:   "beneficial_owners_failed_kyc",
				Action: ManualReview,
				Predicate: func(f KybFeatures) bool {
					return f.BoKycPassed < f.BoKycTotal-f.BoKycIncomplete
				},
			},
			{
				Name:   "beneficial_owners_incomplete_kyc",
				Action: ManualReview,
				Predicate: func(f KybFeatures) bool {
					return f.BoKycIncomplete > 0
				},
			},
		},
	}
}

// RuleBook bundles the rule sets a deployment evaluates.
type RuleBook struct {
	Kyc      RuleSet[KycFeatures]
	Document RuleSet[DocumentFeatures]
	Kyb      RuleSet[KybFeatures]
}

func DefaultRuleBook() *RuleBook {
	return &RuleBook{Kyc: KycRules(), Document: DocumentRules(), Kyb: KybRules()}
}

// NewRuleBook appends the compiled rules from file to the built-in sets.
func NewRuleBook(file *RulesFile) (*RuleBook, error) {
	book := DefaultRuleBook()
	if file == nil || len(file.RuleSets) == 0 {
		return book, nil
	}
	compiler, err := NewCELCompiler()
	if err != nil {
		return nil, err
	}
	kyc, err := compileDefs[KycFeatures](compiler, file.RuleSets[RuleSetKyc])
	if err != nil {
		return nil, fmt.Errorf("kyc rules: %w", err)
	}
	doc, err := compileDefs[DocumentFeatures](compiler, file.RuleSets[RuleSetDocument])
	if err != nil {
		return nil, fmt.Errorf("document rules: %w", err)
	}
	kyb, err := compileDefs[KybFeatures](compiler, file.RuleSets[RuleSetKyb])
	if err != nil {
		return nil, fmt.Errorf("kyb rules: %w", err)
	}
	book.Kyc = book.Kyc.With(kyc...)
	book.Document = book.Document.With(doc...)
	book.Kyb = book.Kyb.With(kyb...)
	return book, nil
}
