// Package risk defines the normalized reason codes vendors are mapped into. Rule sets only
// ever see these codes, never vendor payloads.
package risk

import "sort"

// ReasonCode is a normalized vendor finding.
type ReasonCode string

const (
	// Identity (KYC) findings
	SsnDoesNotMatch        ReasonCode = "ssn_does_not_match"
	SsnPartiallyMatches    ReasonCode = "ssn_partially_matches"
	NameDoesNotMatch       ReasonCode = "name_does_not_match"
	DobDoesNotMatch        ReasonCode = "dob_does_not_match"
	AddressDoesNotMatch    ReasonCode = "address_does_not_match"
	IdentityNotLocated     ReasonCode = "identity_not_located"
	SubjectDeceased        ReasonCode = "subject_deceased"
	WatchlistHitOfac       ReasonCode = "watchlist_hit_ofac"
	WatchlistHitPep        ReasonCode = "watchlist_hit_pep"
	AdverseMediaHit        ReasonCode = "adverse_media_hit"
	AddressHighRisk        ReasonCode = "address_high_risk"
	InputPhoneNumberVoip   ReasonCode = "phone_number_voip"
	IdentityCoreMatched    ReasonCode = "identity_core_matched"
	SsnIssuedPriorToDob    ReasonCode = "ssn_issued_prior_to_dob"
	MultipleRecordsFound   ReasonCode = "multiple_records_found"
	IdentityThinFileSignal ReasonCode = "identity_thin_file"

	// Document findings
	DocumentVerified             ReasonCode = "document_verified"
	DocumentNotVerified          ReasonCode = "document_not_verified"
	DocumentExpired              ReasonCode = "document_expired"
	DocumentBarcodeUnreadable    ReasonCode = "document_barcode_unreadable"
	DocumentPossibleFakeImage    ReasonCode = "document_possible_fake_image"
	DocumentSelfieDoesNotMatch   ReasonCode = "document_selfie_does_not_match"
	DocumentOcrNameDoesNotMatch  ReasonCode = "document_ocr_name_does_not_match"
	DocumentOcrDobDoesNotMatch   ReasonCode = "document_ocr_dob_does_not_match"
	DocumentLivenessCheckFailed  ReasonCode = "document_liveness_check_failed"
	DocumentUploadAttemptsExceed ReasonCode = "document_upload_attempts_exceeded"

	// Business (KYB) findings
	BusinessNameVerified         ReasonCode = "business_name_verified"
	BusinessNameDoesNotMatch     ReasonCode = "business_name_does_not_match"
	BusinessAddressDoesNotMatch  ReasonCode = "business_address_does_not_match"
	TinMatch                     ReasonCode = "tin_match"
	TinDoesNotMatch              ReasonCode = "tin_does_not_match"
	BusinessWatchlistHit         ReasonCode = "business_watchlist_hit"
	BusinessInactive             ReasonCode = "business_inactive"
	BeneficialOwnersFailedKyc    ReasonCode = "beneficial_owners_failed_kyc"
	BeneficialOwnersPendingKyc   ReasonCode = "beneficial_owners_pending_kyc"
	BusinessSecretaryOfStateHold ReasonCode = "business_sos_hold"
)

// Scope groups signals by the category of evidence that produced them.
type Scope string

const (
	ScopeIdentity Scope = "identity"
	ScopeDocument Scope = "document"
	ScopeBusiness Scope = "business"
)

// Signal is one reason code attributed to the vendor that raised it.
type Signal struct {
	Code   ReasonCode
	Vendor string
	Scope  Scope
}

// Set is an unordered collection of reason codes.
type Set map[ReasonCode]struct{}

func NewSet(codes ...ReasonCode) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Has(code ReasonCode) bool {
	_, ok := s[code]
	return ok
}

// HasAny reports whether at least one of codes is present.
func (s Set) HasAny(codes ...ReasonCode) bool {
	for _, c := range codes {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Sorted returns the codes as sorted strings, for stable persistence and CEL activations.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

// FromSignals collects the codes of signals whose vendor matches, or all when vendor is "".
func FromSignals(signals []Signal, vendor string) Set {
	s := make(Set, len(signals))
	for _, sig := range signals {
		if vendor == "" || sig.Vendor == vendor {
			s[sig.Code] = struct{}{}
		}
	}
	return s
}
