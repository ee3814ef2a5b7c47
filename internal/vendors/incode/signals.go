package incode

import (
	"strings"

	"onboarding/internal/risk"
	"onboarding/internal/vault"
	"onboarding/internal/vendors/incode/models"
)

var flagSignals = map[string]risk.ReasonCode{
	"expired":            risk.DocumentExpired,
	"fake_image":         risk.DocumentPossibleFakeImage,
	"barcode_unreadable": risk.DocumentBarcodeUnreadable,
	"selfie_mismatch":    risk.DocumentSelfieDoesNotMatch,
	"liveness_failed":    risk.DocumentLivenessCheckFailed,
}

// deriveSignals turns scores and OCR output into document reason codes. OCR fields are
// compared with the collected identity when one is available.
func deriveSignals(scores *models.Scores, ocr models.FetchOCRResponse, identity *vault.IdentityData) []risk.ReasonCode {
	var out []risk.ReasonCode
	if scores != nil && scores.Overall == "OK" {
		out = append(out, risk.DocumentVerified)
	} else {
		out = append(out, risk.DocumentNotVerified)
	}
	if scores != nil {
		for _, flag := range scores.Flags {
			if code, ok := flagSignals[flag]; ok {
				out = append(out, code)
			}
		}
	}
	if identity == nil {
		return out
	}
	if ocr.FirstName != "" && !sameName(ocr.FirstName, identity.FirstName) ||
		ocr.LastName != "" && !sameName(ocr.LastName, identity.LastName) {
		out = append(out, risk.DocumentOcrNameDoesNotMatch)
	}
	if ocr.Dob != "" && identity.Dob != "" && ocr.Dob != identity.Dob {
		out = append(out, risk.DocumentOcrDobDoesNotMatch)
	}
	return out
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
