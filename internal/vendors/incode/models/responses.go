package models

// Vendor response payloads. They are persisted (sealed) as the verification result and
// decoded again when a retried step reuses a durable result.

type StartOnboardingResponse struct {
	Token       string `json:"token"`
	InterviewID string `json:"interviewId"`
}

type AddConsentResponse struct {
	Success bool `json:"success"`
}

type AddSideResponse struct {
	Classification bool   `json:"classification"`
	Sharpness      int    `json:"sharpness"`
	Glare          int    `json:"glare"`
	TypeOfID       string `json:"typeOfId,omitempty"`
	Failure        string `json:"failureReason,omitempty"`
}

var sideFailures = map[string]FailureReason{
	"BLURRY":                FailureBlurry,
	"GLARE":                 FailureGlare,
	"WRONG_SIDE":            FailureWrongSide,
	"DOCUMENT_NOT_FOUND":    FailureDocumentNotFound,
	"UNSUPPORTED_DOCUMENT":  FailureUnsupportedDocument,
	"WRONG_DOCUMENT_TYPE":   FailureWrongDocumentType,
	"fail_classification":   FailureUnsupportedDocument,
	"shift_sharpness_check": FailureBlurry,
}

// FailureReason maps the vendor's rejection to a recoverable failure, or nil when the
// image was accepted.
func (r AddSideResponse) FailureReason() *FailureReason {
	if r.Failure != "" {
		reason, ok := sideFailures[r.Failure]
		if !ok {
			reason = FailureDocumentNotFound
		}
		return &reason
	}
	if !r.Classification {
		reason := FailureUnsupportedDocument
		return &reason
	}
	return nil
}

type ProcessIDResponse struct {
	Success bool `json:"success"`
}

type FetchScoresResponse struct {
	IDScore       float64  `json:"idScore"`
	LivenessScore float64  `json:"livenessScore"`
	FaceMatch     float64  `json:"faceRecognitionScore"`
	Overall       string   `json:"overall"`
	Flags         []string `json:"flags,omitempty"`
}

type FetchOCRResponse struct {
	FirstName      string `json:"name"`
	LastName       string `json:"surName"`
	Dob            string `json:"birthDate"`
	DocumentNumber string `json:"documentNumber"`
	ExpirationDate string `json:"expireAt"`
}
