// Package verify implements the identity verification and document
// collection engines. Both run their checks through an injected provider
// port and aggregate results only after every check has settled.
package verify

import "time"

// CheckType names one verification sub-process.
type CheckType string

const (
	CheckDocumentAuthenticity CheckType = "DOCUMENT_AUTHENTICITY"
	CheckLiveness             CheckType = "LIVENESS"
	CheckKBA                  CheckType = "KBA"
)

// ResultStatus is the settled outcome of one check.
type ResultStatus string

const (
	ResultPassed         ResultStatus = "PASSED"
	ResultFailed         ResultStatus = "FAILED"
	ResultReviewRequired ResultStatus = "REVIEW_REQUIRED"
)

// SessionStatus is the lifecycle state of an identity session.
type SessionStatus string

const (
	SessionPending        SessionStatus = "PENDING"
	SessionInProgress     SessionStatus = "IN_PROGRESS"
	SessionPassed         SessionStatus = "PASSED"
	SessionFailed         SessionStatus = "FAILED"
	SessionReviewRequired SessionStatus = "REVIEW_REQUIRED"
)

// CheckResult is the recorded outcome of one check run.
type CheckResult struct {
	Type        CheckType      `json:"type"`
	Status      ResultStatus   `json:"status"`
	Confidence  float64        `json:"confidence"`
	Details     map[string]any `json:"details,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// IdentitySession groups the checks run against one client's identity.
type IdentitySession struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	ClientID    string         `json:"client_id"`
	Status      SessionStatus  `json:"status"`
	Checks      []CheckType    `json:"checks"`
	Results     []*CheckResult `json:"results,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Result returns the session's result for a check type, or nil.
func (s *IdentitySession) Result(ct CheckType) *CheckResult {
	for _, r := range s.Results {
		if r.Type == ct {
			return r
		}
	}
	return nil
}

// DocumentType classifies a submitted document.
type DocumentType string

const (
	DocPassport       DocumentType = "PASSPORT"
	DocDriversLicense DocumentType = "DRIVERS_LICENSE"
	DocUtilityBill    DocumentType = "UTILITY_BILL"
	DocBankStatement  DocumentType = "BANK_STATEMENT"
	DocFormation      DocumentType = "FORMATION_DOCUMENTS"
)

// DocumentStatus is the lifecycle state of a submitted document.
type DocumentStatus string

const (
	DocSubmitted      DocumentStatus = "SUBMITTED"
	DocVerified       DocumentStatus = "VERIFIED"
	DocRejected       DocumentStatus = "REJECTED"
	DocReviewRequired DocumentStatus = "REVIEW_REQUIRED"
)

// Document is one submitted client document.
type Document struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Type        DocumentType   `json:"type"`
	FileName    string         `json:"file_name"`
	Status      DocumentStatus `json:"status"`
	Result      *CheckResult   `json:"result,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// BatchResult is the aggregate of one batch verification run, computed only
// after every document's check has settled.
type BatchResult struct {
	WorkflowID     string      `json:"workflow_id"`
	Documents      []*Document `json:"documents"`
	HasFailures    bool        `json:"has_failures"`
	RequiresReview bool        `json:"requires_review"`
	Passed         bool        `json:"passed"`
}
