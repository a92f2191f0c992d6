package verify

import (
	"context"
	"time"
)

// Confidence bands shared by both engines: below the floor a check fails,
// between floor and clear band it needs human review.
const (
	confidenceFloor = 70.0
	confidenceClear = 85.0
)

// ProviderResult is what a verification provider returns for one check. The
// core consumes only the status and confidence; the provider's scoring is
// opaque.
type ProviderResult struct {
	Status     ResultStatus   `json:"status"`
	Confidence float64        `json:"confidence"`
	Details    map[string]any `json:"details,omitempty"`
}

// Provider is the external verification boundary. Implementations wrap a real
// vendor API; ref identifies the session or document being checked.
type Provider interface {
	Verify(ctx context.Context, ref string, check CheckType, capture map[string]any) (*ProviderResult, error)
}

// StaticProvider is a deterministic Provider for development and tests. It
// grades by the confidence supplied in the capture data (key "confidence",
// default 95) using the shared bands, so test scenarios choose their outcome
// explicitly instead of relying on randomness.
type StaticProvider struct{}

func (StaticProvider) Verify(_ context.Context, _ string, _ CheckType, capture map[string]any) (*ProviderResult, error) {
	confidence := 95.0
	if v, ok := capture["confidence"]; ok {
		switch n := v.(type) {
		case float64:
			confidence = n
		case int:
			confidence = float64(n)
		}
	}
	return &ProviderResult{Status: gradeConfidence(confidence), Confidence: confidence}, nil
}

// gradeConfidence maps a confidence score to a result status.
func gradeConfidence(confidence float64) ResultStatus {
	switch {
	case confidence < confidenceFloor:
		return ResultFailed
	case confidence < confidenceClear:
		return ResultReviewRequired
	default:
		return ResultPassed
	}
}

func newCheckResult(ct CheckType, pr *ProviderResult) *CheckResult {
	return &CheckResult{
		Type:        ct,
		Status:      pr.Status,
		Confidence:  pr.Confidence,
		Details:     pr.Details,
		CompletedAt: time.Now().UTC(),
	}
}
