package workflow

import (
	"fmt"
	"sync"

	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/pkg/schema"
)

// Canonical validator names wired into the default rule table.
const (
	ValidatorRequiredDocuments  = "required_documents"
	ValidatorIdentityConfidence = "identity_confidence"
	ValidatorRiskRating         = "risk_rating"
	ValidatorFundingSources     = "funding_sources"
)

// identityConfidenceThreshold is the minimum provider confidence accepted
// before identity verification may advance the workflow.
const identityConfidenceThreshold = 70.0

// Validator checks a transition's event data against the workflow. Validators
// run sequentially in rule order; the first failure aborts the transition.
type Validator func(wf *store.WorkflowInstance, eventData map[string]any) schema.ValidationResult

// ValidatorRegistry holds named validators. Business checks are registered by
// name so the transition graph can reference them without linking to their
// implementations — mocks swap in without touching the table.
type ValidatorRegistry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

// NewValidatorRegistry returns a registry pre-populated with the canonical
// validators.
func NewValidatorRegistry() *ValidatorRegistry {
	r := &ValidatorRegistry{validators: make(map[string]Validator)}
	r.Register(ValidatorRequiredDocuments, validateRequiredDocuments)
	r.Register(ValidatorIdentityConfidence, validateIdentityConfidence)
	r.Register(ValidatorRiskRating, validateRiskRating)
	r.Register(ValidatorFundingSources, validateFundingSources)
	return r
}

// Register adds or replaces a named validator.
func (r *ValidatorRegistry) Register(name string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[name] = v
}

// Run executes a named validator. An unregistered name is itself a failure:
// a rule referencing a missing validator must never silently pass.
func (r *ValidatorRegistry) Run(name string, wf *store.WorkflowInstance, eventData map[string]any) schema.ValidationResult {
	r.mu.RLock()
	v, ok := r.validators[name]
	r.mu.RUnlock()
	if !ok {
		return schema.ValidationResult{
			Name:    name,
			Status:  schema.ValidationFailed,
			Message: fmt.Sprintf("validator %q not registered", name),
		}
	}
	return v(wf, eventData)
}

func validateRequiredDocuments(_ *store.WorkflowInstance, eventData map[string]any) schema.ValidationResult {
	docs, ok := eventData["documents"].([]any)
	if !ok || len(docs) == 0 {
		return schema.ValidationResult{
			Name:    ValidatorRequiredDocuments,
			Status:  schema.ValidationFailed,
			Message: "at least one document must be submitted",
		}
	}
	return schema.ValidationResult{Name: ValidatorRequiredDocuments, Status: schema.ValidationPassed}
}

func validateIdentityConfidence(_ *store.WorkflowInstance, eventData map[string]any) schema.ValidationResult {
	confidence, ok := toFloat(eventData["confidence"])
	if !ok {
		return schema.ValidationResult{
			Name:    ValidatorIdentityConfidence,
			Status:  schema.ValidationFailed,
			Message: "identity verification confidence missing",
		}
	}
	if confidence < identityConfidenceThreshold {
		return schema.ValidationResult{
			Name:    ValidatorIdentityConfidence,
			Status:  schema.ValidationFailed,
			Message: fmt.Sprintf("identity confidence %.1f below threshold %.0f", confidence, identityConfidenceThreshold),
		}
	}
	if confidence < 85 {
		return schema.ValidationResult{
			Name:    ValidatorIdentityConfidence,
			Status:  schema.ValidationWarning,
			Message: fmt.Sprintf("identity confidence %.1f passed with low margin", confidence),
		}
	}
	return schema.ValidationResult{Name: ValidatorIdentityConfidence, Status: schema.ValidationPassed}
}

func validateRiskRating(_ *store.WorkflowInstance, eventData map[string]any) schema.ValidationResult {
	level, _ := eventData["risk_level"].(string)
	switch schema.RiskLevel(level) {
	case schema.RiskLevelLow, schema.RiskLevelMedium, schema.RiskLevelHigh, schema.RiskLevelCritical:
		return schema.ValidationResult{Name: ValidatorRiskRating, Status: schema.ValidationPassed}
	}
	return schema.ValidationResult{
		Name:    ValidatorRiskRating,
		Status:  schema.ValidationFailed,
		Message: fmt.Sprintf("risk assessment produced no valid risk rating (got %q)", level),
	}
}

func validateFundingSources(_ *store.WorkflowInstance, eventData map[string]any) schema.ValidationResult {
	sources, ok := eventData["funding_sources"].([]any)
	if !ok || len(sources) == 0 {
		return schema.ValidationResult{
			Name:    ValidatorFundingSources,
			Status:  schema.ValidationFailed,
			Message: "at least one funding source must be configured",
		}
	}
	return schema.ValidationResult{Name: ValidatorFundingSources, Status: schema.ValidationPassed}
}

// toFloat normalizes JSON-decoded numerics.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
