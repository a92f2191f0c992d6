package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeWorkflowNotFound  = "WORKFLOW_NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeConditionsNotMet  = "CONDITIONS_NOT_MET"
	ErrCodeApprovalRequired  = "APPROVAL_REQUIRED"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeStepFailed        = "STEP_FAILED"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeCircuitOpen       = "CIRCUIT_OPEN"
)

// OnboardError is the structured error type for all onboarding operations.
type OnboardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *OnboardError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *OnboardError) Unwrap() error {
	return e.Cause
}

// NewError creates a new OnboardError.
func NewError(code, message string) *OnboardError {
	return &OnboardError{Code: code, Message: message}
}

// NewErrorf creates a new OnboardError with a formatted message.
func NewErrorf(code, format string, args ...any) *OnboardError {
	return &OnboardError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *OnboardError) WithStep(stepID string) *OnboardError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *OnboardError) WithCause(err error) *OnboardError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *OnboardError) WithDetails(details map[string]any) *OnboardError {
	e.Details = details
	return e
}
