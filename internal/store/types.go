package store

import (
	"encoding/json"
	"time"

	"github.com/meridianfs/onboard/pkg/schema"
)

// WorkflowInstance is the state-machine root aggregate for one onboarding.
// Invariant: CurrentState equals the ToState of the last entry in Transitions,
// or StateInitiated if the log is empty.
type WorkflowInstance struct {
	ID            string               `json:"id"`
	ClientID      string               `json:"client_id"`
	TenantID      string               `json:"tenant_id"`
	CurrentState  schema.WorkflowState `json:"current_state"`
	PreviousState schema.WorkflowState `json:"previous_state,omitempty"`
	StateData     map[string]any       `json:"state_data,omitempty"`
	Transitions   []TransitionRecord   `json:"transitions"`
	Metadata      WorkflowMetadata     `json:"metadata"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// WorkflowMetadata carries the client and regulatory context of a workflow.
type WorkflowMetadata struct {
	ClientType             schema.ClientType  `json:"client_type"`
	AccountType            schema.AccountType `json:"account_type"`
	Jurisdiction           string             `json:"jurisdiction,omitempty"`
	RegulatoryRequirements []string           `json:"regulatory_requirements,omitempty"`
}

// TransitionRecord is one committed state transition.
type TransitionRecord struct {
	ID                string                    `json:"id"`
	FromState         schema.WorkflowState      `json:"from_state"`
	ToState           schema.WorkflowState      `json:"to_state"`
	Event             schema.WorkflowEvent      `json:"event"`
	TriggeredBy       string                    `json:"triggered_by"`
	ApprovedBy        string                    `json:"approved_by,omitempty"`
	ValidationResults []schema.ValidationResult `json:"validation_results,omitempty"`
	Timestamp         time.Time                 `json:"timestamp"`
}

// Event is an immutable entry in the transition event log.
type Event struct {
	ID         int64           `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	StepID     string          `json:"step_id,omitempty"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// AuditEntry is an immutable record of an operator or system action.
type AuditEntry struct {
	ID           int64           `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	TenantID string                `json:"tenant_id,omitempty"`
	ClientID string                `json:"client_id,omitempty"`
	State    *schema.WorkflowState `json:"state,omitempty"`
	Since    *time.Time            `json:"since,omitempty"`
	Limit    int                   `json:"limit,omitempty"`
}
