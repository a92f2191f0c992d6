package workflow

import (
	"time"

	"github.com/meridianfs/onboard/pkg/schema"
)

// TransitionRule maps a (fromState, event) pair to its unique target state.
// Business logic is injected by validator name so the transition graph stays
// a pure, statically inspectable table.
type TransitionRule struct {
	From             schema.WorkflowState
	Event            schema.WorkflowEvent
	To               schema.WorkflowState
	Validators       []string
	Condition        string // CEL expression over workflow/event, empty = unconditional
	RequiresApproval bool
	AutoTransition   bool
	AutoDelay        time.Duration // delay before the auto-transition signal, 0 = default
}

type ruleKey struct {
	from  schema.WorkflowState
	event schema.WorkflowEvent
}

// RuleSet is the transition table. At most one rule exists per
// (fromState, event) pair.
type RuleSet struct {
	rules map[ruleKey]*TransitionRule
}

// NewRuleSet builds a RuleSet from the given rules.
// Duplicate (fromState, event) pairs are rejected.
func NewRuleSet(rules []TransitionRule) (*RuleSet, error) {
	rs := &RuleSet{rules: make(map[ruleKey]*TransitionRule, len(rules))}
	for i := range rules {
		r := rules[i]
		key := ruleKey{r.From, r.Event}
		if _, exists := rs.rules[key]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeConflict,
				"duplicate transition rule for (%s, %s)", r.From, r.Event)
		}
		rs.rules[key] = &r
	}
	return rs, nil
}

// Lookup returns the rule for (from, event), or false if none is wired.
func (rs *RuleSet) Lookup(from schema.WorkflowState, event schema.WorkflowEvent) (*TransitionRule, bool) {
	r, ok := rs.rules[ruleKey{from, event}]
	return r, ok
}

// EventsFrom returns every event with a rule keyed to the given state.
func (rs *RuleSet) EventsFrom(from schema.WorkflowState) []schema.WorkflowEvent {
	var out []schema.WorkflowEvent
	for key := range rs.rules {
		if key.from == from {
			out = append(out, key.event)
		}
	}
	return out
}

// nonTerminalStates is every state the universal side-exit events are wired from.
var nonTerminalStates = []schema.WorkflowState{
	schema.StateInitiated,
	schema.StateDocumentCollection,
	schema.StateDocumentVerification,
	schema.StateIdentityVerification,
	schema.StateKYCProcessing,
	schema.StateAMLScreening,
	schema.StateRiskAssessment,
	schema.StateSuitabilityReview,
	schema.StateComplianceReview,
	schema.StateAccountSetup,
	schema.StateFundingSetup,
	schema.StateFinalApproval,
	schema.StateSuspended,
}

// DefaultRules returns the canonical onboarding transition table: the
// thirteen-stage happy path, the universal side exits from every non-terminal
// state, and the resume path out of SUSPENDED.
func DefaultRules() *RuleSet {
	rules := []TransitionRule{
		{
			From:  schema.StateInitiated,
			Event: schema.EventStartOnboarding,
			To:    schema.StateDocumentCollection,
		},
		{
			From:       schema.StateDocumentCollection,
			Event:      schema.EventDocumentsSubmitted,
			To:         schema.StateDocumentVerification,
			Validators: []string{ValidatorRequiredDocuments},
		},
		{
			From:           schema.StateDocumentVerification,
			Event:          schema.EventDocumentsVerified,
			To:             schema.StateIdentityVerification,
			AutoTransition: true,
		},
		{
			From:           schema.StateIdentityVerification,
			Event:          schema.EventIdentityVerified,
			To:             schema.StateKYCProcessing,
			Validators:     []string{ValidatorIdentityConfidence},
			AutoTransition: true,
		},
		{
			From:           schema.StateKYCProcessing,
			Event:          schema.EventKYCCompleted,
			To:             schema.StateAMLScreening,
			AutoTransition: true,
		},
		{
			From:      schema.StateAMLScreening,
			Event:     schema.EventAMLCleared,
			To:        schema.StateRiskAssessment,
			Condition: `!('sanctions_hit' in event) || event.sanctions_hit == false`,
		},
		{
			From:       schema.StateRiskAssessment,
			Event:      schema.EventRiskAssessed,
			To:         schema.StateSuitabilityReview,
			Validators: []string{ValidatorRiskRating},
		},
		{
			From:  schema.StateSuitabilityReview,
			Event: schema.EventSuitabilityConfirmed,
			To:    schema.StateComplianceReview,
		},
		{
			From:             schema.StateComplianceReview,
			Event:            schema.EventComplianceApproved,
			To:               schema.StateAccountSetup,
			RequiresApproval: true,
		},
		{
			From:  schema.StateAccountSetup,
			Event: schema.EventAccountCreated,
			To:    schema.StateFundingSetup,
		},
		{
			From:       schema.StateFundingSetup,
			Event:      schema.EventFundingConfigured,
			To:         schema.StateFinalApproval,
			Validators: []string{ValidatorFundingSources},
		},
		{
			From:             schema.StateFinalApproval,
			Event:            schema.EventFinalApprovalGranted,
			To:               schema.StateCompleted,
			RequiresApproval: true,
		},
		{
			From:  schema.StateSuspended,
			Event: schema.EventResumeApplication,
			To:    schema.StateDocumentCollection,
		},
	}

	// Universal side exits. SUSPEND is not wired from SUSPENDED itself.
	for _, from := range nonTerminalStates {
		rules = append(rules, TransitionRule{
			From:  from,
			Event: schema.EventRejectApplication,
			To:    schema.StateRejected,
		})
		rules = append(rules, TransitionRule{
			From:  from,
			Event: schema.EventCancelApplication,
			To:    schema.StateCancelled,
		})
		if from != schema.StateSuspended {
			rules = append(rules, TransitionRule{
				From:  from,
				Event: schema.EventSuspendApplication,
				To:    schema.StateSuspended,
			})
		}
	}

	rs, err := NewRuleSet(rules)
	if err != nil {
		// The default table is static; a duplicate here is a programming error.
		panic(err)
	}
	return rs
}
