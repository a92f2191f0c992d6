package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfs/onboard/pkg/schema"
)

func TestNewRuleSet_DuplicateRejected(t *testing.T) {
	_, err := NewRuleSet([]TransitionRule{
		{From: schema.StateInitiated, Event: schema.EventStartOnboarding, To: schema.StateDocumentCollection},
		{From: schema.StateInitiated, Event: schema.EventStartOnboarding, To: schema.StateRejected},
	})
	require.Error(t, err)
	oe, ok := err.(*schema.OnboardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, oe.Code)
}

func TestDefaultRules_HappyPathChain(t *testing.T) {
	rs := DefaultRules()

	chain := []struct {
		from  schema.WorkflowState
		event schema.WorkflowEvent
		to    schema.WorkflowState
	}{
		{schema.StateInitiated, schema.EventStartOnboarding, schema.StateDocumentCollection},
		{schema.StateDocumentCollection, schema.EventDocumentsSubmitted, schema.StateDocumentVerification},
		{schema.StateDocumentVerification, schema.EventDocumentsVerified, schema.StateIdentityVerification},
		{schema.StateIdentityVerification, schema.EventIdentityVerified, schema.StateKYCProcessing},
		{schema.StateKYCProcessing, schema.EventKYCCompleted, schema.StateAMLScreening},
		{schema.StateAMLScreening, schema.EventAMLCleared, schema.StateRiskAssessment},
		{schema.StateRiskAssessment, schema.EventRiskAssessed, schema.StateSuitabilityReview},
		{schema.StateSuitabilityReview, schema.EventSuitabilityConfirmed, schema.StateComplianceReview},
		{schema.StateComplianceReview, schema.EventComplianceApproved, schema.StateAccountSetup},
		{schema.StateAccountSetup, schema.EventAccountCreated, schema.StateFundingSetup},
		{schema.StateFundingSetup, schema.EventFundingConfigured, schema.StateFinalApproval},
		{schema.StateFinalApproval, schema.EventFinalApprovalGranted, schema.StateCompleted},
	}
	for _, step := range chain {
		rule, ok := rs.Lookup(step.from, step.event)
		require.True(t, ok, "missing rule (%s, %s)", step.from, step.event)
		assert.Equal(t, step.to, rule.To)
	}
}

func TestDefaultRules_SideExits(t *testing.T) {
	rs := DefaultRules()

	for _, from := range nonTerminalStates {
		rule, ok := rs.Lookup(from, schema.EventRejectApplication)
		require.True(t, ok, "missing reject exit from %s", from)
		assert.Equal(t, schema.StateRejected, rule.To)

		rule, ok = rs.Lookup(from, schema.EventCancelApplication)
		require.True(t, ok, "missing cancel exit from %s", from)
		assert.Equal(t, schema.StateCancelled, rule.To)

		rule, ok = rs.Lookup(from, schema.EventSuspendApplication)
		if from == schema.StateSuspended {
			assert.False(t, ok, "suspend must not be wired from SUSPENDED")
		} else {
			require.True(t, ok, "missing suspend exit from %s", from)
			assert.Equal(t, schema.StateSuspended, rule.To)
		}
	}
}

func TestDefaultRules_NoExitsFromTerminalStates(t *testing.T) {
	rs := DefaultRules()

	for _, from := range []schema.WorkflowState{
		schema.StateCompleted, schema.StateRejected, schema.StateCancelled,
	} {
		assert.Empty(t, rs.EventsFrom(from), "terminal state %s must have no outgoing rules", from)
	}
}

func TestDefaultRules_ResumeFromSuspended(t *testing.T) {
	rs := DefaultRules()

	rule, ok := rs.Lookup(schema.StateSuspended, schema.EventResumeApplication)
	require.True(t, ok)
	assert.Equal(t, schema.StateDocumentCollection, rule.To)
}

func TestDefaultRules_GuardAnnotations(t *testing.T) {
	rs := DefaultRules()

	rule, _ := rs.Lookup(schema.StateComplianceReview, schema.EventComplianceApproved)
	assert.True(t, rule.RequiresApproval)

	rule, _ = rs.Lookup(schema.StateFinalApproval, schema.EventFinalApprovalGranted)
	assert.True(t, rule.RequiresApproval)

	rule, _ = rs.Lookup(schema.StateAMLScreening, schema.EventAMLCleared)
	assert.NotEmpty(t, rule.Condition)

	rule, _ = rs.Lookup(schema.StateDocumentVerification, schema.EventDocumentsVerified)
	assert.True(t, rule.AutoTransition)
}
