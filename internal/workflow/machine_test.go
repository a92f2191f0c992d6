package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfs/onboard/internal/expressions"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/pkg/schema"
)

func newTestMachine(t *testing.T) (*Machine, *store.MemoryStore, *streaming.MemoryHub) {
	t.Helper()
	st := store.NewMemoryStore()
	hub := streaming.NewMemoryHub()
	conditions, err := expressions.NewCELEngine()
	require.NoError(t, err)
	m := NewMachine(st, hub, DefaultRules(), NewValidatorRegistry(), conditions, nil)
	return m, st, hub
}

func newWorkflow(t *testing.T, m *Machine) *store.WorkflowInstance {
	t.Helper()
	wf, err := m.CreateWorkflow(context.Background(), "client-1", "tenant-1", store.WorkflowMetadata{
		ClientType:   schema.ClientTypeIndividual,
		AccountType:  schema.AccountTypeIndividual,
		Jurisdiction: "US",
	})
	require.NoError(t, err)
	return wf
}

// moveTo force-positions a workflow for tests that start mid-lifecycle.
func moveTo(t *testing.T, st *store.MemoryStore, wf *store.WorkflowInstance, state schema.WorkflowState) {
	t.Helper()
	wf.CurrentState = state
	require.NoError(t, st.SaveWorkflow(context.Background(), wf))
}

func TestCreateWorkflow(t *testing.T) {
	m, st, _ := newTestMachine(t)
	wf := newWorkflow(t, m)

	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, schema.StateInitiated, wf.CurrentState)
	assert.Empty(t, wf.Transitions)

	events, err := st.GetEvents(context.Background(), wf.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventTypeWorkflowCreated, events[0].Type)
	assert.Equal(t, "client-1", events[0].Actor)
}

func TestProcessEvent_HappyPathStart(t *testing.T) {
	m, st, _ := newTestMachine(t)
	wf := newWorkflow(t, m)

	result, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventStartOnboarding, nil, "ops-1")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, schema.StateDocumentCollection, result.NewState)

	got, err := m.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StateDocumentCollection, got.CurrentState)
	assert.Equal(t, schema.StateInitiated, got.PreviousState)
	require.Len(t, got.Transitions, 1)
	assert.Equal(t, schema.EventStartOnboarding, got.Transitions[0].Event)
	assert.Equal(t, "ops-1", got.Transitions[0].TriggeredBy)

	events, err := st.GetEvents(context.Background(), wf.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, schema.EventTypeStateTransitioned, events[1].Type)
}

func TestProcessEvent_UnwiredEventRejected(t *testing.T) {
	m, _, _ := newTestMachine(t)
	wf := newWorkflow(t, m)

	result, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventFundingConfigured, nil, "ops-1")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeInvalidTransition, result.Errors[0].Code)

	// A rejected transition commits nothing.
	got, err := m.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StateInitiated, got.CurrentState)
	assert.Empty(t, got.Transitions)
}

func TestProcessEvent_UnknownWorkflow(t *testing.T) {
	m, _, _ := newTestMachine(t)

	result, err := m.ProcessEvent(context.Background(), "no-such-id", schema.EventStartOnboarding, nil, "ops-1")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeWorkflowNotFound, result.Errors[0].Code)
}

func TestProcessEvent_ValidatorFailureAborts(t *testing.T) {
	m, st, _ := newTestMachine(t)
	wf := newWorkflow(t, m)
	moveTo(t, st, wf, schema.StateDocumentCollection)

	result, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventDocumentsSubmitted, nil, "client-1")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeValidationFailed, result.Errors[0].Code)
	require.Len(t, result.Results, 1)
	assert.Equal(t, schema.ValidationFailed, result.Results[0].Status)

	got, err := m.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StateDocumentCollection, got.CurrentState)
}

func TestProcessEvent_ConditionBlocksTransition(t *testing.T) {
	m, st, _ := newTestMachine(t)
	wf := newWorkflow(t, m)
	moveTo(t, st, wf, schema.StateAMLScreening)

	result, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventAMLCleared,
		map[string]any{"sanctions_hit": true}, "screening")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeConditionsNotMet, result.Errors[0].Code)

	// Without a hit the same event clears.
	result, err = m.ProcessEvent(context.Background(), wf.ID, schema.EventAMLCleared, nil, "screening")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, schema.StateRiskAssessment, result.NewState)
}

func TestProcessEvent_RequiresApproval(t *testing.T) {
	m, st, _ := newTestMachine(t)
	wf := newWorkflow(t, m)
	moveTo(t, st, wf, schema.StateComplianceReview)

	result, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventComplianceApproved, nil, "system")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeApprovalRequired, result.Errors[0].Code)

	result, err = m.ProcessEvent(context.Background(), wf.ID, schema.EventComplianceApproved,
		map[string]any{"approved_by": "compliance-officer"}, "system")
	require.NoError(t, err)
	require.True(t, result.Success)

	got, err := m.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	require.Len(t, got.Transitions, 1)
	assert.Equal(t, "compliance-officer", got.Transitions[0].ApprovedBy)
}

func TestProcessEvent_StateDataMerged(t *testing.T) {
	m, st, _ := newTestMachine(t)
	wf := newWorkflow(t, m)
	moveTo(t, st, wf, schema.StateRiskAssessment)

	result, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventRiskAssessed,
		map[string]any{"risk_level": "MEDIUM", "score": 42.0}, "risk")
	require.NoError(t, err)
	require.True(t, result.Success)

	got, err := m.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "MEDIUM", got.StateData["risk_level"])
	assert.Equal(t, 42.0, got.StateData["score"])
}

func TestProcessEvent_CompletionSetsTimestamp(t *testing.T) {
	m, st, _ := newTestMachine(t)
	wf := newWorkflow(t, m)
	moveTo(t, st, wf, schema.StateFinalApproval)

	result, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventFinalApprovalGranted,
		map[string]any{"approved_by": "ops-manager"}, "ops-manager")
	require.NoError(t, err)
	require.True(t, result.Success)

	got, err := m.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StateCompleted, got.CurrentState)
	require.NotNil(t, got.CompletedAt)
}

func TestProcessEvent_TerminalEventPublished(t *testing.T) {
	m, _, hub := newTestMachine(t)
	wf := newWorkflow(t, m)

	events, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{
		WorkflowID: wf.ID,
		EventTypes: []string{schema.EventTypeWorkflowRejected},
	})
	require.NoError(t, err)
	defer cancel()

	result, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventRejectApplication,
		map[string]any{"reason": "duplicate application"}, "ops-1")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, schema.StateRejected, result.NewState)

	// Emission is synchronous after commit, so the event is already buffered.
	select {
	case ev := <-events:
		assert.Equal(t, schema.EventTypeWorkflowRejected, ev.EventType)
	default:
		t.Fatal("terminal event not published")
	}
}

func TestAvailableEvents(t *testing.T) {
	m, st, _ := newTestMachine(t)
	wf := newWorkflow(t, m)

	events, err := m.AvailableEvents(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []schema.WorkflowEvent{
		schema.EventCancelApplication,
		schema.EventRejectApplication,
		schema.EventStartOnboarding,
		schema.EventSuspendApplication,
	}, events)

	moveTo(t, st, wf, schema.StateSuspended)
	events, err = m.AvailableEvents(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.NotContains(t, events, schema.EventSuspendApplication)
	assert.Contains(t, events, schema.EventResumeApplication)
}

func TestProcessEvent_ConcurrentSameWorkflow(t *testing.T) {
	m, _, _ := newTestMachine(t)
	wf := newWorkflow(t, m)

	const attempts = 8
	results := make([]*schema.TransitionResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := m.ProcessEvent(context.Background(), wf.ID, schema.EventStartOnboarding, nil, "ops-1")
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	// The per-workflow lock lets exactly one attempt observe INITIATED.
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	got, err := m.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	require.Len(t, got.Transitions, 1)
}
