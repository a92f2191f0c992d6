// Package workflow implements the onboarding lifecycle state machine.
//
// The machine owns the canonical workflow state and its transition rules.
// It never calls the other engines: committed transitions are published on
// the event hub and the controller converts them into engine calls, keeping
// the cross-engine choreography observable and loosely coupled.
package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/onboard/internal/logging"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/pkg/schema"
)

// defaultAutoDelay is the delay before an auto-transition signal when the
// rule does not override it.
const defaultAutoDelay = 1000 * time.Millisecond

// ConditionEvaluator evaluates a rule's side-condition expression against the
// workflow and event data. Satisfied by expressions.CELEngine.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Machine is the onboarding workflow state machine.
//
// Mutation of one workflow is serialized behind a per-aggregate mutex, so two
// concurrent ProcessEvent calls on the same id cannot both observe the
// pre-transition state. Different workflows proceed independently.
type Machine struct {
	store      store.Store
	hub        streaming.EventHub
	rules      *RuleSet
	validators *ValidatorRegistry
	conditions ConditionEvaluator
	logger     *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewMachine creates a Machine over the given store, hub, and rule table.
func NewMachine(s store.Store, hub streaming.EventHub, rules *RuleSet, validators *ValidatorRegistry, conditions ConditionEvaluator, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:      s,
		hub:        hub,
		rules:      rules,
		validators: validators,
		conditions: conditions,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding a workflow id, creating it on first use.
func (m *Machine) lockFor(id string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	return mu
}

// CreateWorkflow creates a workflow in the initial state for a client.
func (m *Machine) CreateWorkflow(ctx context.Context, clientID, tenantID string, metadata store.WorkflowMetadata) (*store.WorkflowInstance, error) {
	now := time.Now().UTC()
	wf := &store.WorkflowInstance{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		TenantID:     tenantID,
		CurrentState: schema.StateInitiated,
		StateData:    make(map[string]any),
		Transitions:  []store.TransitionRecord{},
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}

	ctx = logging.WithWorkflowID(ctx, wf.ID)
	if err := m.store.AppendEvent(ctx, &store.Event{
		WorkflowID: wf.ID,
		Type:       schema.EventTypeWorkflowCreated,
		Actor:      clientID,
	}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "record workflow creation: %s", err.Error()).WithCause(err)
	}
	_ = m.hub.Publish(ctx, streaming.StreamEvent{
		WorkflowID: wf.ID,
		EventType:  schema.EventTypeWorkflowCreated,
		Payload:    map[string]any{"client_id": clientID, "tenant_id": tenantID},
	})
	logging.LogWith(ctx, m.logger).InfoContext(ctx, "workflow created",
		slog.String("client_id", clientID), slog.String("tenant_id", tenantID))
	return wf, nil
}

// GetWorkflow returns a workflow by id.
func (m *Machine) GetWorkflow(ctx context.Context, id string) (*store.WorkflowInstance, error) {
	return m.store.GetWorkflow(ctx, id)
}

// ProcessEvent applies an external event to a workflow.
//
// Guard failures (unknown workflow, unwired event, unmet condition, validator
// failure, missing approval) are reported in the returned TransitionResult;
// the error return is reserved for infrastructure faults. A rejected
// transition commits nothing: currentState is unchanged and no transition
// record is appended.
func (m *Machine) ProcessEvent(ctx context.Context, workflowID string, event schema.WorkflowEvent, eventData map[string]any, triggeredBy string) (*schema.TransitionResult, error) {
	mu := m.lockFor(workflowID)
	mu.Lock()
	defer mu.Unlock()

	ctx = logging.WithWorkflowID(ctx, workflowID)
	log := logging.LogWith(ctx, m.logger)

	wf, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return failure(schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %s not found", workflowID)), nil
	}

	rule, ok := m.rules.Lookup(wf.CurrentState, event)
	if !ok {
		// The primary state-machine guard: any event not explicitly wired for
		// the current state is rejected.
		return failure(schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"event %s is not valid in state %s", event, wf.CurrentState).
			WithDetails(map[string]any{"current_state": string(wf.CurrentState), "event": string(event)})), nil
	}

	if eventData == nil {
		eventData = map[string]any{}
	}

	if rule.Condition != "" {
		met, evalErr := m.evaluateCondition(ctx, rule.Condition, wf, eventData)
		if evalErr != nil {
			return nil, evalErr
		}
		if !met {
			return failure(schema.NewErrorf(schema.ErrCodeConditionsNotMet,
				"conditions not met for %s in state %s", event, wf.CurrentState)), nil
		}
	}

	// Validators run sequentially; the first failure aborts the transition
	// and no partial state is committed. Warnings are recorded but do not
	// abort.
	var results []schema.ValidationResult
	for _, name := range rule.Validators {
		res := m.validators.Run(name, wf, eventData)
		results = append(results, res)
		if res.Status == schema.ValidationFailed {
			log.WarnContext(ctx, "transition validation failed",
				slog.String("validator", name), slog.String("message", res.Message))
			r := failure(schema.NewErrorf(schema.ErrCodeValidationFailed,
				"validator %s failed: %s", name, res.Message))
			r.Results = results
			return r, nil
		}
	}

	approvedBy, _ := eventData["approved_by"].(string)
	if rule.RequiresApproval && approvedBy == "" {
		r := failure(schema.NewErrorf(schema.ErrCodeApprovalRequired,
			"transition %s -> %s requires an approver", wf.CurrentState, rule.To))
		r.Results = results
		return r, nil
	}

	// Commit.
	now := time.Now().UTC()
	record := store.TransitionRecord{
		ID:                uuid.NewString(),
		FromState:         wf.CurrentState,
		ToState:           rule.To,
		Event:             event,
		TriggeredBy:       triggeredBy,
		ApprovedBy:        approvedBy,
		ValidationResults: results,
		Timestamp:         now,
	}
	wf.PreviousState = wf.CurrentState
	wf.CurrentState = rule.To
	wf.Transitions = append(wf.Transitions, record)
	if wf.StateData == nil {
		wf.StateData = make(map[string]any)
	}
	// Shallow merge: later events overwrite same-named keys.
	for k, v := range eventData {
		wf.StateData[k] = v
	}
	wf.UpdatedAt = now
	if rule.To == schema.StateCompleted {
		wf.CompletedAt = &now
	}

	if err := m.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "commit transition: %s", err.Error()).WithCause(err)
	}
	payload, _ := json.Marshal(map[string]any{
		"from": string(record.FromState), "to": string(record.ToState), "event": string(event),
	})
	if err := m.store.AppendEvent(ctx, &store.Event{
		WorkflowID: workflowID,
		Type:       schema.EventTypeStateTransitioned,
		Payload:    payload,
		Actor:      triggeredBy,
	}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "record transition event: %s", err.Error()).WithCause(err)
	}

	// Emission happens synchronously after commit, never before.
	m.publishTransition(ctx, wf, record)

	if rule.AutoTransition {
		m.scheduleAutoSignal(workflowID, rule)
	}

	log.InfoContext(ctx, "state transitioned",
		slog.String("from", string(record.FromState)),
		slog.String("to", string(record.ToState)),
		slog.String("event", string(event)))

	return &schema.TransitionResult{Success: true, NewState: rule.To, Results: results}, nil
}

// AvailableEvents returns every event with a rule keyed to the workflow's
// current state, sorted for deterministic output.
func (m *Machine) AvailableEvents(ctx context.Context, workflowID string) ([]schema.WorkflowEvent, error) {
	wf, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	events := m.rules.EventsFrom(wf.CurrentState)
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events, nil
}

// evaluateCondition runs the rule's CEL predicate against the workflow and
// event data. Evaluation errors are infrastructure faults, not guard failures.
func (m *Machine) evaluateCondition(ctx context.Context, expression string, wf *store.WorkflowInstance, eventData map[string]any) (bool, error) {
	if m.conditions == nil {
		return true, nil
	}
	out, err := m.conditions.Evaluate(ctx, expression, map[string]any{
		"workflow": conditionScope(wf),
		"event":    eventData,
	})
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"evaluate transition condition: %s", err.Error()).WithCause(err)
	}
	met, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"transition condition %q did not evaluate to a boolean", expression)
	}
	return met, nil
}

// conditionScope flattens the workflow fields condition expressions may read.
func conditionScope(wf *store.WorkflowInstance) map[string]any {
	return map[string]any{
		"id":            wf.ID,
		"client_id":     wf.ClientID,
		"tenant_id":     wf.TenantID,
		"current_state": string(wf.CurrentState),
		"client_type":   string(wf.Metadata.ClientType),
		"account_type":  string(wf.Metadata.AccountType),
		"jurisdiction":  wf.Metadata.Jurisdiction,
		"state_data":    wf.StateData,
	}
}

// publishTransition fans the committed transition out to hub subscribers.
func (m *Machine) publishTransition(ctx context.Context, wf *store.WorkflowInstance, record store.TransitionRecord) {
	_ = m.hub.Publish(ctx, streaming.StreamEvent{
		WorkflowID: wf.ID,
		EventType:  schema.EventTypeStateTransitioned,
		Payload: map[string]any{
			"from":         string(record.FromState),
			"to":           string(record.ToState),
			"event":        string(record.Event),
			"triggered_by": record.TriggeredBy,
		},
	})

	var terminalType string
	switch record.ToState {
	case schema.StateCompleted:
		terminalType = schema.EventTypeWorkflowCompleted
	case schema.StateRejected:
		terminalType = schema.EventTypeWorkflowRejected
	case schema.StateSuspended:
		terminalType = schema.EventTypeWorkflowSuspended
	case schema.StateCancelled:
		terminalType = schema.EventTypeWorkflowCancelled
	}
	if terminalType != "" {
		_ = m.hub.Publish(ctx, streaming.StreamEvent{
			WorkflowID: wf.ID,
			EventType:  terminalType,
			Payload:    map[string]any{"client_id": wf.ClientID},
		})
	}
}

// scheduleAutoSignal publishes a best-effort readiness signal after the
// rule's delay. The signal does not itself transition the workflow: it only
// tells the controller the workflow is willing to progress automatically, and
// the controller converts it into the next ProcessEvent call.
func (m *Machine) scheduleAutoSignal(workflowID string, rule *TransitionRule) {
	delay := rule.AutoDelay
	if delay <= 0 {
		delay = defaultAutoDelay
	}
	to := rule.To
	time.AfterFunc(delay, func() {
		_ = m.hub.Publish(context.Background(), streaming.StreamEvent{
			WorkflowID: workflowID,
			EventType:  schema.EventTypeAutoTransition,
			Payload:    map[string]any{"state": string(to)},
		})
	})
}

func failure(errs ...*schema.OnboardError) *schema.TransitionResult {
	return &schema.TransitionResult{Success: false, Errors: errs}
}
