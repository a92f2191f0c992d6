package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/meridianfs/onboard/internal/compliance"
	"github.com/meridianfs/onboard/internal/logging"
	"github.com/meridianfs/onboard/internal/notify"
	"github.com/meridianfs/onboard/internal/progress"
	"github.com/meridianfs/onboard/internal/setup"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/internal/verify"
	"github.com/meridianfs/onboard/internal/workflow"
	"github.com/meridianfs/onboard/pkg/schema"
)

// systemActor attributes coordinator-driven transitions in the event log.
const systemActor = "system"

// autoEvents maps a state carrying an auto-transition signal to the event the
// coordinator fires on its behalf. Identity verification is absent on purpose:
// its transition is driven by the verification engine's own completion event,
// which carries the confidence the transition validator needs.
var autoEvents = map[schema.WorkflowState]schema.WorkflowEvent{
	schema.StateKYCProcessing: schema.EventKYCCompleted,
	schema.StateAMLScreening:  schema.EventAMLCleared,
}

// Coordinator subscribes to the event hub and converts committed workflow
// events into engine calls. All cross-engine choreography lives here: the
// engines never call each other, they only publish.
type Coordinator struct {
	machine    *workflow.Machine
	setup      *setup.Engine
	compliance *compliance.Engine
	tracker    *progress.Tracker
	identity   *verify.IdentityEngine
	notifier   notify.Port
	logger     *slog.Logger

	mu          sync.Mutex
	unsubscribe func()
	done        chan struct{}
}

// NewCoordinator creates a coordinator over the given engines.
func NewCoordinator(machine *workflow.Machine, setupEngine *setup.Engine,
	complianceEngine *compliance.Engine, tracker *progress.Tracker,
	identity *verify.IdentityEngine, notifier notify.Port, logger *slog.Logger) *Coordinator {

	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		machine:    machine,
		setup:      setupEngine,
		compliance: complianceEngine,
		tracker:    tracker,
		identity:   identity,
		notifier:   notifier,
		logger:     logger,
	}
}

// Start subscribes to the hub and processes events until Stop is called or
// the subscription channel closes.
func (co *Coordinator) Start(ctx context.Context, hub streaming.EventHub) error {
	events, unsubscribe, err := hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{
			schema.EventTypeWorkflowCreated,
			schema.EventTypeStateTransitioned,
			schema.EventTypeAutoTransition,
			schema.EventTypeVerificationDone,
			schema.EventTypeSetupCompleted,
			schema.EventTypeSetupFailed,
			schema.EventTypeApprovalResolved,
			schema.EventTypeBlockerReported,
			schema.EventTypeWorkflowCompleted,
		},
	})
	if err != nil {
		return err
	}

	co.mu.Lock()
	co.unsubscribe = unsubscribe
	co.done = make(chan struct{})
	done := co.done
	co.mu.Unlock()

	go func() {
		defer close(done)
		for ev := range events {
			co.handle(ctx, ev)
		}
	}()
	co.logger.Info("coordinator started")
	return nil
}

// Stop cancels the subscription and waits for the event loop to drain.
func (co *Coordinator) Stop() {
	co.mu.Lock()
	unsubscribe := co.unsubscribe
	done := co.done
	co.unsubscribe = nil
	co.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		<-done
		co.logger.Info("coordinator stopped")
	}
}

// handle dispatches one hub event. Handler errors are logged, never fatal:
// a failed reaction must not take the event loop down with it.
func (co *Coordinator) handle(ctx context.Context, ev streaming.StreamEvent) {
	ctx = logging.WithWorkflowID(ctx, ev.WorkflowID)
	log := logging.LogWith(ctx, co.logger)

	var err error
	switch ev.EventType {
	case schema.EventTypeWorkflowCreated:
		err = co.onWorkflowCreated(ctx, ev)
	case schema.EventTypeStateTransitioned:
		err = co.onStateTransitioned(ctx, ev)
	case schema.EventTypeAutoTransition:
		err = co.onAutoTransition(ctx, ev)
	case schema.EventTypeVerificationDone:
		err = co.onVerificationDone(ctx, ev)
	case schema.EventTypeSetupCompleted:
		err = co.fireEvent(ctx, ev.WorkflowID, schema.EventAccountCreated, nil)
	case schema.EventTypeSetupFailed:
		err = co.onSetupFailed(ctx, ev)
	case schema.EventTypeApprovalResolved:
		err = co.onApprovalResolved(ctx, ev)
	case schema.EventTypeBlockerReported:
		err = co.onBlockerReported(ctx, ev)
	case schema.EventTypeWorkflowCompleted:
		err = co.onWorkflowCompleted(ctx, ev)
	}
	if err != nil {
		log.ErrorContext(ctx, "coordinator reaction failed",
			slog.String("event_type", ev.EventType),
			slog.String("error", err.Error()))
	}
}

// onWorkflowCreated opens the progress record and welcomes the client.
func (co *Coordinator) onWorkflowCreated(ctx context.Context, ev streaming.StreamEvent) error {
	wf, err := co.machine.GetWorkflow(ctx, ev.WorkflowID)
	if err != nil {
		return err
	}
	if _, err := co.tracker.Create(ctx, wf.ID, wf.ClientID, wf.Metadata.ClientType); err != nil {
		return err
	}
	if sendErr := co.notifier.SendWelcome(ctx, wf.ID, wf.ClientID); sendErr != nil {
		logging.LogWith(ctx, co.logger).WarnContext(ctx, "welcome notification failed",
			slog.String("error", sendErr.Error()))
	}
	return nil
}

// onStateTransitioned reacts to states that open work in another engine.
func (co *Coordinator) onStateTransitioned(ctx context.Context, ev streaming.StreamEvent) error {
	switch schema.WorkflowState(payloadString(ev, "to")) {
	case schema.StateComplianceReview:
		return co.openComplianceReview(ctx, ev.WorkflowID)
	case schema.StateAccountSetup:
		return co.runAccountSetup(ctx, ev.WorkflowID)
	}
	return nil
}

// openComplianceReview creates the approval workflow for a workflow entering
// compliance review. The risk rating recorded during risk assessment selects
// the template.
func (co *Coordinator) openComplianceReview(ctx context.Context, workflowID string) error {
	wf, err := co.machine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	risk := schema.RiskLevelMedium
	if raw, ok := wf.StateData["risk_level"].(string); ok && raw != "" {
		risk = schema.RiskLevel(raw)
	}
	wfType := compliance.WorkflowClientOnboarding
	if risk == schema.RiskLevelHigh || risk == schema.RiskLevelCritical {
		wfType = compliance.WorkflowHighRiskClient
	}

	_, err = co.compliance.CreateWorkflow(ctx, wf.ID, wf.ClientID, wfType, risk,
		compliance.SelectionCriteria{Jurisdiction: wf.Metadata.Jurisdiction})
	return err
}

// runAccountSetup drives the setup step chain to a settled status. A request
// the client already created through the API is reused; otherwise one is
// built from the workflow metadata and the account-type defaults. Completion
// and failure both come back through the hub.
func (co *Coordinator) runAccountSetup(ctx context.Context, workflowID string) error {
	req, err := co.setup.GetByWorkflow(ctx, workflowID)
	if err != nil {
		wf, wfErr := co.machine.GetWorkflow(ctx, workflowID)
		if wfErr != nil {
			return wfErr
		}
		req, err = co.setup.CreateRequest(ctx, wf.ID, wf.ClientID, setup.Input{
			AccountType:  wf.Metadata.AccountType,
			Jurisdiction: wf.Metadata.Jurisdiction,
		})
		if err != nil {
			return err
		}
	}
	_, err = co.setup.Run(ctx, req.ID)
	return err
}

// onAutoTransition fires the happy-path event for a state that signalled
// automatic readiness.
func (co *Coordinator) onAutoTransition(ctx context.Context, ev streaming.StreamEvent) error {
	event, ok := autoEvents[schema.WorkflowState(payloadString(ev, "state"))]
	if !ok {
		return nil
	}
	return co.fireEvent(ctx, ev.WorkflowID, event, nil)
}

// onVerificationDone advances the workflow once an identity session passes.
// The lowest check confidence is what the transition validator gets: the
// weakest check bounds how much the session proves.
func (co *Coordinator) onVerificationDone(ctx context.Context, ev streaming.StreamEvent) error {
	if verify.SessionStatus(payloadString(ev, "status")) != verify.SessionPassed {
		return nil
	}
	session, err := co.identity.GetByWorkflow(ctx, ev.WorkflowID)
	if err != nil {
		return err
	}
	confidence := 0.0
	for i, r := range session.Results {
		if i == 0 || r.Confidence < confidence {
			confidence = r.Confidence
		}
	}
	return co.fireEvent(ctx, ev.WorkflowID, schema.EventIdentityVerified,
		map[string]any{"confidence": confidence})
}

// onSetupFailed raises a blocker alert so an operator can intervene.
func (co *Coordinator) onSetupFailed(ctx context.Context, ev streaming.StreamEvent) error {
	req, err := co.setup.GetByWorkflow(ctx, ev.WorkflowID)
	if err != nil {
		return err
	}
	return co.notifier.SendBlockerAlert(ctx, req.WorkflowID, req.ClientID, "account setup failed")
}

// onApprovalResolved converts the compliance outcome into the matching
// workflow event. Conditional approval advances the workflow; the conditions
// travel in the transition's event data.
func (co *Coordinator) onApprovalResolved(ctx context.Context, ev streaming.StreamEvent) error {
	status := compliance.ApprovalStatus(payloadString(ev, "status"))
	switch status {
	case compliance.StatusApproved, compliance.StatusConditionallyApproved:
		return co.fireEvent(ctx, ev.WorkflowID, schema.EventComplianceApproved, map[string]any{
			"approved_by": "compliance-engine",
			"conditional": status == compliance.StatusConditionallyApproved,
		})
	case compliance.StatusRejected:
		return co.fireEvent(ctx, ev.WorkflowID, schema.EventRejectApplication,
			map[string]any{"reason": "compliance review rejected"})
	}
	return nil
}

// onBlockerReported forwards the blocker to the notification channel.
func (co *Coordinator) onBlockerReported(ctx context.Context, ev streaming.StreamEvent) error {
	p, err := co.tracker.GetByWorkflow(ctx, ev.WorkflowID)
	if err != nil {
		return err
	}
	description := "onboarding blocker reported"
	if b := p.Blocker(payloadString(ev, "blocker_id")); b != nil {
		description = b.Description
	}
	return co.notifier.SendBlockerAlert(ctx, ev.WorkflowID, p.ClientID, description)
}

// onWorkflowCompleted sends the completion notice.
func (co *Coordinator) onWorkflowCompleted(ctx context.Context, ev streaming.StreamEvent) error {
	return co.notifier.SendCompletionNotice(ctx, ev.WorkflowID, payloadString(ev, "client_id"))
}

// fireEvent submits an event to the state machine on the system's behalf.
// A rejected transition is normal here: the signal may arrive after an
// operator already moved the workflow, so it is logged and dropped.
func (co *Coordinator) fireEvent(ctx context.Context, workflowID string,
	event schema.WorkflowEvent, data map[string]any) error {

	result, err := co.machine.ProcessEvent(ctx, workflowID, event, data, systemActor)
	if err != nil {
		return err
	}
	if !result.Success {
		log := logging.LogWith(ctx, co.logger)
		for _, e := range result.Errors {
			log.InfoContext(ctx, "coordinator transition not applied",
				slog.String("event", string(event)),
				slog.String("reason", e.Message))
		}
	}
	return nil
}

// payloadString reads a string field out of a hub event payload.
func payloadString(ev streaming.StreamEvent, key string) string {
	payload, ok := ev.Payload.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}
