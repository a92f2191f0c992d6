package compliance

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/onboard/internal/expressions"
	"github.com/meridianfs/onboard/internal/logging"
	"github.com/meridianfs/onboard/internal/runner"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/pkg/schema"
)

// defaultConfidence applies when a decision carries no criteria evaluations.
const defaultConfidence = 50.0

// Repository is the persistence boundary for approval workflows.
type Repository interface {
	Put(wf *ApprovalWorkflow) error
	Get(id string) (*ApprovalWorkflow, error)
	GetByWorkflow(onboardingWorkflowID string) (*ApprovalWorkflow, error)
}

// MemoryRepository is the in-memory Repository implementation.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*ApprovalWorkflow
	byWorkflow map[string]string
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*ApprovalWorkflow),
		byWorkflow: make(map[string]string),
	}
}

func (r *MemoryRepository) Put(wf *ApprovalWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[wf.ID] = wf
	r.byWorkflow[wf.OnboardingWorkflowID] = wf.ID
	return nil
}

func (r *MemoryRepository) Get(id string) (*ApprovalWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.byID[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "approval workflow %s not found", id)
	}
	return wf, nil
}

func (r *MemoryRepository) GetByWorkflow(onboardingWorkflowID string) (*ApprovalWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byWorkflow[onboardingWorkflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"no approval workflow for onboarding workflow %s", onboardingWorkflowID)
	}
	return r.byID[id], nil
}

// Engine runs compliance approval workflows.
type Engine struct {
	repo   Repository
	pool   *ReviewerPool
	guards expressions.Engine
	events store.EventAppender
	audit  store.AuditAppender
	hub    streaming.EventHub
	logger *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewEngine creates a compliance approval engine. The guards engine evaluates
// criterion guard expressions; nil disables guard evaluation (evaluations are
// taken at face value).
func NewEngine(repo Repository, pool *ReviewerPool, guards expressions.Engine,
	events store.EventAppender, audit store.AuditAppender, hub streaming.EventHub,
	logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:   repo,
		pool:   pool,
		guards: guards,
		events: events,
		audit:  audit,
		hub:    hub,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(id string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	mu, ok := e.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[id] = mu
	}
	return mu
}

// CreateWorkflow builds the approval workflow for an onboarding workflow,
// assigns reviewers to every required slot, and starts the steps with no
// dependencies. Assignment failures surface immediately; slots already
// assigned keep their reviewer (and the capacity increment) with no rollback.
func (e *Engine) CreateWorkflow(ctx context.Context, onboardingWorkflowID, clientID string,
	wfType WorkflowType, risk schema.RiskLevel, criteria SelectionCriteria) (*ApprovalWorkflow, error) {

	now := time.Now().UTC()
	wf := &ApprovalWorkflow{
		ID:                   uuid.NewString(),
		OnboardingWorkflowID: onboardingWorkflowID,
		ClientID:             clientID,
		Type:                 wfType,
		RiskLevel:            risk,
		Status:               StatusPendingReview,
		Steps:                buildSteps(wfType, risk),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	ctx = logging.WithWorkflowID(ctx, onboardingWorkflowID)
	log := logging.LogWith(ctx, e.logger)

	for _, step := range wf.Steps {
		for _, slot := range step.RequiredReviewers {
			for i := 0; i < slot.Count; i++ {
				reviewer, err := e.pool.Assign(slot.Role, criteria)
				if err != nil {
					return nil, schema.NewErrorf(schema.ErrCodeExecution,
						"cannot staff step %q: %s", step.Name, err.Error()).WithCause(err)
				}
				step.AssignedReviewers = append(step.AssignedReviewers, reviewer.ID)
				e.writeAudit(ctx, wf, "reviewer_assigned", step.ID, map[string]any{
					"reviewer_id": reviewer.ID,
					"role":        string(slot.Role),
					"step":        step.Name,
				})
				log.InfoContext(ctx, "reviewer assigned",
					slog.String("step", step.Name),
					slog.String("reviewer_id", reviewer.ID),
					slog.String("role", string(slot.Role)))
			}
		}
		if len(step.Dependencies) == 0 {
			step.Status = StepInProgress
		}
	}

	if err := e.repo.Put(wf); err != nil {
		return nil, err
	}
	e.emit(ctx, wf, "", schema.EventTypeReviewerAssigned, map[string]any{
		"approval_id": wf.ID,
		"type":        string(wfType),
	})
	return wf, nil
}

// Get returns an approval workflow by id.
func (e *Engine) Get(_ context.Context, id string) (*ApprovalWorkflow, error) {
	return e.repo.Get(id)
}

// GetByWorkflow returns the approval workflow owned by an onboarding workflow.
func (e *Engine) GetByWorkflow(_ context.Context, onboardingWorkflowID string) (*ApprovalWorkflow, error) {
	return e.repo.GetByWorkflow(onboardingWorkflowID)
}

// SubmitDecision records a reviewer's verdict on a step. The reviewer must
// hold an assignment on the step. Criteria evaluations update each referenced
// criterion to PASSED/FAILED, gated by the criterion's guard expression when
// one is set. A step completes once its decision count reaches the sum of
// required-reviewer counts, which may start dependent steps and resolve the
// workflow.
func (e *Engine) SubmitDecision(ctx context.Context, workflowID, stepID, reviewerID string,
	decision Decision, comments string, evals []CriteriaEvaluation) (*ReviewDecision, error) {

	mu := e.lockFor(workflowID)
	mu.Lock()
	defer mu.Unlock()

	wf, err := e.repo.Get(workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != StatusPendingReview {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"approval workflow %s already resolved to %s", workflowID, wf.Status)
	}

	step := wf.Step(stepID)
	if step == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "approval step %s not found", stepID)
	}
	if !step.IsAssigned(reviewerID) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"reviewer %s is not assigned to step %q", reviewerID, step.Name).WithStep(stepID)
	}

	ctx = logging.WithWorkflowID(ctx, wf.OnboardingWorkflowID)

	for _, ev := range evals {
		crit := step.Criterion(ev.CriterionName)
		if crit == nil {
			continue
		}
		passed, err := e.criterionPassed(ctx, crit, ev)
		if err != nil {
			return nil, err
		}
		if passed {
			crit.Status = CriterionPassed
		} else {
			crit.Status = CriterionFailed
		}
	}

	dec := &ReviewDecision{
		ID:          uuid.NewString(),
		StepID:      stepID,
		ReviewerID:  reviewerID,
		Decision:    decision,
		Comments:    comments,
		Confidence:  confidence(evals),
		Evaluations: evals,
		SubmittedAt: time.Now().UTC(),
	}
	step.Decisions = append(step.Decisions, dec)
	wf.UpdatedAt = time.Now().UTC()

	e.writeAudit(ctx, wf, "decision_submitted", step.ID, map[string]any{
		"reviewer_id": reviewerID,
		"decision":    string(decision),
		"confidence":  dec.Confidence,
	})
	e.emit(ctx, wf, step.ID, schema.EventTypeDecisionSubmitted, map[string]any{
		"reviewer_id": reviewerID,
		"decision":    string(decision),
	})

	if err := e.checkStepCompletion(ctx, wf, step); err != nil {
		return nil, err
	}
	return dec, e.repo.Put(wf)
}

// checkStepCompletion completes a step once its decision count reaches the
// required threshold, then starts newly eligible steps and re-checks overall
// completion. The count is of decisions, not distinct reviewers.
func (e *Engine) checkStepCompletion(ctx context.Context, wf *ApprovalWorkflow, step *ApprovalStep) error {
	if step.Status == StepCompleted || len(step.Decisions) < step.RequiredDecisionCount() {
		return nil
	}

	now := time.Now().UTC()
	step.Status = StepCompleted
	step.CompletedAt = &now
	for _, id := range step.AssignedReviewers {
		e.pool.Release(id)
	}
	e.emit(ctx, wf, step.ID, schema.EventTypeApprovalStepDone, map[string]any{"step": step.Name})
	logging.LogWith(ctx, e.logger).InfoContext(ctx, "approval step completed",
		slog.String("step", step.Name),
		slog.Int("decisions", len(step.Decisions)))

	if err := e.startNextSteps(ctx, wf); err != nil {
		return err
	}
	e.checkWorkflowCompletion(ctx, wf)
	return nil
}

// startNextSteps promotes every ASSIGNED step whose named dependencies are all
// completed. Several steps can become eligible at once; all are started.
func (e *Engine) startNextSteps(ctx context.Context, wf *ApprovalWorkflow) error {
	nodes := make([]runner.Node, len(wf.Steps))
	completed := make(map[string]bool, len(wf.Steps))
	for i, s := range wf.Steps {
		nodes[i] = s
		if s.Status == StepCompleted {
			completed[s.Name] = true
		}
	}
	graph, err := runner.New(nodes)
	if err != nil {
		return err
	}

	for _, n := range graph.Ready(completed, func(n runner.Node) bool {
		return n.(*ApprovalStep).Status == StepAssigned
	}) {
		step := n.(*ApprovalStep)
		step.Status = StepInProgress
		logging.LogWith(ctx, e.logger).InfoContext(ctx, "approval step started",
			slog.String("step", step.Name))
	}
	return nil
}

// checkWorkflowCompletion resolves the workflow once every step is COMPLETED.
// Decision precedence: any REJECT rejects; else any CONDITIONAL_APPROVE
// conditionally approves; else any APPROVE approves. REQUEST_MORE_INFO never
// counts, so a workflow with only those decisions stays PENDING_REVIEW.
func (e *Engine) checkWorkflowCompletion(ctx context.Context, wf *ApprovalWorkflow) {
	for _, s := range wf.Steps {
		if s.Status != StepCompleted {
			return
		}
	}

	var hasReject, hasConditional, hasApprove bool
	for _, s := range wf.Steps {
		for _, d := range s.Decisions {
			switch d.Decision {
			case DecisionReject:
				hasReject = true
			case DecisionConditionalApprove:
				hasConditional = true
			case DecisionApprove:
				hasApprove = true
			}
		}
	}

	var status ApprovalStatus
	switch {
	case hasReject:
		status = StatusRejected
	case hasConditional:
		status = StatusConditionallyApproved
	case hasApprove:
		status = StatusApproved
	default:
		// Only REQUEST_MORE_INFO decisions were submitted; the workflow
		// stays open awaiting further input.
		return
	}

	now := time.Now().UTC()
	wf.Status = status
	wf.ResolvedAt = &now
	if status == StatusApproved {
		wf.ApprovedAt = &now
	}
	wf.UpdatedAt = now

	e.emit(ctx, wf, "", schema.EventTypeApprovalResolved, map[string]any{
		"status": string(status),
	})
	logging.LogWith(ctx, e.logger).InfoContext(ctx, "approval workflow resolved",
		slog.String("status", string(status)))
}

// criterionPassed applies the criterion guard to one evaluation, falling back
// to the evaluation's own verdict when no guard is set or no engine is wired.
func (e *Engine) criterionPassed(ctx context.Context, crit *Criterion, ev CriteriaEvaluation) (bool, error) {
	if crit.Guard == "" || e.guards == nil {
		return ev.Passed, nil
	}
	out, err := e.guards.Evaluate(ctx, crit.Guard, map[string]any{
		"score":  ev.Score,
		"passed": ev.Passed,
	})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"criterion guard %q did not evaluate to a boolean", crit.Guard)
	}
	return b, nil
}

func confidence(evals []CriteriaEvaluation) float64 {
	if len(evals) == 0 {
		return defaultConfidence
	}
	var sum float64
	for _, ev := range evals {
		sum += ev.Score
	}
	return sum / float64(len(evals))
}

func (e *Engine) writeAudit(ctx context.Context, wf *ApprovalWorkflow, action, resourceID string, details map[string]any) {
	if e.audit == nil {
		return
	}
	payload, _ := json.Marshal(details)
	_ = e.audit.AppendAudit(ctx, &store.AuditEntry{
		WorkflowID:   wf.OnboardingWorkflowID,
		Actor:        "compliance-engine",
		Action:       action,
		ResourceType: "approval_workflow",
		ResourceID:   resourceID,
		Details:      payload,
	})
}

func (e *Engine) emit(ctx context.Context, wf *ApprovalWorkflow, stepID, eventType string, payload map[string]any) {
	if e.events != nil {
		raw, _ := json.Marshal(payload)
		_ = e.events.AppendEvent(ctx, &store.Event{
			WorkflowID: wf.OnboardingWorkflowID,
			StepID:     stepID,
			Type:       eventType,
			Payload:    raw,
		})
	}
	if e.hub != nil {
		_ = e.hub.Publish(ctx, streaming.StreamEvent{
			WorkflowID: wf.OnboardingWorkflowID,
			StepID:     stepID,
			EventType:  eventType,
			Payload:    payload,
		})
	}
}
