// Package setup implements the account setup engine: it builds the
// configuration, funding, and investment-preference documents for a new
// account and drives them through an ordered, dependency-gated step chain.
package setup

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/onboard/internal/logging"
	"github.com/meridianfs/onboard/internal/runner"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/pkg/schema"
)

// Repository is the persistence boundary for setup requests.
type Repository interface {
	Put(req *SetupRequest) error
	Get(id string) (*SetupRequest, error)
	GetByWorkflow(workflowID string) (*SetupRequest, error)
}

// MemoryRepository is the in-memory Repository implementation.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*SetupRequest
	byWorkflow map[string]string
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*SetupRequest),
		byWorkflow: make(map[string]string),
	}
}

func (r *MemoryRepository) Put(req *SetupRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[req.ID] = req
	r.byWorkflow[req.WorkflowID] = req.ID
	return nil
}

func (r *MemoryRepository) Get(id string) (*SetupRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byID[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "setup request %s not found", id)
	}
	return req, nil
}

func (r *MemoryRepository) GetByWorkflow(workflowID string) (*SetupRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byWorkflow[workflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no setup request for workflow %s", workflowID)
	}
	return r.byID[id], nil
}

// Engine drives setup requests through their step chains.
type Engine struct {
	repo   Repository
	events store.EventAppender
	hub    streaming.EventHub
	logger *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewEngine creates a setup engine.
func NewEngine(repo Repository, events store.EventAppender, hub streaming.EventHub, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:   repo,
		events: events,
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

// CreateRequest builds a setup request for a workflow: caller-supplied
// partial documents merged over defaults, plus the account-type-specific
// step chain.
func (e *Engine) CreateRequest(ctx context.Context, workflowID, clientID string, in Input) (*SetupRequest, error) {
	if in.AccountType == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "account type is required")
	}

	now := time.Now().UTC()
	req := &SetupRequest{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		ClientID:      clientID,
		Status:        SetupInProgress,
		Jurisdiction:  in.Jurisdiction,
		Configuration: mergeConfiguration(in.AccountType, in.Configuration),
		Funding:       mergeFunding(in.Funding),
		Preferences:   mergePreferences(in.Preferences),
		Steps:         buildSteps(in.AccountType),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.repo.Put(req); err != nil {
		return nil, err
	}

	logging.LogWith(logging.WithWorkflowID(ctx, workflowID), e.logger).InfoContext(ctx,
		"setup request created",
		slog.String("setup_id", req.ID),
		slog.String("account_type", string(in.AccountType)),
		slog.Int("steps", len(req.Steps)))
	return req, nil
}

// GetRequest returns a setup request by id.
func (e *Engine) GetRequest(_ context.Context, id string) (*SetupRequest, error) {
	return e.repo.Get(id)
}

// GetByWorkflow returns the setup request owned by a workflow.
func (e *Engine) GetByWorkflow(_ context.Context, workflowID string) (*SetupRequest, error) {
	return e.repo.GetByWorkflow(workflowID)
}

// ProcessNextStep finds and executes the first pending step whose named
// dependencies are all completed. It returns false when no step was eligible,
// after resolving the overall request status: COMPLETED if every step
// completed, FAILED if any step failed, otherwise the request stays
// IN_PROGRESS awaiting external input.
func (e *Engine) ProcessNextStep(ctx context.Context, requestID string) (bool, error) {
	mu := e.lockFor(requestID)
	mu.Lock()
	defer mu.Unlock()

	req, err := e.repo.Get(requestID)
	if err != nil {
		return false, err
	}
	if req.Status != SetupInProgress {
		return false, nil
	}

	ctx = logging.WithWorkflowID(ctx, req.WorkflowID)
	log := logging.LogWith(ctx, e.logger)

	nodes := make([]runner.Node, len(req.Steps))
	for i, s := range req.Steps {
		nodes[i] = s
	}
	graph, err := runner.New(nodes)
	if err != nil {
		return false, err
	}

	completed := make(map[string]bool, len(req.Steps))
	for _, s := range req.Steps {
		if s.Status == schema.StepStatusCompleted {
			completed[s.Name] = true
		}
	}

	next, ok := graph.Next(completed, func(n runner.Node) bool {
		return n.(*SetupStep).Status == schema.StepStatusPending
	})
	if !ok {
		e.resolveStatus(ctx, req)
		return false, e.repo.Put(req)
	}

	step := next.(*SetupStep)
	step.Status = schema.StepStatusInProgress
	req.UpdatedAt = time.Now().UTC()

	handler, found := handlerFor(step.Name)
	var stepErr *SetupError
	if !found {
		stepErr = stepError(step.Name, "UNKNOWN_STEP", "no handler registered for step", schema.SeverityHigh)
	} else {
		stepErr = handler(req)
	}

	if stepErr == nil {
		now := time.Now().UTC()
		step.Status = schema.StepStatusCompleted
		step.CompletedAt = &now
		e.emitStepEvent(ctx, req, step, schema.EventTypeSetupStepCompleted, nil)
		log.InfoContext(ctx, "setup step completed", slog.String("step", step.Name))
	} else {
		step.Status = schema.StepStatusFailed
		step.Error = stepErr
		req.Errors = append(req.Errors, stepErr)
		e.emitStepEvent(ctx, req, step, schema.EventTypeSetupStepFailed, stepErr)
		log.WarnContext(ctx, "setup step failed",
			slog.String("step", step.Name),
			slog.String("severity", string(stepErr.Severity)),
			slog.String("message", stepErr.Message))

		// Critical failures halt the chain; anything below continues to the
		// next eligible step.
		if stepErr.Severity == schema.SeverityCritical {
			req.Status = SetupFailed
			req.UpdatedAt = time.Now().UTC()
			e.emitRequestEvent(ctx, req, schema.EventTypeSetupFailed)
			return true, e.repo.Put(req)
		}
	}

	req.UpdatedAt = time.Now().UTC()
	return true, e.repo.Put(req)
}

// Run drives the step chain until no further step is eligible and returns
// the resolved request.
func (e *Engine) Run(ctx context.Context, requestID string) (*SetupRequest, error) {
	for {
		processed, err := e.ProcessNextStep(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if !processed {
			break
		}
	}
	return e.repo.Get(requestID)
}

// resolveStatus computes the overall status once no step is eligible.
func (e *Engine) resolveStatus(ctx context.Context, req *SetupRequest) {
	allCompleted := true
	anyFailed := false
	for _, s := range req.Steps {
		if s.Status != schema.StepStatusCompleted {
			allCompleted = false
		}
		if s.Status == schema.StepStatusFailed {
			anyFailed = true
		}
	}

	switch {
	case allCompleted:
		req.Status = SetupCompleted
		e.emitRequestEvent(ctx, req, schema.EventTypeSetupCompleted)
	case anyFailed:
		req.Status = SetupFailed
		e.emitRequestEvent(ctx, req, schema.EventTypeSetupFailed)
	}
	req.UpdatedAt = time.Now().UTC()
}

func (e *Engine) emitStepEvent(ctx context.Context, req *SetupRequest, step *SetupStep, eventType string, stepErr *SetupError) {
	var payload json.RawMessage
	if stepErr != nil {
		payload, _ = json.Marshal(stepErr)
	}
	if e.events != nil {
		_ = e.events.AppendEvent(ctx, &store.Event{
			WorkflowID: req.WorkflowID,
			StepID:     step.ID,
			Type:       eventType,
			Payload:    payload,
		})
	}
	if e.hub != nil {
		_ = e.hub.Publish(ctx, streaming.StreamEvent{
			WorkflowID: req.WorkflowID,
			StepID:     step.ID,
			EventType:  eventType,
			Payload:    map[string]any{"step": step.Name},
		})
	}
}

func (e *Engine) emitRequestEvent(ctx context.Context, req *SetupRequest, eventType string) {
	if e.events != nil {
		_ = e.events.AppendEvent(ctx, &store.Event{
			WorkflowID: req.WorkflowID,
			Type:       eventType,
		})
	}
	if e.hub != nil {
		_ = e.hub.Publish(ctx, streaming.StreamEvent{
			WorkflowID: req.WorkflowID,
			EventType:  eventType,
			Payload:    map[string]any{"status": string(req.Status)},
		})
	}
}
