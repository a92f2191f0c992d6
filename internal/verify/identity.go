package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/onboard/internal/logging"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/pkg/schema"
)

// DefaultChecks is the identity check set used when a session names none.
var DefaultChecks = []CheckType{CheckDocumentAuthenticity, CheckLiveness, CheckKBA}

// IdentityEngine runs identity verification sessions.
type IdentityEngine struct {
	provider Provider
	events   store.EventAppender
	hub      streaming.EventHub
	logger   *slog.Logger

	mu         sync.RWMutex
	sessions   map[string]*IdentitySession
	byWorkflow map[string]string
}

// NewIdentityEngine creates an identity verification engine.
func NewIdentityEngine(provider Provider, events store.EventAppender, hub streaming.EventHub, logger *slog.Logger) *IdentityEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityEngine{
		provider:   provider,
		events:     events,
		hub:        hub,
		logger:     logger,
		sessions:   make(map[string]*IdentitySession),
		byWorkflow: make(map[string]string),
	}
}

// CreateSession opens an identity session for a workflow. An empty check list
// takes DefaultChecks.
func (e *IdentityEngine) CreateSession(ctx context.Context, workflowID, clientID string, checks []CheckType) (*IdentitySession, error) {
	if len(checks) == 0 {
		checks = append([]CheckType(nil), DefaultChecks...)
	}
	s := &IdentitySession{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		ClientID:   clientID,
		Status:     SessionPending,
		Checks:     checks,
		CreatedAt:  time.Now().UTC(),
	}

	e.mu.Lock()
	e.sessions[s.ID] = s
	e.byWorkflow[workflowID] = s.ID
	e.mu.Unlock()

	logging.LogWith(logging.WithWorkflowID(ctx, workflowID), e.logger).InfoContext(ctx,
		"identity session created",
		slog.String("session_id", s.ID),
		slog.Int("checks", len(checks)))
	return s, nil
}

// GetSession returns a session by id.
func (e *IdentityEngine) GetSession(_ context.Context, id string) (*IdentitySession, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "identity session %s not found", id)
	}
	return s, nil
}

// GetByWorkflow returns the session owned by a workflow.
func (e *IdentityEngine) GetByWorkflow(_ context.Context, workflowID string) (*IdentitySession, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.byWorkflow[workflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no identity session for workflow %s", workflowID)
	}
	return e.sessions[id], nil
}

// RunSession executes every check of the session through the provider and
// aggregates: any FAILED check fails the session; else any REVIEW_REQUIRED
// check sends it to review; else it passes. Aggregation happens only after
// every check has settled.
func (e *IdentityEngine) RunSession(ctx context.Context, sessionID string, capture map[string]any) (*IdentitySession, error) {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "identity session %s not found", sessionID)
	}
	if s.Status != SessionPending && s.Status != SessionInProgress {
		e.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"identity session %s already settled to %s", sessionID, s.Status)
	}
	s.Status = SessionInProgress
	e.mu.Unlock()

	ctx = logging.WithWorkflowID(ctx, s.WorkflowID)
	results := make([]*CheckResult, 0, len(s.Checks))
	for _, ct := range s.Checks {
		pr, err := e.provider.Verify(ctx, s.ID, ct, capture)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"provider check %s failed: %s", ct, err.Error()).WithCause(err)
		}
		results = append(results, newCheckResult(ct, pr))
	}

	e.mu.Lock()
	s.Results = results
	s.Status = aggregateSession(results)
	now := time.Now().UTC()
	s.CompletedAt = &now
	e.mu.Unlock()

	e.emit(ctx, s)
	logging.LogWith(ctx, e.logger).InfoContext(ctx, "identity session settled",
		slog.String("session_id", s.ID),
		slog.String("status", string(s.Status)))
	return s, nil
}

func aggregateSession(results []*CheckResult) SessionStatus {
	hasFailure := false
	needsReview := false
	for _, r := range results {
		switch r.Status {
		case ResultFailed:
			hasFailure = true
		case ResultReviewRequired:
			needsReview = true
		}
	}
	switch {
	case hasFailure:
		return SessionFailed
	case needsReview:
		return SessionReviewRequired
	default:
		return SessionPassed
	}
}

func (e *IdentityEngine) emit(ctx context.Context, s *IdentitySession) {
	payload := map[string]any{
		"session_id": s.ID,
		"status":     string(s.Status),
	}
	if e.events != nil {
		raw, _ := json.Marshal(payload)
		_ = e.events.AppendEvent(ctx, &store.Event{
			WorkflowID: s.WorkflowID,
			Type:       schema.EventTypeVerificationDone,
			Payload:    raw,
		})
	}
	if e.hub != nil {
		_ = e.hub.Publish(ctx, streaming.StreamEvent{
			WorkflowID: s.WorkflowID,
			EventType:  schema.EventTypeVerificationDone,
			Payload:    payload,
		})
	}
}
