package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/onboard/internal/logging"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/pkg/schema"
)

// Repository is the persistence boundary for progress aggregates.
type Repository interface {
	Put(p *OnboardingProgress) error
	Get(id string) (*OnboardingProgress, error)
	GetByWorkflow(workflowID string) (*OnboardingProgress, error)
}

// MemoryRepository is the in-memory Repository implementation.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*OnboardingProgress
	byWorkflow map[string]string
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*OnboardingProgress),
		byWorkflow: make(map[string]string),
	}
}

func (r *MemoryRepository) Put(p *OnboardingProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
	r.byWorkflow[p.WorkflowID] = p.ID
	return nil
}

func (r *MemoryRepository) Get(id string) (*OnboardingProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "progress %s not found", id)
	}
	return p, nil
}

func (r *MemoryRepository) GetByWorkflow(workflowID string) (*OnboardingProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byWorkflow[workflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no progress for workflow %s", workflowID)
	}
	return r.byID[id], nil
}

// Notifier receives the tracker's outbound sends: milestone celebrations and
// delay notices when the completion estimate slips. The notification port
// satisfies this.
type Notifier interface {
	SendMilestoneCelebration(ctx context.Context, workflowID, clientID, milestone string) error
	SendDelay(ctx context.Context, workflowID, clientID, reason string, newEstimate time.Time) error
}

// Tracker maintains the progress aggregates and runs the cascade
// recomputation after every mutation.
type Tracker struct {
	repo     Repository
	events   store.EventAppender
	hub      streaming.EventHub
	notifier Notifier
	logger   *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewTracker creates a progress tracker. The notifier may be nil, which
// disables celebration and delay sends.
func NewTracker(repo Repository, events store.EventAppender, hub streaming.EventHub,
	notifier Notifier, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		repo:     repo,
		events:   events,
		hub:      hub,
		notifier: notifier,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (t *Tracker) lockFor(id string) *sync.Mutex {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	mu, ok := t.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		t.locks[id] = mu
	}
	return mu
}

// Create builds the progress aggregate for a workflow from the client-type
// phase template.
func (t *Tracker) Create(ctx context.Context, workflowID, clientID string, clientType schema.ClientType) (*OnboardingProgress, error) {
	now := time.Now().UTC()
	p := &OnboardingProgress{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		ClientID:   clientID,
		ClientType: clientType,
		Status:     PhaseNotStarted,
		Phases:     buildPhases(clientType),
		Milestones: buildMilestones(clientType),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p.Timeline = computeTimeline(p, now)
	if err := t.repo.Put(p); err != nil {
		return nil, err
	}
	logging.LogWith(logging.WithWorkflowID(ctx, workflowID), t.logger).InfoContext(ctx,
		"progress tracking started",
		slog.String("client_type", string(clientType)),
		slog.Int("phases", len(p.Phases)))
	return p, nil
}

// Get returns a progress aggregate by id.
func (t *Tracker) Get(_ context.Context, id string) (*OnboardingProgress, error) {
	return t.repo.Get(id)
}

// GetByWorkflow returns the progress aggregate owned by a workflow.
func (t *Tracker) GetByWorkflow(_ context.Context, workflowID string) (*OnboardingProgress, error) {
	return t.repo.GetByWorkflow(workflowID)
}

// UpdateStepProgress sets one step's status and completion percentage, then
// cascades: phase progress and status, overall progress and status, milestone
// checks, and the timeline estimate.
func (t *Tracker) UpdateStepProgress(ctx context.Context, workflowID, stepID string,
	status schema.StepStatus, percent int) (*OnboardingProgress, error) {

	mu := t.lockFor(workflowID)
	mu.Lock()
	defer mu.Unlock()

	p, err := t.repo.GetByWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	_, step := p.FindStep(stepID)
	if step == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "progress step %s not found", stepID)
	}

	step.Status = status
	switch status {
	case schema.StepStatusCompleted:
		step.Progress = 100
	case schema.StepStatusPending:
		step.Progress = 0
	default:
		step.Progress = clampPercent(percent)
	}

	ctx = logging.WithWorkflowID(ctx, workflowID)
	t.recompute(ctx, p)
	t.emit(ctx, p, stepID, schema.EventTypeProgressUpdated, map[string]any{
		"overall_progress": p.OverallProgress,
		"status":           string(p.Status),
	})
	return p, t.repo.Put(p)
}

// ReportBlocker registers a blocker and marks every affected step BLOCKED.
func (t *Tracker) ReportBlocker(ctx context.Context, workflowID, description string,
	severity schema.Severity, reportedBy string, affectedStepIDs []string) (*Blocker, error) {

	mu := t.lockFor(workflowID)
	mu.Lock()
	defer mu.Unlock()

	p, err := t.repo.GetByWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	for _, stepID := range affectedStepIDs {
		if _, step := p.FindStep(stepID); step == nil {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "progress step %s not found", stepID)
		}
	}

	b := &Blocker{
		ID:              uuid.NewString(),
		Description:     description,
		Severity:        severity,
		Status:          BlockerOpen,
		AffectedStepIDs: affectedStepIDs,
		ReportedBy:      reportedBy,
		ReportedAt:      time.Now().UTC(),
	}
	p.Blockers = append(p.Blockers, b)

	for _, stepID := range affectedStepIDs {
		_, step := p.FindStep(stepID)
		step.Status = schema.StepStatusBlocked
	}

	ctx = logging.WithWorkflowID(ctx, workflowID)
	t.recompute(ctx, p)
	t.emit(ctx, p, "", schema.EventTypeBlockerReported, map[string]any{
		"blocker_id": b.ID,
		"severity":   string(severity),
	})
	logging.LogWith(ctx, t.logger).WarnContext(ctx, "blocker reported",
		slog.String("blocker_id", b.ID),
		slog.String("severity", string(severity)),
		slog.Int("affected_steps", len(affectedStepIDs)))
	return b, t.repo.Put(p)
}

// EscalateBlocker moves an open blocker to ESCALATED.
func (t *Tracker) EscalateBlocker(ctx context.Context, workflowID, blockerID string) error {
	mu := t.lockFor(workflowID)
	mu.Lock()
	defer mu.Unlock()

	p, err := t.repo.GetByWorkflow(workflowID)
	if err != nil {
		return err
	}
	b := p.Blocker(blockerID)
	if b == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "blocker %s not found", blockerID)
	}
	if b.Status != BlockerOpen {
		return schema.NewErrorf(schema.ErrCodeConflict, "blocker %s is %s, only open blockers escalate", blockerID, b.Status)
	}
	b.Status = BlockerEscalated
	p.UpdatedAt = time.Now().UTC()
	return t.repo.Put(p)
}

// ResolveBlocker resolves a blocker and resets its affected steps to PENDING
// so the dependency scanners pick them up again. Prior step status is not
// restored.
func (t *Tracker) ResolveBlocker(ctx context.Context, workflowID, blockerID, resolution string) error {
	mu := t.lockFor(workflowID)
	mu.Lock()
	defer mu.Unlock()

	p, err := t.repo.GetByWorkflow(workflowID)
	if err != nil {
		return err
	}
	b := p.Blocker(blockerID)
	if b == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "blocker %s not found", blockerID)
	}
	if b.Status == BlockerResolved || b.Status == BlockerClosed {
		return schema.NewErrorf(schema.ErrCodeConflict, "blocker %s already %s", blockerID, b.Status)
	}

	now := time.Now().UTC()
	b.Status = BlockerResolved
	b.Resolution = resolution
	b.ResolvedAt = &now

	for _, stepID := range b.AffectedStepIDs {
		if _, step := p.FindStep(stepID); step != nil && step.Status == schema.StepStatusBlocked {
			step.Status = schema.StepStatusPending
			step.Progress = 0
		}
	}

	ctx = logging.WithWorkflowID(ctx, workflowID)
	t.recompute(ctx, p)
	t.emit(ctx, p, "", schema.EventTypeBlockerResolved, map[string]any{"blocker_id": b.ID})
	return t.repo.Put(p)
}

// recompute runs the full cascade: per-phase progress and status, overall
// progress and status, milestone checks, timeline.
func (t *Tracker) recompute(ctx context.Context, p *OnboardingProgress) {
	now := time.Now().UTC()
	for _, ph := range p.Phases {
		recomputePhase(ph, now)
	}

	var sum int
	allCompleted := true
	anyBlocked := false
	for _, ph := range p.Phases {
		sum += ph.Progress
		if ph.Status != PhaseCompleted {
			allCompleted = false
		}
		if ph.Status == PhaseBlocked {
			anyBlocked = true
		}
	}
	p.OverallProgress = int(math.Round(float64(sum) / float64(len(p.Phases))))

	switch {
	case allCompleted:
		p.Status = PhaseCompleted
	case anyBlocked:
		p.Status = PhaseBlocked
	case p.OverallProgress > 0:
		p.Status = PhaseInProgress
	default:
		p.Status = PhaseNotStarted
	}

	t.checkMilestones(ctx, p, now)
	prev := p.Timeline
	p.Timeline = computeTimeline(p, now)
	p.UpdatedAt = now

	// Remaining work only grows when completed work is reopened or the
	// low-accuracy buffer kicks in. Either way the client's completion
	// estimate just slipped, which warrants a delay notice.
	if t.notifier != nil && p.Timeline.RemainingDuration > prev.RemainingDuration {
		reason := "remaining onboarding work increased"
		if p.Timeline.BufferApplied && !prev.BufferApplied {
			reason = "estimate accuracy dropped, schedule buffer applied"
		}
		_ = t.notifier.SendDelay(ctx, p.WorkflowID, p.ClientID, reason, p.Timeline.EstimatedCompletion)
		logging.LogWith(ctx, t.logger).WarnContext(ctx, "completion estimate slipped",
			slog.String("reason", reason),
			slog.Time("new_estimate", p.Timeline.EstimatedCompletion))
	}
}

// recomputePhase derives a phase's progress and status from its steps:
// progress = (100*completedSteps + sum(inProgressStep.progress)) / totalSteps,
// rounded. Status flips at the 0%/100% boundaries; any blocked step blocks
// the phase.
func recomputePhase(ph *Phase, now time.Time) {
	if len(ph.Steps) == 0 {
		return
	}

	completed := 0
	var inProgressSum float64
	blocked := false
	for _, s := range ph.Steps {
		switch s.Status {
		case schema.StepStatusCompleted:
			completed++
		case schema.StepStatusInProgress:
			inProgressSum += float64(s.Progress)
		case schema.StepStatusBlocked:
			blocked = true
		}
	}
	ph.Progress = int(math.Round((100*float64(completed) + inProgressSum) / float64(len(ph.Steps))))

	switch {
	case blocked:
		ph.Status = PhaseBlocked
	case ph.Progress >= 100:
		if ph.Status != PhaseCompleted {
			ph.Status = PhaseCompleted
			ph.CompletedAt = &now
			if ph.StartedAt != nil {
				d := now.Sub(*ph.StartedAt)
				ph.ActualDuration = &d
			}
		}
	case ph.Progress > 0:
		if ph.StartedAt == nil {
			started := now
			ph.StartedAt = &started
		}
		ph.Status = PhaseInProgress
		ph.CompletedAt = nil
		ph.ActualDuration = nil
	default:
		ph.Status = PhaseNotStarted
	}
}

// checkMilestones re-evaluates every UPCOMING milestone: phase dependencies
// must all be completed, then every criterion must evaluate truthy.
func (t *Tracker) checkMilestones(ctx context.Context, p *OnboardingProgress, now time.Time) {
	for _, m := range p.Milestones {
		if m.Status != MilestoneUpcoming || !milestoneEligible(p, m) {
			continue
		}
		achieved := true
		for _, c := range m.Criteria {
			if !evaluateCriterion(p, c) {
				achieved = false
				break
			}
		}
		if !achieved {
			continue
		}

		achievedAt := now
		m.Status = MilestoneAchieved
		m.AchievedAt = &achievedAt
		t.emit(ctx, p, "", schema.EventTypeMilestoneAchieved, map[string]any{"milestone": m.Name})
		logging.LogWith(ctx, t.logger).InfoContext(ctx, "milestone achieved",
			slog.String("milestone", m.Name))
		if m.Celebrate && t.notifier != nil {
			_ = t.notifier.SendMilestoneCelebration(ctx, p.WorkflowID, p.ClientID, m.Name)
		}
	}
}

func (t *Tracker) emit(ctx context.Context, p *OnboardingProgress, stepID, eventType string, payload map[string]any) {
	if t.events != nil {
		raw, _ := json.Marshal(payload)
		_ = t.events.AppendEvent(ctx, &store.Event{
			WorkflowID: p.WorkflowID,
			StepID:     stepID,
			Type:       eventType,
			Payload:    raw,
		})
	}
	if t.hub != nil {
		_ = t.hub.Publish(ctx, streaming.StreamEvent{
			WorkflowID: p.WorkflowID,
			StepID:     stepID,
			EventType:  eventType,
			Payload:    payload,
		})
	}
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
