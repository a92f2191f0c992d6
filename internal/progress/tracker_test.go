package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfs/onboard/pkg/schema"
)

// mockNotifier records celebration and delay sends.
type mockNotifier struct {
	mu         sync.Mutex
	milestones []string
	delays     []delayNotice
}

type delayNotice struct {
	reason      string
	newEstimate time.Time
}

func (m *mockNotifier) SendMilestoneCelebration(_ context.Context, _, _, milestone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.milestones = append(m.milestones, milestone)
	return nil
}

func (m *mockNotifier) SendDelay(_ context.Context, _, _, reason string, newEstimate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, delayNotice{reason: reason, newEstimate: newEstimate})
	return nil
}

func (m *mockNotifier) Milestones() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(m.milestones))
	copy(cp, m.milestones)
	return cp
}

func (m *mockNotifier) Delays() []delayNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]delayNotice, len(m.delays))
	copy(cp, m.delays)
	return cp
}

func newTestTracker() (*Tracker, *mockNotifier) {
	notifier := &mockNotifier{}
	return NewTracker(NewMemoryRepository(), nil, nil, notifier, nil), notifier
}

func completePhase(t *testing.T, tr *Tracker, workflowID string, ph *Phase) {
	t.Helper()
	for _, s := range ph.Steps {
		_, err := tr.UpdateStepProgress(context.Background(), workflowID, s.ID, schema.StepStatusCompleted, 100)
		require.NoError(t, err)
	}
}

// --- Creation ---

func TestCreate_IndividualPhases(t *testing.T) {
	tr, _ := newTestTracker()
	p, err := tr.Create(context.Background(), "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	require.Len(t, p.Phases, 4)
	assert.Nil(t, p.Phase(PhaseComplianceApproval))
	assert.Equal(t, PhaseNotStarted, p.Status)
	assert.Equal(t, 0, p.OverallProgress)
}

func TestCreate_EntityGetsComplianceApprovalPhase(t *testing.T) {
	tr, _ := newTestTracker()
	p, err := tr.Create(context.Background(), "wf-1", "client-1", schema.ClientTypeEntity)
	require.NoError(t, err)

	require.Len(t, p.Phases, 5)
	require.NotNil(t, p.Phase(PhaseComplianceApproval))

	final := p.Milestone(MilestoneOnboardingComplete)
	require.NotNil(t, final)
	assert.Contains(t, final.PhaseDependencies, PhaseComplianceApproval)
}

// --- Progress cascade ---

func TestUpdateStepProgress_PhaseFormula(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	docs := p.Phase(PhaseDocumentation)
	require.Len(t, docs.Steps, 3)

	_, err = tr.UpdateStepProgress(ctx, "wf-1", docs.Steps[0].ID, schema.StepStatusCompleted, 100)
	require.NoError(t, err)
	got, err := tr.UpdateStepProgress(ctx, "wf-1", docs.Steps[1].ID, schema.StepStatusInProgress, 50)
	require.NoError(t, err)

	// (100*1 + 50) / 3 = 50
	assert.Equal(t, 50, got.Phase(PhaseDocumentation).Progress)
	assert.Equal(t, PhaseInProgress, got.Phase(PhaseDocumentation).Status)
	assert.Equal(t, PhaseInProgress, got.Status)

	// Overall is the mean across all four phases: (50+0+0+0)/4 rounded.
	assert.Equal(t, 13, got.OverallProgress)
}

func TestUpdateStepProgress_PhaseCompletion(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	completePhase(t, tr, "wf-1", p.Phase(PhaseDocumentation))

	got, err := tr.GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	docs := got.Phase(PhaseDocumentation)
	assert.Equal(t, PhaseCompleted, docs.Status)
	assert.Equal(t, 100, docs.Progress)
	assert.NotNil(t, docs.CompletedAt)
	assert.NotNil(t, docs.ActualDuration)
}

func TestUpdateStepProgress_UnknownStep(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	_, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	_, err = tr.UpdateStepProgress(ctx, "wf-1", "missing", schema.StepStatusCompleted, 100)
	require.Error(t, err)
	obErr, ok := err.(*schema.OnboardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, obErr.Code)
}

func TestFullCompletion(t *testing.T) {
	tr, notifier := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	for _, ph := range p.Phases {
		completePhase(t, tr, "wf-1", ph)
	}

	got, err := tr.GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, got.Status)
	assert.Equal(t, 100, got.OverallProgress)

	final := got.Milestone(MilestoneOnboardingComplete)
	assert.Equal(t, MilestoneAchieved, final.Status)
	assert.NotNil(t, final.AchievedAt)
	assert.Contains(t, notifier.Milestones(), MilestoneOnboardingComplete)
}

// --- Milestones ---

func TestMilestone_AchievedWhenPhaseCompletes(t *testing.T) {
	tr, notifier := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	completePhase(t, tr, "wf-1", p.Phase(PhaseDocumentation))

	got, err := tr.GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, MilestoneAchieved, got.Milestone(MilestoneDocumentsComplete).Status)
	assert.Equal(t, MilestoneUpcoming, got.Milestone(MilestoneVerificationComplete).Status)
	assert.Contains(t, notifier.Milestones(), MilestoneDocumentsComplete)
}

func TestMilestone_BlockedByOpenBlocker(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	// An open blocker on a funding step keeps the verification milestone
	// unachieved through its no_open_blockers criterion.
	funding := p.Phase(PhaseFunding)
	_, err = tr.ReportBlocker(ctx, "wf-1", "bank rejected micro-deposits",
		schema.SeverityMedium, "ops", []string{funding.Steps[0].ID})
	require.NoError(t, err)

	completePhase(t, tr, "wf-1", p.Phase(PhaseDocumentation))
	completePhase(t, tr, "wf-1", p.Phase(PhaseVerification))

	got, err := tr.GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	blocked := got.Milestone(MilestoneVerificationComplete)
	assert.Equal(t, MilestoneUpcoming, blocked.Status)

	// Resolving the blocker lets the next recompute achieve it.
	require.NoError(t, tr.ResolveBlocker(ctx, "wf-1", got.Blockers[0].ID, "bank account re-linked"))
	got, err = tr.GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, MilestoneAchieved, got.Milestone(MilestoneVerificationComplete).Status)
}

// --- Blockers ---

func TestBlockerLifecycle(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	verification := p.Phase(PhaseVerification)
	stepIDs := []string{verification.Steps[0].ID, verification.Steps[1].ID}

	b, err := tr.ReportBlocker(ctx, "wf-1", "document image unreadable",
		schema.SeverityHigh, "verification-provider", stepIDs)
	require.NoError(t, err)
	assert.Equal(t, BlockerOpen, b.Status)

	got, err := tr.GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusBlocked, got.Phase(PhaseVerification).Steps[0].Status)
	assert.Equal(t, schema.StepStatusBlocked, got.Phase(PhaseVerification).Steps[1].Status)
	assert.Equal(t, PhaseBlocked, got.Phase(PhaseVerification).Status)
	assert.Equal(t, PhaseBlocked, got.Status)

	require.NoError(t, tr.EscalateBlocker(ctx, "wf-1", b.ID))
	got, _ = tr.GetByWorkflow(ctx, "wf-1")
	assert.Equal(t, BlockerEscalated, got.Blockers[0].Status)

	// Resolution resets affected steps to PENDING, not to their prior status.
	require.NoError(t, tr.ResolveBlocker(ctx, "wf-1", b.ID, "client re-uploaded documents"))
	got, _ = tr.GetByWorkflow(ctx, "wf-1")
	assert.Equal(t, BlockerResolved, got.Blockers[0].Status)
	assert.NotNil(t, got.Blockers[0].ResolvedAt)
	assert.Equal(t, schema.StepStatusPending, got.Phase(PhaseVerification).Steps[0].Status)
	assert.Equal(t, schema.StepStatusPending, got.Phase(PhaseVerification).Steps[1].Status)
	assert.NotEqual(t, PhaseBlocked, got.Phase(PhaseVerification).Status)
}

func TestResolveBlocker_Twice(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	b, err := tr.ReportBlocker(ctx, "wf-1", "x", schema.SeverityLow, "ops",
		[]string{p.Phases[0].Steps[0].ID})
	require.NoError(t, err)

	require.NoError(t, tr.ResolveBlocker(ctx, "wf-1", b.ID, "done"))
	err = tr.ResolveBlocker(ctx, "wf-1", b.ID, "again")
	require.Error(t, err)
}

func TestEscalateBlocker_OnlyOpen(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	b, err := tr.ReportBlocker(ctx, "wf-1", "x", schema.SeverityLow, "ops",
		[]string{p.Phases[0].Steps[0].ID})
	require.NoError(t, err)
	require.NoError(t, tr.ResolveBlocker(ctx, "wf-1", b.ID, "done"))

	err = tr.EscalateBlocker(ctx, "wf-1", b.ID)
	require.Error(t, err)
}

// --- Timeline ---

func TestTimeline_BufferAppliedOnLowAccuracy(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	// Backdate the documentation phase start so its actual duration blows
	// past the 3-day estimate, driving accuracy to zero.
	docs := p.Phase(PhaseDocumentation)
	_, err = tr.UpdateStepProgress(ctx, "wf-1", docs.Steps[0].ID, schema.StepStatusInProgress, 10)
	require.NoError(t, err)
	started := time.Now().UTC().Add(-10 * 24 * time.Hour)
	docs.StartedAt = &started

	completePhase(t, tr, "wf-1", docs)

	got, err := tr.GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Timeline.Accuracy)
	assert.True(t, got.Timeline.BufferApplied)

	// Remaining = 1.2 * (2d verification + 1d setup + 2d funding).
	expected := time.Duration(float64(5*24*time.Hour) * bufferFactor)
	assert.Equal(t, expected, got.Timeline.RemainingDuration)
}

func TestTimeline_DelayNoticeWhenEstimateSlips(t *testing.T) {
	tr, notifier := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	docs := p.Phase(PhaseDocumentation)
	completePhase(t, tr, "wf-1", docs)
	require.Empty(t, notifier.Delays(), "shrinking estimates must not notify")

	// Reopening completed work pushes the completion estimate back out; the
	// client gets a delay notice carrying the new estimate.
	_, err = tr.ReportBlocker(ctx, "wf-1", "passport scan rejected by registry",
		schema.SeverityHigh, "ops", []string{docs.Steps[0].ID})
	require.NoError(t, err)

	delays := notifier.Delays()
	require.Len(t, delays, 1)
	assert.NotEmpty(t, delays[0].reason)
	assert.True(t, delays[0].newEstimate.After(time.Now().UTC().Add(-time.Minute)))

	got, err := tr.GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, got.Timeline.EstimatedCompletion, delays[0].newEstimate)
}

func TestFullCompletion_NoDelayNotice(t *testing.T) {
	tr, notifier := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	for _, ph := range p.Phases {
		completePhase(t, tr, "wf-1", ph)
	}
	assert.Empty(t, notifier.Delays())
}

func TestTimeline_NoBufferAtFullAccuracy(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	p, err := tr.Create(ctx, "wf-1", "client-1", schema.ClientTypeIndividual)
	require.NoError(t, err)

	assert.Equal(t, 100.0, p.Timeline.Accuracy)
	assert.False(t, p.Timeline.BufferApplied)
	// All four phases remain: 3+2+1+2 days.
	assert.Equal(t, 8*24*time.Hour, p.Timeline.RemainingDuration)
}
