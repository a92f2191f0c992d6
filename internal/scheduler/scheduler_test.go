package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/pkg/schema"
)

// fakeLister serves a fixed workflow list.
type fakeLister struct {
	workflows []*store.WorkflowInstance
}

func (f *fakeLister) ListWorkflows(_ context.Context, _ store.WorkflowFilter) ([]*store.WorkflowInstance, error) {
	return f.workflows, nil
}

// recordingNotifier records step reminders.
type recordingNotifier struct {
	mu        sync.Mutex
	reminders []string // workflow ids
}

func (r *recordingNotifier) SendWelcome(_ context.Context, _, _ string) error { return nil }
func (r *recordingNotifier) SendStepReminder(_ context.Context, workflowID, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders = append(r.reminders, workflowID)
	return nil
}
func (r *recordingNotifier) SendMilestoneCelebration(_ context.Context, _, _, _ string) error {
	return nil
}
func (r *recordingNotifier) SendDelay(_ context.Context, _, _, _ string, _ time.Time) error {
	return nil
}
func (r *recordingNotifier) SendBlockerAlert(_ context.Context, _, _, _ string) error  { return nil }
func (r *recordingNotifier) SendCompletionNotice(_ context.Context, _, _ string) error { return nil }

func (r *recordingNotifier) Reminders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]string, len(r.reminders))
	copy(cp, r.reminders)
	return cp
}

func wf(id string, state schema.WorkflowState, idle time.Duration) *store.WorkflowInstance {
	return &store.WorkflowInstance{
		ID:           id,
		ClientID:     "client-" + id,
		CurrentState: state,
		UpdatedAt:    time.Now().UTC().Add(-idle),
	}
}

func TestScan_RemindsOnlyStalledNonTerminal(t *testing.T) {
	lister := &fakeLister{workflows: []*store.WorkflowInstance{
		wf("stalled", schema.StateDocumentCollection, 72*time.Hour),
		wf("fresh", schema.StateDocumentCollection, time.Hour),
		wf("done", schema.StateCompleted, 200*time.Hour),
		wf("rejected", schema.StateRejected, 200*time.Hour),
	}}
	notifier := &recordingNotifier{}
	s := NewReminderScheduler(lister, notifier, 48*time.Hour, nil)

	require.NoError(t, s.Scan(context.Background()))
	assert.Equal(t, []string{"stalled"}, notifier.Reminders())
}

func TestScan_RemindsOncePerIdlePeriod(t *testing.T) {
	stalled := wf("stalled", schema.StateKYCProcessing, 72*time.Hour)
	lister := &fakeLister{workflows: []*store.WorkflowInstance{stalled}}
	notifier := &recordingNotifier{}
	s := NewReminderScheduler(lister, notifier, 48*time.Hour, nil)

	require.NoError(t, s.Scan(context.Background()))
	require.NoError(t, s.Scan(context.Background()))
	assert.Len(t, notifier.Reminders(), 1)

	// Movement clears the reminder record; once the workflow stalls again
	// it is reminded again.
	stalled.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.Scan(context.Background()))
	assert.Len(t, notifier.Reminders(), 1)

	stalled.UpdatedAt = time.Now().UTC().Add(-49 * time.Hour)
	require.NoError(t, s.Scan(context.Background()))
	assert.Len(t, notifier.Reminders(), 2)
}

func TestStartStop(t *testing.T) {
	lister := &fakeLister{}
	s := NewReminderScheduler(lister, &recordingNotifier{}, 0, nil)

	require.NoError(t, s.Start("@every 1h"))
	assert.Error(t, s.Start("@every 1h")) // double start
	s.Stop()

	// Restart after stop is allowed.
	require.NoError(t, s.Start(""))
	s.Stop()
}

func TestStart_InvalidSpec(t *testing.T) {
	s := NewReminderScheduler(&fakeLister{}, &recordingNotifier{}, 0, nil)
	assert.Error(t, s.Start("not a cron spec"))
}
