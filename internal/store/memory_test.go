package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfs/onboard/pkg/schema"
)

func seedWorkflow(t *testing.T, s *MemoryStore, id, clientID, tenantID string, state schema.WorkflowState, createdAt time.Time) *WorkflowInstance {
	t.Helper()
	wf := &WorkflowInstance{
		ID:           id,
		ClientID:     clientID,
		TenantID:     tenantID,
		CurrentState: state,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	require.NoError(t, s.CreateWorkflow(context.Background(), wf))
	return wf
}

func TestMemoryStore_WorkflowCRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	wf := seedWorkflow(t, s, "wf-1", "client-1", "tenant-1", schema.StateInitiated, now)

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)

	// Duplicate create conflicts.
	err = s.CreateWorkflow(ctx, &WorkflowInstance{ID: "wf-1"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, err.(*schema.OnboardError).Code)

	wf.CurrentState = schema.StateDocumentCollection
	require.NoError(t, s.SaveWorkflow(ctx, wf))
	got, err = s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, schema.StateDocumentCollection, got.CurrentState)

	// Save of an unknown id is rejected, not upserted.
	err = s.SaveWorkflow(ctx, &WorkflowInstance{ID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeWorkflowNotFound, err.(*schema.OnboardError).Code)

	_, err = s.GetWorkflow(ctx, "ghost")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeWorkflowNotFound, err.(*schema.OnboardError).Code)
}

func TestMemoryStore_ListWorkflows(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	seedWorkflow(t, s, "wf-1", "client-1", "tenant-1", schema.StateInitiated, base)
	seedWorkflow(t, s, "wf-2", "client-2", "tenant-1", schema.StateCompleted, base.Add(time.Minute))
	seedWorkflow(t, s, "wf-3", "client-1", "tenant-2", schema.StateInitiated, base.Add(2*time.Minute))

	t.Run("tenant filter", func(t *testing.T) {
		out, err := s.ListWorkflows(ctx, WorkflowFilter{TenantID: "tenant-1"})
		require.NoError(t, err)
		require.Len(t, out, 2)
		// Sorted by creation time.
		assert.Equal(t, "wf-1", out[0].ID)
		assert.Equal(t, "wf-2", out[1].ID)
	})

	t.Run("client filter", func(t *testing.T) {
		out, err := s.ListWorkflows(ctx, WorkflowFilter{ClientID: "client-1"})
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("state filter", func(t *testing.T) {
		state := schema.StateCompleted
		out, err := s.ListWorkflows(ctx, WorkflowFilter{State: &state})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "wf-2", out[0].ID)
	})

	t.Run("since filter", func(t *testing.T) {
		since := base.Add(30 * time.Second)
		out, err := s.ListWorkflows(ctx, WorkflowFilter{Since: &since})
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("limit", func(t *testing.T) {
		out, err := s.ListWorkflows(ctx, WorkflowFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "wf-1", out[0].ID)
	})
}

func TestMemoryStore_EventLog(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &Event{WorkflowID: "wf-1", Type: "state_transitioned"}))
	}
	require.NoError(t, s.AppendEvent(ctx, &Event{WorkflowID: "wf-2", Type: "workflow_created"}))

	events, err := s.GetEvents(ctx, "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Sequence is per-workflow monotonic; timestamps are filled in.
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.False(t, e.Timestamp.IsZero())
	}

	other, err := s.GetEvents(ctx, "wf-2", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(1), other[0].Sequence)

	// since is exclusive.
	tail, err := s.GetEvents(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Sequence)
}

func TestMemoryStore_AuditTrail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AppendAudit(ctx, &AuditEntry{
		WorkflowID: "wf-1", Actor: "ops-1", Action: "decision_submitted", ResourceType: "approval",
	}))
	require.NoError(t, s.AppendAudit(ctx, &AuditEntry{
		WorkflowID: "wf-1", Actor: "ops-2", Action: "blocker_resolved", ResourceType: "progress",
	}))

	entries, err := s.ListAudit(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(2), entries[1].ID)
	assert.False(t, entries[0].Timestamp.IsZero())

	empty, err := s.ListAudit(ctx, "wf-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
