package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meridianfs/onboard/pkg/schema"
)

// MemoryStore is the in-memory Store implementation. It is the default
// backend: one map per entity kind, keyed by generated id, mirroring the
// process-lifetime layout the engines expect.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*WorkflowInstance
	events    map[string][]*Event // workflow id → ordered events
	audit     map[string][]*AuditEntry
	eventID   int64
	auditID   int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*WorkflowInstance),
		events:    make(map[string][]*Event),
		audit:     make(map[string][]*AuditEntry),
	}
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, wf *WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[wf.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %s already exists", wf.ID)
	}
	s.workflows[wf.ID] = wf
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %s not found", id)
	}
	return wf, nil
}

func (s *MemoryStore) SaveWorkflow(_ context.Context, wf *WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; !ok {
		return schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %s not found", wf.ID)
	}
	s.workflows[wf.ID] = wf
	return nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*WorkflowInstance, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if filter.TenantID != "" && wf.TenantID != filter.TenantID {
			continue
		}
		if filter.ClientID != "" && wf.ClientID != filter.ClientID {
			continue
		}
		if filter.State != nil && wf.CurrentState != *filter.State {
			continue
		}
		if filter.Since != nil && wf.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventID++
	event.ID = s.eventID
	event.Sequence = int64(len(s.events[event.WorkflowID])) + 1
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.events[event.WorkflowID] = append(s.events[event.WorkflowID], event)
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, workflowID string, since int64) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.events[workflowID]
	out := make([]*Event, 0, len(all))
	for _, e := range all {
		if e.Sequence > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditID++
	entry.ID = s.auditID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.audit[entry.WorkflowID] = append(s.audit[entry.WorkflowID], entry)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, workflowID string) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.audit[workflowID]
	out := make([]*AuditEntry, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
