package store

import "context"

// Store defines the persistence contract for the onboarding core.
// Engines own their aggregates through a Store so a durable backend can be
// substituted without touching orchestration logic. All implementations must
// be safe for concurrent use.
type Store interface {
	// Workflow instances
	CreateWorkflow(ctx context.Context, wf *WorkflowInstance) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowInstance, error)
	SaveWorkflow(ctx context.Context, wf *WorkflowInstance) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowInstance, error)

	// Transition event log (append-only, per-workflow monotonic sequence)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error)

	// Audit trail (append-only)
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, workflowID string) ([]*AuditEntry, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Close() error
}

// EventAppender is the narrow slice of Store used by components that only
// emit events (state machine commits, engine audit hooks).
type EventAppender interface {
	AppendEvent(ctx context.Context, event *Event) error
}

// AuditAppender is the narrow slice of Store used by components that only
// write audit records (reviewer assignment, decision submission).
type AuditAppender interface {
	AppendAudit(ctx context.Context, entry *AuditEntry) error
}
