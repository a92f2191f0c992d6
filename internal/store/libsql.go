package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/meridianfs/onboard/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
// It is the durable backend for deployments that must survive restarts.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/var/lib/onboard/onboard.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *WorkflowInstance) error {
	stateData, transitions, metadata, err := marshalWorkflowBlobs(wf)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, client_id, tenant_id, current_state, previous_state, state_data, transitions, metadata, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.ClientID, wf.TenantID, string(wf.CurrentState), nullStr(string(wf.PreviousState)),
		stateData, transitions, metadata, timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt), nullTime(wf.CompletedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %s already exists", wf.ID)
	}
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*WorkflowInstance, error) {
	wf := &WorkflowInstance{}
	var (
		prevState, stateData  sql.NullString
		transitions, metadata string
		currentState          string
		completedAt           sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, tenant_id, current_state, previous_state, state_data, transitions, metadata, created_at, updated_at, completed_at
		 FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.ClientID, &wf.TenantID, &currentState, &prevState, &stateData,
		&transitions, &metadata, &wf.CreatedAt, &wf.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	wf.CurrentState = schema.WorkflowState(currentState)
	wf.PreviousState = schema.WorkflowState(prevState.String)
	if stateData.Valid && stateData.String != "" {
		if err := json.Unmarshal([]byte(stateData.String), &wf.StateData); err != nil {
			return nil, fmt.Errorf("unmarshal state_data: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(transitions), &wf.Transitions); err != nil {
		return nil, fmt.Errorf("unmarshal transitions: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &wf.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if completedAt.Valid {
		wf.CompletedAt = &completedAt.Time
	}
	return wf, nil
}

func (s *LibSQLStore) SaveWorkflow(ctx context.Context, wf *WorkflowInstance) error {
	stateData, transitions, metadata, err := marshalWorkflowBlobs(wf)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET current_state = ?, previous_state = ?, state_data = ?, transitions = ?, metadata = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(wf.CurrentState), nullStr(string(wf.PreviousState)), stateData, transitions, metadata,
		timeOrNow(wf.UpdatedAt), nullTime(wf.CompletedAt), wf.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %s not found", wf.ID)
	}
	return err
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowInstance, error) {
	query := `SELECT id FROM workflows WHERE 1=1`
	var args []any
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	if filter.State != nil {
		query += ` AND current_state = ?`
		args = append(args, string(*filter.State))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*WorkflowInstance, 0, len(ids))
	for _, id := range ids {
		wf, err := s.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// --- Events ---

// AppendEvent appends an event with a monotonically increasing per-workflow
// sequence. The sequence read and insert share one transaction so concurrent
// appenders cannot interleave.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE workflow_id = ?`, event.WorkflowID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (workflow_id, step_id, event_type, payload, actor, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.WorkflowID, nullStr(event.StepID), event.Type, nullRaw(event.Payload),
		nullStr(event.Actor), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, step_id, event_type, payload, actor, timestamp, sequence
		 FROM events WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`,
		workflowID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		var stepID, payload, actor sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowID, &stepID, &e.Type, &payload, &actor, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.StepID = stepID.String
		e.Actor = actor.String
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Audit ---

func (s *LibSQLStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_trail (workflow_id, actor, action, resource_type, resource_id, details, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.WorkflowID, entry.Actor, entry.Action, entry.ResourceType,
		nullStr(entry.ResourceID), nullRaw(entry.Details), entry.Timestamp,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (s *LibSQLStore) ListAudit(ctx context.Context, workflowID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, actor, action, resource_type, resource_id, details, timestamp
		 FROM audit_trail WHERE workflow_id = ? ORDER BY id ASC`, workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		a := &AuditEntry{}
		var resourceID, details sql.NullString
		if err := rows.Scan(&a.ID, &a.WorkflowID, &a.Actor, &a.Action, &a.ResourceType, &resourceID, &details, &a.Timestamp); err != nil {
			return nil, err
		}
		a.ResourceID = resourceID.String
		if details.Valid && details.String != "" {
			a.Details = json.RawMessage(details.String)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- helpers ---

func marshalWorkflowBlobs(wf *WorkflowInstance) (stateData, transitions, metadata string, err error) {
	if wf.StateData != nil {
		b, mErr := json.Marshal(wf.StateData)
		if mErr != nil {
			return "", "", "", fmt.Errorf("marshal state_data: %w", mErr)
		}
		stateData = string(b)
	}
	tb, mErr := json.Marshal(wf.Transitions)
	if mErr != nil {
		return "", "", "", fmt.Errorf("marshal transitions: %w", mErr)
	}
	if wf.Transitions == nil {
		tb = []byte("[]")
	}
	mb, mErr := json.Marshal(wf.Metadata)
	if mErr != nil {
		return "", "", "", fmt.Errorf("marshal metadata: %w", mErr)
	}
	return stateData, string(tb), string(mb), nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
