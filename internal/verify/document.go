package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/onboard/internal/logging"
	"github.com/meridianfs/onboard/internal/worker"
	"github.com/meridianfs/onboard/pkg/schema"
)

// requiredDocuments lists what each client type must submit before document
// collection can complete.
var requiredDocuments = map[schema.ClientType][]DocumentType{
	schema.ClientTypeIndividual: {DocPassport, DocUtilityBill},
	schema.ClientTypeJoint:      {DocPassport, DocUtilityBill},
	schema.ClientTypeEntity:     {DocPassport, DocUtilityBill, DocFormation},
}

// RequiredDocuments returns the document types a client type must submit.
func RequiredDocuments(clientType schema.ClientType) []DocumentType {
	return append([]DocumentType(nil), requiredDocuments[clientType]...)
}

// DocumentEngine collects submitted documents and verifies them in batches
// through a bounded worker pool.
type DocumentEngine struct {
	provider Provider
	pool     *worker.Pool
	logger   *slog.Logger

	mu         sync.RWMutex
	documents  map[string]*Document
	byWorkflow map[string][]string
}

// NewDocumentEngine creates a document collection engine. The pool bounds
// batch verification concurrency.
func NewDocumentEngine(provider Provider, pool *worker.Pool, logger *slog.Logger) *DocumentEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentEngine{
		provider:   provider,
		pool:       pool,
		logger:     logger,
		documents:  make(map[string]*Document),
		byWorkflow: make(map[string][]string),
	}
}

// Submit registers a document for a workflow.
func (e *DocumentEngine) Submit(ctx context.Context, workflowID string, docType DocumentType, fileName string) (*Document, error) {
	if docType == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "document type is required")
	}
	d := &Document{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		Type:        docType,
		FileName:    fileName,
		Status:      DocSubmitted,
		SubmittedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	e.documents[d.ID] = d
	e.byWorkflow[workflowID] = append(e.byWorkflow[workflowID], d.ID)
	e.mu.Unlock()

	logging.LogWith(logging.WithWorkflowID(ctx, workflowID), e.logger).InfoContext(ctx,
		"document submitted",
		slog.String("document_id", d.ID),
		slog.String("type", string(docType)))
	return d, nil
}

// Get returns a document by id.
func (e *DocumentEngine) Get(_ context.Context, id string) (*Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.documents[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "document %s not found", id)
	}
	return d, nil
}

// ListByWorkflow returns a workflow's documents in submission order.
func (e *DocumentEngine) ListByWorkflow(_ context.Context, workflowID string) []*Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.byWorkflow[workflowID]
	out := make([]*Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.documents[id])
	}
	return out
}

// MissingDocuments returns the required document types a workflow has not
// submitted yet.
func (e *DocumentEngine) MissingDocuments(ctx context.Context, workflowID string, clientType schema.ClientType) []DocumentType {
	submitted := make(map[DocumentType]bool)
	for _, d := range e.ListByWorkflow(ctx, workflowID) {
		submitted[d.Type] = true
	}
	var missing []DocumentType
	for _, dt := range RequiredDocuments(clientType) {
		if !submitted[dt] {
			missing = append(missing, dt)
		}
	}
	return missing
}

// VerifyBatch runs authenticity checks for all of a workflow's submitted
// documents concurrently through the pool. The checks have no ordering
// guarantee among themselves; the aggregate (hasFailures / requiresReview /
// passed) is computed only after every check has settled.
func (e *DocumentEngine) VerifyBatch(ctx context.Context, workflowID string, capture map[string]any) (*BatchResult, error) {
	docs := e.ListByWorkflow(ctx, workflowID)
	if len(docs) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no documents submitted for workflow %s", workflowID)
	}

	ctx = logging.WithWorkflowID(ctx, workflowID)
	var (
		resMu   sync.Mutex
		results = make(map[string]*CheckResult, len(docs))
		errs    []error
	)
	var wg sync.WaitGroup
	for _, d := range docs {
		doc := d
		wg.Add(1)
		err := e.pool.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()
			pr, err := e.provider.Verify(ctx, doc.ID, CheckDocumentAuthenticity, capture)
			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return err
			}
			results[doc.ID] = newCheckResult(CheckDocumentAuthenticity, pr)
			return nil
		})
		if err != nil {
			wg.Done()
			return nil, schema.NewError(schema.ErrCodeExecution, "verification pool rejected work").WithCause(err)
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"batch verification failed for %d of %d documents", len(errs), len(docs)).WithCause(errs[0])
	}

	batch := &BatchResult{WorkflowID: workflowID, Documents: docs}
	e.mu.Lock()
	for _, d := range docs {
		r := results[d.ID]
		d.Result = r
		switch r.Status {
		case ResultFailed:
			d.Status = DocRejected
			batch.HasFailures = true
		case ResultReviewRequired:
			d.Status = DocReviewRequired
			batch.RequiresReview = true
		default:
			d.Status = DocVerified
		}
	}
	e.mu.Unlock()
	batch.Passed = !batch.HasFailures && !batch.RequiresReview

	logging.LogWith(ctx, e.logger).InfoContext(ctx, "document batch settled",
		slog.Int("documents", len(docs)),
		slog.Bool("passed", batch.Passed),
		slog.Bool("requires_review", batch.RequiresReview))
	return batch, nil
}
