package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meridianfs/onboard/internal/compliance"
	"github.com/meridianfs/onboard/internal/expressions"
	"github.com/meridianfs/onboard/internal/progress"
	"github.com/meridianfs/onboard/internal/setup"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/validation"
	"github.com/meridianfs/onboard/internal/verify"
	"github.com/meridianfs/onboard/internal/workflow"
	"github.com/meridianfs/onboard/pkg/schema"
)

// tenantHeader carries the caller's tenant id. The body field is a fallback
// for callers that cannot set headers.
const tenantHeader = "X-Tenant-ID"

// maxEventDataBytes bounds the event data document accepted on submission.
const maxEventDataBytes = 64 * 1024

// Handlers bundles every engine the HTTP surface fronts.
type Handlers struct {
	machine    *workflow.Machine
	store      store.Store
	setup      *setup.Engine
	compliance *compliance.Engine
	tracker    *progress.Tracker
	identity   *verify.IdentityEngine
	documents  *verify.DocumentEngine
	analytics  expressions.Engine
	validator  validation.Validator
	logger     *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(machine *workflow.Machine, st store.Store, setupEngine *setup.Engine,
	complianceEngine *compliance.Engine, tracker *progress.Tracker,
	identity *verify.IdentityEngine, documents *verify.DocumentEngine,
	analytics expressions.Engine, validator validation.Validator, logger *slog.Logger) *Handlers {

	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		machine:    machine,
		store:      st,
		setup:      setupEngine,
		compliance: complianceEngine,
		tracker:    tracker,
		identity:   identity,
		documents:  documents,
		analytics:  analytics,
		validator:  validator,
		logger:     logger,
	}
}

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

// failErr maps a structured engine error onto its HTTP status.
func failErr(c *gin.Context, err error) {
	var oe *schema.OnboardError
	if !errors.As(err, &oe) {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch oe.Code {
	case schema.ErrCodeNotFound, schema.ErrCodeWorkflowNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeConflict:
		status = http.StatusConflict
	case schema.ErrCodeValidation:
		status = http.StatusBadRequest
	case schema.ErrCodeValidationFailed, schema.ErrCodeInvalidTransition,
		schema.ErrCodeConditionsNotMet, schema.ErrCodeApprovalRequired:
		status = http.StatusUnprocessableEntity
	case schema.ErrCodeCircuitOpen:
		status = http.StatusServiceUnavailable
	}
	fail(c, status, oe.Error())
}

// workflowID validates the :id path parameter. Workflow ids are always UUIDs.
func workflowID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := uuid.Validate(id); err != nil {
		fail(c, http.StatusBadRequest, "workflow id must be a UUID")
		return "", false
	}
	return id, true
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateWorkflowRequest is the body of POST /v1/workflows.
type CreateWorkflowRequest struct {
	ClientID               string   `json:"client_id"`
	TenantID               string   `json:"tenant_id"`
	ClientType             string   `json:"client_type"`
	AccountType            string   `json:"account_type"`
	Jurisdiction           string   `json:"jurisdiction"`
	RegulatoryRequirements []string `json:"regulatory_requirements"`
}

var validClientTypes = map[schema.ClientType]bool{
	schema.ClientTypeIndividual: true,
	schema.ClientTypeJoint:      true,
	schema.ClientTypeEntity:     true,
}

var validAccountTypes = map[schema.AccountType]bool{
	schema.AccountTypeIndividual:     true,
	schema.AccountTypeJoint:          true,
	schema.AccountTypeTraditionalIRA: true,
	schema.AccountTypeRothIRA:        true,
	schema.AccountTypeSEPIRA:         true,
	schema.AccountTypeCorporate:      true,
	schema.AccountTypeLLC:            true,
	schema.AccountTypePartnership:    true,
	schema.AccountTypeTrust:          true,
}

// CreateWorkflow handles POST /v1/workflows.
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientID == "" || len(req.ClientID) > 128 {
		fail(c, http.StatusBadRequest, "client_id is required and must be at most 128 characters")
		return
	}
	if !validClientTypes[schema.ClientType(req.ClientType)] {
		fail(c, http.StatusBadRequest, "unknown client_type "+strconv.Quote(req.ClientType))
		return
	}
	if !validAccountTypes[schema.AccountType(req.AccountType)] {
		fail(c, http.StatusBadRequest, "unknown account_type "+strconv.Quote(req.AccountType))
		return
	}
	tenantID := c.GetHeader(tenantHeader)
	if tenantID == "" {
		tenantID = req.TenantID
	}

	wf, err := h.machine.CreateWorkflow(c.Request.Context(), req.ClientID, tenantID, store.WorkflowMetadata{
		ClientType:             schema.ClientType(req.ClientType),
		AccountType:            schema.AccountType(req.AccountType),
		Jurisdiction:           req.Jurisdiction,
		RegulatoryRequirements: req.RegulatoryRequirements,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, wf)
}

// GetWorkflow handles GET /v1/workflows/:id.
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	wf, err := h.machine.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, wf)
}

// ListWorkflows handles GET /v1/workflows.
func (h *Handlers) ListWorkflows(c *gin.Context) {
	filter := store.WorkflowFilter{
		TenantID: c.GetHeader(tenantHeader),
		ClientID: c.Query("client_id"),
	}
	if state := c.Query("state"); state != "" {
		s := schema.WorkflowState(state)
		filter.State = &s
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	workflows, err := h.store.ListWorkflows(c.Request.Context(), filter)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, workflows)
}

// SubmitEventRequest is the body of POST /v1/workflows/:id/events.
type SubmitEventRequest struct {
	Event       string         `json:"event"`
	Data        map[string]any `json:"data"`
	TriggeredBy string         `json:"triggered_by"`
}

// SubmitEvent handles POST /v1/workflows/:id/events.
//
// Guard failures come back as 422 with the transition result in the body, so
// clients can distinguish a rejected transition from an infrastructure fault.
func (h *Handlers) SubmitEvent(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	var req SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Event == "" {
		fail(c, http.StatusBadRequest, "event is required")
		return
	}
	if raw, err := json.Marshal(req.Data); err == nil && len(raw) > maxEventDataBytes {
		fail(c, http.StatusBadRequest, "event data exceeds the size limit")
		return
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "api"
	}

	result, err := h.machine.ProcessEvent(c.Request.Context(), id,
		schema.WorkflowEvent(req.Event), req.Data, triggeredBy)
	if err != nil {
		failErr(c, err)
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Data: result})
		return
	}
	ok(c, http.StatusOK, result)
}

// GetEvents handles GET /v1/workflows/:id/events.
func (h *Handlers) GetEvents(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	var since int64
	if s := c.Query("since"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "since must be an integer sequence number")
			return
		}
		since = n
	}
	events, err := h.store.GetEvents(c.Request.Context(), id, since)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, events)
}

// AvailableEvents handles GET /v1/workflows/:id/available-events.
func (h *Handlers) AvailableEvents(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	events, err := h.machine.AvailableEvents(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, events)
}

// GetAudit handles GET /v1/workflows/:id/audit.
func (h *Handlers) GetAudit(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	entries, err := h.store.ListAudit(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, entries)
}

// QueryRequest is the body of POST /v1/workflows/:id/query.
type QueryRequest struct {
	Expression string `json:"expression"`
}

// QueryWorkflow handles POST /v1/workflows/:id/query: it evaluates a jq
// expression against the workflow document for ad-hoc analytics.
func (h *Handlers) QueryWorkflow(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Expression == "" {
		fail(c, http.StatusBadRequest, "expression is required")
		return
	}

	wf, err := h.machine.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	doc, err := toDocument(wf)
	if err != nil {
		failErr(c, err)
		return
	}
	result, err := h.analytics.Evaluate(c.Request.Context(), req.Expression, doc)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"result": result})
}

// toDocument round-trips a value through JSON so the query engine sees plain
// maps and slices.
func toDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "serialize workflow document").WithCause(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "deserialize workflow document").WithCause(err)
	}
	return doc, nil
}

// SubmitDocumentRequest is the body of POST /v1/workflows/:id/documents.
type SubmitDocumentRequest struct {
	Type     string `json:"type"`
	FileName string `json:"file_name"`
}

var validDocumentTypes = map[verify.DocumentType]bool{
	verify.DocPassport:       true,
	verify.DocDriversLicense: true,
	verify.DocUtilityBill:    true,
	verify.DocBankStatement:  true,
	verify.DocFormation:      true,
}

// SubmitDocument handles POST /v1/workflows/:id/documents.
func (h *Handlers) SubmitDocument(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	var req SubmitDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validDocumentTypes[verify.DocumentType(req.Type)] {
		fail(c, http.StatusBadRequest, "unknown document type "+strconv.Quote(req.Type))
		return
	}

	doc, err := h.documents.Submit(c.Request.Context(), id, verify.DocumentType(req.Type), req.FileName)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, doc)
}

// ListDocuments handles GET /v1/workflows/:id/documents.
func (h *Handlers) ListDocuments(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	ok(c, http.StatusOK, h.documents.ListByWorkflow(c.Request.Context(), id))
}

// CaptureRequest carries provider capture data for a verification run.
type CaptureRequest struct {
	Capture map[string]any `json:"capture"`
}

// VerifyDocuments handles POST /v1/workflows/:id/documents/verify.
func (h *Handlers) VerifyDocuments(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.documents.VerifyBatch(c.Request.Context(), id, req.Capture)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

// CreateSessionRequest is the body of POST /v1/workflows/:id/identity/sessions.
// An empty check list takes the default check set.
type CreateSessionRequest struct {
	Checks []string `json:"checks"`
}

var validCheckTypes = map[verify.CheckType]bool{
	verify.CheckDocumentAuthenticity: true,
	verify.CheckLiveness:             true,
	verify.CheckKBA:                  true,
}

// CreateIdentitySession handles POST /v1/workflows/:id/identity/sessions.
func (h *Handlers) CreateIdentitySession(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	checks := make([]verify.CheckType, 0, len(req.Checks))
	for _, raw := range req.Checks {
		ct := verify.CheckType(raw)
		if !validCheckTypes[ct] {
			fail(c, http.StatusBadRequest, "unknown check type "+strconv.Quote(raw))
			return
		}
		checks = append(checks, ct)
	}

	wf, err := h.machine.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	session, err := h.identity.CreateSession(c.Request.Context(), id, wf.ClientID, checks)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, session)
}

// GetIdentitySession handles GET /v1/workflows/:id/identity.
func (h *Handlers) GetIdentitySession(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	session, err := h.identity.GetByWorkflow(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, session)
}

// RunIdentitySession handles POST /v1/identity/sessions/:sessionID/run.
func (h *Handlers) RunIdentitySession(c *gin.Context) {
	sessionID := c.Param("sessionID")
	if err := uuid.Validate(sessionID); err != nil {
		fail(c, http.StatusBadRequest, "session id must be a UUID")
		return
	}
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.identity.RunSession(c.Request.Context(), sessionID, req.Capture)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, session)
}

// GetApproval handles GET /v1/workflows/:id/approval.
func (h *Handlers) GetApproval(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	wf, err := h.compliance.GetByWorkflow(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, wf)
}

// SubmitDecisionRequest is the body of a reviewer decision submission.
type SubmitDecisionRequest struct {
	ReviewerID  string                          `json:"reviewer_id"`
	Decision    string                          `json:"decision"`
	Comments    string                          `json:"comments"`
	Evaluations []compliance.CriteriaEvaluation `json:"evaluations"`
}

var validDecisions = map[compliance.Decision]bool{
	compliance.DecisionApprove:            true,
	compliance.DecisionReject:             true,
	compliance.DecisionConditionalApprove: true,
	compliance.DecisionRequestMoreInfo:    true,
}

// SubmitDecision handles POST /v1/approvals/:approvalID/steps/:stepID/decisions.
func (h *Handlers) SubmitDecision(c *gin.Context) {
	approvalID := c.Param("approvalID")
	stepID := c.Param("stepID")
	if uuid.Validate(approvalID) != nil || uuid.Validate(stepID) != nil {
		fail(c, http.StatusBadRequest, "approval and step ids must be UUIDs")
		return
	}
	var req SubmitDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReviewerID == "" {
		fail(c, http.StatusBadRequest, "reviewer_id is required")
		return
	}
	if !validDecisions[compliance.Decision(req.Decision)] {
		fail(c, http.StatusBadRequest, "unknown decision "+strconv.Quote(req.Decision))
		return
	}

	decision, err := h.compliance.SubmitDecision(c.Request.Context(), approvalID, stepID,
		req.ReviewerID, compliance.Decision(req.Decision), req.Comments, req.Evaluations)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, decision)
}

// CreateSetup handles POST /v1/workflows/:id/setup: a caller-supplied setup
// document validated against the setup input schema. The coordinator reuses
// this request instead of building a default one when the workflow reaches
// account setup.
func (h *Handlers) CreateSetup(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	var in setup.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if h.validator != nil {
		if err := h.validator.ValidateSetupInput(&in); err != nil {
			failErr(c, err)
			return
		}
	}

	wf, err := h.machine.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	req, err := h.setup.CreateRequest(c.Request.Context(), wf.ID, wf.ClientID, in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, req)
}

// GetSetup handles GET /v1/workflows/:id/setup.
func (h *Handlers) GetSetup(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	req, err := h.setup.GetByWorkflow(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, req)
}

// GetProgress handles GET /v1/workflows/:id/progress.
func (h *Handlers) GetProgress(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	p, err := h.tracker.GetByWorkflow(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdateStepProgressRequest is the body of a step progress update.
type UpdateStepProgressRequest struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

var validStepStatuses = map[schema.StepStatus]bool{
	schema.StepStatusPending:    true,
	schema.StepStatusInProgress: true,
	schema.StepStatusCompleted:  true,
	schema.StepStatusFailed:     true,
	schema.StepStatusBlocked:    true,
	schema.StepStatusSkipped:    true,
}

// UpdateStepProgress handles POST /v1/workflows/:id/progress/steps/:stepID.
func (h *Handlers) UpdateStepProgress(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	stepID := c.Param("stepID")
	if err := uuid.Validate(stepID); err != nil {
		fail(c, http.StatusBadRequest, "step id must be a UUID")
		return
	}
	var req UpdateStepProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validStepStatuses[schema.StepStatus(req.Status)] {
		fail(c, http.StatusBadRequest, "unknown step status "+strconv.Quote(req.Status))
		return
	}

	p, err := h.tracker.UpdateStepProgress(c.Request.Context(), id, stepID,
		schema.StepStatus(req.Status), req.Progress)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// ReportBlockerRequest is the body of POST /v1/workflows/:id/blockers.
type ReportBlockerRequest struct {
	Description     string   `json:"description"`
	Severity        string   `json:"severity"`
	ReportedBy      string   `json:"reported_by"`
	AffectedStepIDs []string `json:"affected_step_ids"`
}

var validSeverities = map[schema.Severity]bool{
	schema.SeverityLow:      true,
	schema.SeverityMedium:   true,
	schema.SeverityHigh:     true,
	schema.SeverityCritical: true,
}

// ReportBlocker handles POST /v1/workflows/:id/blockers.
func (h *Handlers) ReportBlocker(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	var req ReportBlockerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Description == "" || len(req.Description) > 1024 {
		fail(c, http.StatusBadRequest, "description is required and must be at most 1024 characters")
		return
	}
	if !validSeverities[schema.Severity(req.Severity)] {
		fail(c, http.StatusBadRequest, "unknown severity "+strconv.Quote(req.Severity))
		return
	}

	blocker, err := h.tracker.ReportBlocker(c.Request.Context(), id, req.Description,
		schema.Severity(req.Severity), req.ReportedBy, req.AffectedStepIDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, blocker)
}

// EscalateBlocker handles POST /v1/workflows/:id/blockers/:blockerID/escalate.
func (h *Handlers) EscalateBlocker(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	blockerID := c.Param("blockerID")
	if err := uuid.Validate(blockerID); err != nil {
		fail(c, http.StatusBadRequest, "blocker id must be a UUID")
		return
	}
	if err := h.tracker.EscalateBlocker(c.Request.Context(), id, blockerID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// ResolveBlockerRequest is the body of a blocker resolution.
type ResolveBlockerRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveBlocker handles POST /v1/workflows/:id/blockers/:blockerID/resolve.
func (h *Handlers) ResolveBlocker(c *gin.Context) {
	id, valid := workflowID(c)
	if !valid {
		return
	}
	blockerID := c.Param("blockerID")
	if err := uuid.Validate(blockerID); err != nil {
		fail(c, http.StatusBadRequest, "blocker id must be a UUID")
		return
	}
	var req ResolveBlockerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Resolution == "" {
		fail(c, http.StatusBadRequest, "resolution is required")
		return
	}
	if err := h.tracker.ResolveBlocker(c.Request.Context(), id, blockerID, req.Resolution); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}
