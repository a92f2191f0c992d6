package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfs/onboard/internal/compliance"
	"github.com/meridianfs/onboard/internal/expressions"
	"github.com/meridianfs/onboard/internal/notify"
	"github.com/meridianfs/onboard/internal/progress"
	"github.com/meridianfs/onboard/internal/setup"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/internal/validation"
	"github.com/meridianfs/onboard/internal/verify"
	"github.com/meridianfs/onboard/internal/worker"
	"github.com/meridianfs/onboard/internal/workflow"
)

type testEnv struct {
	router     *gin.Engine
	machine    *workflow.Machine
	store      *store.MemoryStore
	hub        *streaming.MemoryHub
	setup      *setup.Engine
	compliance *compliance.Engine
	tracker    *progress.Tracker
	identity   *verify.IdentityEngine
	documents  *verify.DocumentEngine
	notifier   notify.Port
}

func testPool() *compliance.ReviewerPool {
	mk := func(id string, role compliance.ReviewerRole) *compliance.Reviewer {
		return &compliance.Reviewer{
			ID:              id,
			Name:            id,
			Role:            role,
			Availability:    compliance.AvailabilityAvailable,
			MaxCapacity:     10,
			QualityScore:    85,
			TimelinessScore: 85,
			Jurisdictions:   []string{"US"},
		}
	}
	return compliance.NewReviewerPool([]*compliance.Reviewer{
		mk("kyc-1", compliance.RoleKYCAnalyst),
		mk("aml-1", compliance.RoleAMLOfficer),
		mk("aml-2", compliance.RoleAMLOfficer),
		mk("risk-1", compliance.RoleRiskAnalyst),
		mk("senior-1", compliance.RoleSeniorCompliance),
		mk("manager-1", compliance.RoleComplianceManager),
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	hub := streaming.NewMemoryHub()
	conditions, err := expressions.NewCELEngine()
	require.NoError(t, err)

	machine := workflow.NewMachine(st, hub, workflow.DefaultRules(),
		workflow.NewValidatorRegistry(), conditions, nil)
	setupEngine := setup.NewEngine(setup.NewMemoryRepository(), st, hub, nil)
	complianceEngine := compliance.NewEngine(compliance.NewMemoryRepository(), testPool(),
		expressions.NewExprEngine(), st, st, hub, nil)
	notifier := notify.NewLogNotifier(nil)
	tracker := progress.NewTracker(progress.NewMemoryRepository(), st, hub, notifier, nil)
	identity := verify.NewIdentityEngine(verify.StaticProvider{}, st, hub, nil)
	documents := verify.NewDocumentEngine(verify.StaticProvider{}, worker.NewPool(4), nil)

	validator, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	handlers := NewHandlers(machine, st, setupEngine, complianceEngine, tracker,
		identity, documents, expressions.NewGoJQEngine(), validator, nil)
	server := NewServer(DefaultServerConfig(), handlers, nil)

	return &testEnv{
		router:     server.Router(),
		machine:    machine,
		store:      st,
		hub:        hub,
		setup:      setupEngine,
		compliance: complianceEngine,
		tracker:    tracker,
		identity:   identity,
		documents:  documents,
		notifier:   notifier,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// decode unwraps the response envelope and decodes data into out.
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if out != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return resp
}

func (env *testEnv) createWorkflow(t *testing.T) string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/v1/workflows", CreateWorkflowRequest{
		ClientID:     "client-1",
		ClientType:   "INDIVIDUAL",
		AccountType:  "INDIVIDUAL",
		Jurisdiction: "US",
	}, map[string]string{tenantHeader: "tenant-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var wf store.WorkflowInstance
	decode(t, w, &wf)
	return wf.ID
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateWorkflow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/workflows", CreateWorkflowRequest{
		ClientID:    "client-1",
		TenantID:    "body-tenant",
		ClientType:  "ENTITY",
		AccountType: "LLC",
	}, map[string]string{tenantHeader: "header-tenant"})
	require.Equal(t, http.StatusCreated, w.Code)

	var wf store.WorkflowInstance
	resp := decode(t, w, &wf)
	assert.True(t, resp.Success)
	assert.Equal(t, "INITIATED", string(wf.CurrentState))
	// The header wins over the body field.
	assert.Equal(t, "header-tenant", wf.TenantID)
}

func TestCreateWorkflow_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		req  CreateWorkflowRequest
	}{
		{"missing client id", CreateWorkflowRequest{ClientType: "INDIVIDUAL", AccountType: "INDIVIDUAL"}},
		{"bad client type", CreateWorkflowRequest{ClientID: "c", ClientType: "ROBOT", AccountType: "INDIVIDUAL"}},
		{"bad account type", CreateWorkflowRequest{ClientID: "c", ClientType: "INDIVIDUAL", AccountType: "OFFSHORE"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/workflows", tc.req, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetWorkflow_IDValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/workflows/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/workflows/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitEvent(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	w := env.do(t, http.MethodPost, "/v1/workflows/"+id+"/events",
		SubmitEventRequest{Event: "START_ONBOARDING", TriggeredBy: "client-1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]any
	decode(t, w, &result)
	assert.Equal(t, "DOCUMENT_COLLECTION", result["new_state"])
}

func TestSubmitEvent_GuardFailureIs422(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	// ACCOUNT_CREATED is not wired from INITIATED.
	w := env.do(t, http.MethodPost, "/v1/workflows/"+id+"/events",
		SubmitEventRequest{Event: "ACCOUNT_CREATED"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decode(t, w, nil)
	assert.False(t, resp.Success)
}

func TestSubmitEvent_Validation(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	w := env.do(t, http.MethodPost, "/v1/workflows/"+id+"/events",
		SubmitEventRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListWorkflows_TenantScoped(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t)

	var workflows []store.WorkflowInstance

	w := env.do(t, http.MethodGet, "/v1/workflows", nil, map[string]string{tenantHeader: "tenant-1"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &workflows)
	assert.Len(t, workflows, 1)

	w = env.do(t, http.MethodGet, "/v1/workflows", nil, map[string]string{tenantHeader: "other"})
	require.Equal(t, http.StatusOK, w.Code)
	workflows = nil
	decode(t, w, &workflows)
	assert.Empty(t, workflows)
}

func TestAvailableEvents(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	var events []string
	w := env.do(t, http.MethodGet, "/v1/workflows/"+id+"/available-events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &events)
	assert.Contains(t, events, "START_ONBOARDING")
	assert.NotContains(t, events, "ACCOUNT_CREATED")
}

func TestQueryWorkflow(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	w := env.do(t, http.MethodPost, "/v1/workflows/"+id+"/query",
		QueryRequest{Expression: ".current_state"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]any
	decode(t, w, &result)
	assert.Equal(t, "INITIATED", result["result"])

	w = env.do(t, http.MethodPost, "/v1/workflows/"+id+"/query", QueryRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/workflows/"+id+"/query",
		QueryRequest{Expression: ".transitions | length"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDocumentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	w := env.do(t, http.MethodPost, "/v1/workflows/"+id+"/documents",
		SubmitDocumentRequest{Type: "PASSPORT", FileName: "passport.pdf"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/v1/workflows/"+id+"/documents",
		SubmitDocumentRequest{Type: "SELFIE"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var docs []verify.Document
	w = env.do(t, http.MethodGet, "/v1/workflows/"+id+"/documents", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, "SUBMITTED", string(docs[0].Status))

	var batch verify.BatchResult
	w = env.do(t, http.MethodPost, "/v1/workflows/"+id+"/documents/verify",
		CaptureRequest{Capture: map[string]any{"confidence": 95}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &batch)
	assert.True(t, batch.Passed)
}

func TestIdentityEndpoints(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	var session verify.IdentitySession
	w := env.do(t, http.MethodPost, "/v1/workflows/"+id+"/identity/sessions",
		CreateSessionRequest{}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &session)
	assert.Equal(t, "PENDING", string(session.Status))

	w = env.do(t, http.MethodPost, "/v1/identity/sessions/"+session.ID+"/run",
		CaptureRequest{Capture: map[string]any{"confidence": 95}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &session)
	assert.Equal(t, "PASSED", string(session.Status))

	w = env.do(t, http.MethodPost, "/v1/workflows/"+id+"/identity/sessions",
		CreateSessionRequest{Checks: []string{"PALM_READING"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitDecision_Validation(t *testing.T) {
	env := newTestEnv(t)
	approvalID := uuid.NewString()
	stepID := uuid.NewString()

	w := env.do(t, http.MethodPost, "/v1/approvals/"+approvalID+"/steps/"+stepID+"/decisions",
		SubmitDecisionRequest{ReviewerID: "kyc-1", Decision: "MAYBE"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/approvals/"+approvalID+"/steps/"+stepID+"/decisions",
		SubmitDecisionRequest{Decision: "APPROVE"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Well-formed but unknown approval workflow.
	w = env.do(t, http.MethodPost, "/v1/approvals/"+approvalID+"/steps/"+stepID+"/decisions",
		SubmitDecisionRequest{ReviewerID: "kyc-1", Decision: "APPROVE"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBlockerValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	w := env.do(t, http.MethodPost, "/v1/workflows/"+id+"/blockers",
		ReportBlockerRequest{Description: "stuck", Severity: "APOCALYPTIC"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/workflows/"+id+"/blockers",
		ReportBlockerRequest{Severity: "HIGH"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetupEndpoints(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	// No setup request exists yet.
	w := env.do(t, http.MethodGet, "/v1/workflows/"+id+"/setup", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A document failing the schema never reaches the engine.
	w = env.do(t, http.MethodPost, "/v1/workflows/"+id+"/setup",
		setup.Input{AccountType: "OFFSHORE"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/workflows/"+id+"/setup", setup.Input{
		AccountType:  "ROTH_IRA",
		Jurisdiction: "US",
		Configuration: &setup.AccountConfiguration{
			Beneficiaries: []setup.Beneficiary{
				{Name: "Alice", Relationship: "spouse", Percentage: 100},
			},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var req setup.SetupRequest
	decode(t, w, &req)
	assert.Equal(t, id, req.WorkflowID)
	assert.Equal(t, "client-1", req.ClientID)
	assert.NotEmpty(t, req.Steps)

	w = env.do(t, http.MethodGet, "/v1/workflows/"+id+"/setup", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched setup.SetupRequest
	decode(t, w, &fetched)
	assert.Equal(t, req.ID, fetched.ID)
}
