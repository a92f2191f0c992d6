// Package compliance implements the approval engine: it builds a multi-step
// review workflow per workflow type, assigns the best-available reviewers by a
// weighted score, collects per-step decisions, and aggregates them into a
// final approval status.
package compliance

import (
	"time"

	"github.com/meridianfs/onboard/pkg/schema"
)

// WorkflowType selects the approval step template.
type WorkflowType string

const (
	WorkflowClientOnboarding WorkflowType = "CLIENT_ONBOARDING"
	WorkflowHighRiskClient   WorkflowType = "HIGH_RISK_CLIENT"
)

// ApprovalStatus is the overall state of an approval workflow.
type ApprovalStatus string

const (
	StatusPendingReview         ApprovalStatus = "PENDING_REVIEW"
	StatusApproved              ApprovalStatus = "APPROVED"
	StatusConditionallyApproved ApprovalStatus = "CONDITIONALLY_APPROVED"
	StatusRejected              ApprovalStatus = "REJECTED"
)

// StepStatus is the lifecycle state of one approval step.
type StepStatus string

const (
	StepAssigned   StepStatus = "ASSIGNED"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
)

// ReviewerRole gates which reviewers may take a step.
type ReviewerRole string

const (
	RoleKYCAnalyst        ReviewerRole = "KYC_ANALYST"
	RoleAMLOfficer        ReviewerRole = "AML_OFFICER"
	RoleRiskAnalyst       ReviewerRole = "RISK_ANALYST"
	RoleSeniorCompliance  ReviewerRole = "SENIOR_COMPLIANCE_OFFICER"
	RoleComplianceManager ReviewerRole = "COMPLIANCE_MANAGER"
)

// Decision is a reviewer's verdict on a step.
type Decision string

const (
	DecisionApprove            Decision = "APPROVE"
	DecisionReject             Decision = "REJECT"
	DecisionConditionalApprove Decision = "CONDITIONAL_APPROVE"
	DecisionRequestMoreInfo    Decision = "REQUEST_MORE_INFO"
)

// CriterionStatus is the evaluation state of one approval criterion.
type CriterionStatus string

const (
	CriterionPending CriterionStatus = "PENDING"
	CriterionPassed  CriterionStatus = "PASSED"
	CriterionFailed  CriterionStatus = "FAILED"
)

// Criterion is one named check a reviewer evaluates on a step. Guard is an
// optional expression over the submitted evaluation (variables: score, passed)
// that decides PASSED/FAILED; without a guard the evaluation's passed flag is
// taken as-is.
type Criterion struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Guard       string          `json:"guard,omitempty"`
	Status      CriterionStatus `json:"status"`
}

// RequiredReviewer is one role-based reviewer slot on a step.
type RequiredReviewer struct {
	Role  ReviewerRole `json:"role"`
	Count int          `json:"count"`
}

// CriteriaEvaluation is a reviewer's scored assessment of one criterion.
type CriteriaEvaluation struct {
	CriterionName string  `json:"criterion_name"`
	Passed        bool    `json:"passed"`
	Score         float64 `json:"score"`
	Notes         string  `json:"notes,omitempty"`
}

// ReviewDecision is one submitted reviewer verdict. Confidence is the mean of
// the criteria evaluation scores, or 50 when none were supplied.
type ReviewDecision struct {
	ID          string               `json:"id"`
	StepID      string               `json:"step_id"`
	ReviewerID  string               `json:"reviewer_id"`
	Decision    Decision             `json:"decision"`
	Comments    string               `json:"comments,omitempty"`
	Confidence  float64              `json:"confidence"`
	Evaluations []CriteriaEvaluation `json:"evaluations,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
}

// ApprovalStep is one dependency-gated review step. Dependencies reference
// other steps by name, so names must be unique within one workflow.
type ApprovalStep struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Status            StepStatus         `json:"status"`
	Dependencies      []string           `json:"dependencies,omitempty"`
	Criteria          []*Criterion       `json:"criteria,omitempty"`
	RequiredReviewers []RequiredReviewer `json:"required_reviewers"`
	AssignedReviewers []string           `json:"assigned_reviewers,omitempty"`
	Decisions         []*ReviewDecision  `json:"decisions,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// StepName implements runner.Node.
func (s *ApprovalStep) StepName() string { return s.Name }

// StepDependencies implements runner.Node.
func (s *ApprovalStep) StepDependencies() []string { return s.Dependencies }

// RequiredDecisionCount is the completion threshold: the sum of all
// required-reviewer slot counts.
func (s *ApprovalStep) RequiredDecisionCount() int {
	total := 0
	for _, rr := range s.RequiredReviewers {
		total += rr.Count
	}
	return total
}

// IsAssigned reports whether the reviewer holds a slot on this step.
func (s *ApprovalStep) IsAssigned(reviewerID string) bool {
	for _, id := range s.AssignedReviewers {
		if id == reviewerID {
			return true
		}
	}
	return false
}

// Criterion returns the named criterion, or nil.
func (s *ApprovalStep) Criterion(name string) *Criterion {
	for _, c := range s.Criteria {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ApprovalWorkflow is the compliance review aggregate for one onboarding
// workflow.
type ApprovalWorkflow struct {
	ID                   string           `json:"id"`
	OnboardingWorkflowID string           `json:"onboarding_workflow_id"`
	ClientID             string           `json:"client_id"`
	Type                 WorkflowType     `json:"type"`
	RiskLevel            schema.RiskLevel `json:"risk_level"`
	Status               ApprovalStatus   `json:"status"`
	Steps                []*ApprovalStep  `json:"steps"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	ApprovedAt           *time.Time       `json:"approved_at,omitempty"`
	ResolvedAt           *time.Time       `json:"resolved_at,omitempty"`
}

// Step returns the step with the given id, or nil.
func (w *ApprovalWorkflow) Step(id string) *ApprovalStep {
	for _, s := range w.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StepByName returns the step with the given name, or nil.
func (w *ApprovalWorkflow) StepByName(name string) *ApprovalStep {
	for _, s := range w.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Reviewer is a member of the review pool. Scores are on a 0..100 scale.
type Reviewer struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Role            ReviewerRole `json:"role"`
	Availability    string       `json:"availability"` // available, busy, out_of_office
	MaxCapacity     int          `json:"max_capacity"`
	CurrentReviews  int          `json:"current_reviews"`
	QualityScore    float64      `json:"quality_score"`
	TimelinessScore float64      `json:"timeliness_score"`
	Jurisdictions   []string     `json:"jurisdictions,omitempty"`
	Specializations []string     `json:"specializations,omitempty"`
}

// AvailabilityAvailable is the only availability value eligible for assignment.
const AvailabilityAvailable = "available"

// RemainingCapacityPct is the reviewer's spare capacity as a percentage.
func (r *Reviewer) RemainingCapacityPct() float64 {
	if r.MaxCapacity <= 0 {
		return 0
	}
	return float64(r.MaxCapacity-r.CurrentReviews) / float64(r.MaxCapacity) * 100
}
