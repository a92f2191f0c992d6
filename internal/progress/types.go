// Package progress implements the onboarding progress tracker: a
// phase/step/milestone graph with cascading recomputation, blocker lifecycle
// management, and variance-based timeline estimation.
package progress

import (
	"time"

	"github.com/meridianfs/onboard/pkg/schema"
)

// PhaseStatus is the lifecycle state of one onboarding phase.
type PhaseStatus string

const (
	PhaseNotStarted PhaseStatus = "NOT_STARTED"
	PhaseInProgress PhaseStatus = "IN_PROGRESS"
	PhaseCompleted  PhaseStatus = "COMPLETED"
	PhaseBlocked    PhaseStatus = "BLOCKED"
)

// MilestoneStatus is the lifecycle state of one milestone.
type MilestoneStatus string

const (
	MilestoneUpcoming MilestoneStatus = "UPCOMING"
	MilestoneAchieved MilestoneStatus = "ACHIEVED"
)

// BlockerStatus is the lifecycle state of one blocker.
type BlockerStatus string

const (
	BlockerOpen      BlockerStatus = "OPEN"
	BlockerEscalated BlockerStatus = "ESCALATED"
	BlockerResolved  BlockerStatus = "RESOLVED"
	BlockerClosed    BlockerStatus = "CLOSED"
)

// UserAction is a pending action the client must take on a step.
type UserAction struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step is one tracked unit of onboarding work inside a phase.
type Step struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      schema.StepStatus `json:"status"`
	Progress    int               `json:"progress"` // 0..100
	UserActions []*UserAction     `json:"user_actions,omitempty"`
}

// Phase is one stage of the onboarding journey.
type Phase struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Status            PhaseStatus    `json:"status"`
	Progress          int            `json:"progress"` // 0..100
	Steps             []*Step        `json:"steps"`
	EstimatedDuration time.Duration  `json:"estimated_duration"`
	ActualDuration    *time.Duration `json:"actual_duration,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// Step returns the phase step with the given id, or nil.
func (p *Phase) Step(id string) *Step {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Milestone is a named achievement gated by phase dependencies and
// name-dispatched criteria. All criteria must hold for it to achieve.
type Milestone struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Status            MilestoneStatus `json:"status"`
	PhaseDependencies []string        `json:"phase_dependencies,omitempty"`
	Criteria          []string        `json:"criteria"`
	Celebrate         bool            `json:"celebrate"`
	AchievedAt        *time.Time      `json:"achieved_at,omitempty"`
}

// Blocker is an impediment affecting one or more steps. Reporting one marks
// every affected step BLOCKED; resolving resets them to PENDING.
type Blocker struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	Severity        schema.Severity `json:"severity"`
	Status          BlockerStatus   `json:"status"`
	AffectedStepIDs []string        `json:"affected_step_ids"`
	ReportedBy      string          `json:"reported_by,omitempty"`
	Resolution      string          `json:"resolution,omitempty"`
	ReportedAt      time.Time       `json:"reported_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// Timeline is the current completion estimate.
type Timeline struct {
	EstimatedCompletion time.Time     `json:"estimated_completion"`
	RemainingDuration   time.Duration `json:"remaining_duration"`
	Accuracy            float64       `json:"accuracy"` // 0..100
	BufferApplied       bool          `json:"buffer_applied"`
}

// OnboardingProgress is the progress aggregate for one onboarding workflow.
type OnboardingProgress struct {
	ID              string            `json:"id"`
	WorkflowID      string            `json:"workflow_id"`
	ClientID        string            `json:"client_id"`
	ClientType      schema.ClientType `json:"client_type"`
	Status          PhaseStatus       `json:"status"`
	OverallProgress int               `json:"overall_progress"` // 0..100
	Phases          []*Phase          `json:"phases"`
	Milestones      []*Milestone      `json:"milestones"`
	Blockers        []*Blocker        `json:"blockers,omitempty"`
	Timeline        Timeline          `json:"timeline"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Phase returns the named phase, or nil.
func (p *OnboardingProgress) Phase(name string) *Phase {
	for _, ph := range p.Phases {
		if ph.Name == name {
			return ph
		}
	}
	return nil
}

// FindStep locates a step by id across all phases.
func (p *OnboardingProgress) FindStep(stepID string) (*Phase, *Step) {
	for _, ph := range p.Phases {
		if s := ph.Step(stepID); s != nil {
			return ph, s
		}
	}
	return nil, nil
}

// Milestone returns the named milestone, or nil.
func (p *OnboardingProgress) Milestone(name string) *Milestone {
	for _, m := range p.Milestones {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Blocker returns the blocker with the given id, or nil.
func (p *OnboardingProgress) Blocker(id string) *Blocker {
	for _, b := range p.Blockers {
		if b.ID == id {
			return b
		}
	}
	return nil
}
