package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/onboard/pkg/schema"
)

// Phase and milestone names.
const (
	PhaseDocumentation      = "Documentation"
	PhaseVerification       = "Verification"
	PhaseComplianceApproval = "Compliance Approval"
	PhaseAccountSetup       = "Account Setup"
	PhaseFunding            = "Funding"

	MilestoneDocumentsComplete    = "Documents Complete"
	MilestoneVerificationComplete = "Verification Complete"
	MilestoneAccountReady         = "Account Ready"
	MilestoneOnboardingComplete   = "Onboarding Complete"
)

// buildPhases produces the phase template for a client type. Entity clients
// carry an extra compliance-approval phase between verification and setup.
func buildPhases(clientType schema.ClientType) []*Phase {
	phases := []*Phase{
		newPhase(PhaseDocumentation, 3*24*time.Hour,
			"Submit identity documents",
			"Submit proof of address",
			"Sign account agreements",
		),
		newPhase(PhaseVerification, 2*24*time.Hour,
			"Identity verification",
			"Document verification",
			"KYC screening",
		),
	}
	if clientType == schema.ClientTypeEntity {
		phases = append(phases, newPhase(PhaseComplianceApproval, 5*24*time.Hour,
			"Entity structure review",
			"Beneficial ownership review",
			"Compliance sign-off",
		))
	}
	phases = append(phases,
		newPhase(PhaseAccountSetup, 1*24*time.Hour,
			"Account configuration",
			"Trading permissions",
			"Fee schedule",
		),
		newPhase(PhaseFunding, 2*24*time.Hour,
			"Link funding source",
			"Initial deposit",
		),
	)
	return phases
}

func newPhase(name string, estimated time.Duration, stepNames ...string) *Phase {
	steps := make([]*Step, len(stepNames))
	for i, sn := range stepNames {
		steps[i] = &Step{
			ID:     uuid.NewString(),
			Name:   sn,
			Status: schema.StepStatusPending,
		}
	}
	return &Phase{
		ID:                uuid.NewString(),
		Name:              name,
		Status:            PhaseNotStarted,
		Steps:             steps,
		EstimatedDuration: estimated,
	}
}

// buildMilestones produces the milestone set. Dependencies are phase names;
// criteria names dispatch to hand-written evaluators in milestones.go.
func buildMilestones(clientType schema.ClientType) []*Milestone {
	milestones := []*Milestone{
		newMilestone(MilestoneDocumentsComplete, []string{PhaseDocumentation},
			[]string{CriterionAllDocumentsSubmitted}, true),
		newMilestone(MilestoneVerificationComplete, []string{PhaseVerification},
			[]string{CriterionIdentityVerified, CriterionNoOpenBlockers}, true),
		newMilestone(MilestoneAccountReady, []string{PhaseAccountSetup},
			[]string{CriterionSetupStepsDone}, false),
	}

	finalDeps := []string{PhaseDocumentation, PhaseVerification, PhaseAccountSetup, PhaseFunding}
	if clientType == schema.ClientTypeEntity {
		finalDeps = append(finalDeps, PhaseComplianceApproval)
	}
	milestones = append(milestones, newMilestone(MilestoneOnboardingComplete, finalDeps,
		[]string{CriterionAllPhasesCompleted, CriterionNoOpenBlockers}, true))
	return milestones
}

func newMilestone(name string, phaseDeps, criteria []string, celebrate bool) *Milestone {
	return &Milestone{
		ID:                uuid.NewString(),
		Name:              name,
		Status:            MilestoneUpcoming,
		PhaseDependencies: phaseDeps,
		Criteria:          criteria,
		Celebrate:         celebrate,
	}
}
