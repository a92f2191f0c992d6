package progress

import "github.com/meridianfs/onboard/pkg/schema"

// Milestone criterion names. Each dispatches to a hand-written evaluator;
// there is deliberately no generic expression path here, the checks are too
// entangled with tracker state.
const (
	CriterionAllDocumentsSubmitted = "all_documents_submitted"
	CriterionIdentityVerified      = "identity_verified"
	CriterionSetupStepsDone        = "setup_steps_done"
	CriterionAllPhasesCompleted    = "all_phases_completed"
	CriterionNoOpenBlockers        = "no_open_blockers"
)

// evaluateCriterion dispatches one criterion by name against the aggregate.
// Unknown criteria evaluate false so a misnamed criterion can never achieve
// a milestone.
func evaluateCriterion(p *OnboardingProgress, name string) bool {
	switch name {
	case CriterionAllDocumentsSubmitted:
		return phaseStepsCompleted(p, PhaseDocumentation)
	case CriterionIdentityVerified:
		return phaseStepsCompleted(p, PhaseVerification)
	case CriterionSetupStepsDone:
		return phaseStepsCompleted(p, PhaseAccountSetup)
	case CriterionAllPhasesCompleted:
		for _, ph := range p.Phases {
			if ph.Status != PhaseCompleted {
				return false
			}
		}
		return true
	case CriterionNoOpenBlockers:
		for _, b := range p.Blockers {
			if b.Status == BlockerOpen || b.Status == BlockerEscalated {
				return false
			}
		}
		return true
	}
	return false
}

func phaseStepsCompleted(p *OnboardingProgress, phaseName string) bool {
	ph := p.Phase(phaseName)
	if ph == nil {
		return false
	}
	for _, s := range ph.Steps {
		if s.Status != schema.StepStatusCompleted {
			return false
		}
	}
	return true
}

// milestoneEligible reports whether every phase dependency of the milestone
// is completed.
func milestoneEligible(p *OnboardingProgress, m *Milestone) bool {
	for _, dep := range m.PhaseDependencies {
		ph := p.Phase(dep)
		if ph == nil || ph.Status != PhaseCompleted {
			return false
		}
	}
	return true
}
