package compliance

import (
	"github.com/google/uuid"

	"github.com/meridianfs/onboard/pkg/schema"
)

// Step names. Final Approval depends on every other step by name.
const (
	StepKYCReview      = "KYC Document Review"
	StepAMLScreening   = "AML Screening Review"
	StepRiskAssessment = "Risk Assessment Review"
	StepEnhancedDD     = "Enhanced Due Diligence Review"
	StepSourceOfFunds  = "Source of Funds Review"
	StepFinalApproval  = "Final Approval"
)

// buildSteps produces the approval step chain for a workflow type. The Final
// Approval step is always appended last, depending on every other step, with
// its reviewer role escalated to COMPLIANCE_MANAGER at HIGH/CRITICAL risk.
func buildSteps(wfType WorkflowType, risk schema.RiskLevel) []*ApprovalStep {
	var steps []*ApprovalStep

	switch wfType {
	case WorkflowHighRiskClient:
		steps = []*ApprovalStep{
			newApprovalStep(StepKYCReview, nil,
				[]RequiredReviewer{{Role: RoleKYCAnalyst, Count: 1}},
				[]*Criterion{
					criterion("identity_documents_verified", "all identity documents verified against source", ""),
					criterion("kyc_profile_complete", "KYC profile complete and current", "score >= 70"),
				}),
			newApprovalStep(StepAMLScreening, nil,
				[]RequiredReviewer{{Role: RoleAMLOfficer, Count: 2}},
				[]*Criterion{
					criterion("sanctions_screening_clear", "no sanctions list matches", ""),
					criterion("pep_screening_clear", "no unmitigated PEP exposure", "passed && score >= 80"),
				}),
			newApprovalStep(StepEnhancedDD, []string{StepKYCReview},
				[]RequiredReviewer{{Role: RoleSeniorCompliance, Count: 1}},
				[]*Criterion{
					criterion("wealth_source_documented", "source of wealth documented and plausible", "score >= 75"),
					criterion("adverse_media_reviewed", "adverse media findings reviewed", ""),
				}),
			newApprovalStep(StepSourceOfFunds, []string{StepAMLScreening},
				[]RequiredReviewer{{Role: RoleAMLOfficer, Count: 1}},
				[]*Criterion{
					criterion("funds_origin_verified", "origin of initial funding verified", "score >= 70"),
				}),
			newApprovalStep(StepRiskAssessment, []string{StepKYCReview, StepAMLScreening},
				[]RequiredReviewer{{Role: RoleRiskAnalyst, Count: 1}},
				[]*Criterion{
					criterion("risk_rating_justified", "assigned risk rating supported by findings", "score >= 60"),
				}),
		}
	default: // WorkflowClientOnboarding
		steps = []*ApprovalStep{
			newApprovalStep(StepKYCReview, nil,
				[]RequiredReviewer{{Role: RoleKYCAnalyst, Count: 1}},
				[]*Criterion{
					criterion("identity_documents_verified", "all identity documents verified against source", ""),
					criterion("kyc_profile_complete", "KYC profile complete and current", "score >= 70"),
				}),
			newApprovalStep(StepAMLScreening, nil,
				[]RequiredReviewer{{Role: RoleAMLOfficer, Count: 1}},
				[]*Criterion{
					criterion("sanctions_screening_clear", "no sanctions list matches", ""),
				}),
			newApprovalStep(StepRiskAssessment, []string{StepKYCReview},
				[]RequiredReviewer{{Role: RoleRiskAnalyst, Count: 1}},
				[]*Criterion{
					criterion("risk_rating_justified", "assigned risk rating supported by findings", "score >= 60"),
				}),
		}
	}

	finalRole := RoleSeniorCompliance
	if risk == schema.RiskLevelHigh || risk == schema.RiskLevelCritical {
		finalRole = RoleComplianceManager
	}
	deps := make([]string, len(steps))
	for i, s := range steps {
		deps[i] = s.Name
	}
	steps = append(steps, newApprovalStep(StepFinalApproval, deps,
		[]RequiredReviewer{{Role: finalRole, Count: 1}},
		[]*Criterion{
			criterion("all_reviews_satisfactory", "all prior review outcomes acceptable", ""),
		}))

	return steps
}

func newApprovalStep(name string, deps []string, required []RequiredReviewer, criteria []*Criterion) *ApprovalStep {
	return &ApprovalStep{
		ID:                uuid.NewString(),
		Name:              name,
		Status:            StepAssigned,
		Dependencies:      deps,
		Criteria:          criteria,
		RequiredReviewers: required,
	}
}

func criterion(name, description, guard string) *Criterion {
	return &Criterion{
		Name:        name,
		Description: description,
		Guard:       guard,
		Status:      CriterionPending,
	}
}
