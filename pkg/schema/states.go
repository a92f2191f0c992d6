package schema

// WorkflowState is a lifecycle state of the onboarding state machine.
type WorkflowState string

const (
	StateInitiated            WorkflowState = "INITIATED"
	StateDocumentCollection   WorkflowState = "DOCUMENT_COLLECTION"
	StateDocumentVerification WorkflowState = "DOCUMENT_VERIFICATION"
	StateIdentityVerification WorkflowState = "IDENTITY_VERIFICATION"
	StateKYCProcessing        WorkflowState = "KYC_PROCESSING"
	StateAMLScreening         WorkflowState = "AML_SCREENING"
	StateRiskAssessment       WorkflowState = "RISK_ASSESSMENT"
	StateSuitabilityReview    WorkflowState = "SUITABILITY_REVIEW"
	StateComplianceReview     WorkflowState = "COMPLIANCE_REVIEW"
	StateAccountSetup         WorkflowState = "ACCOUNT_SETUP"
	StateFundingSetup         WorkflowState = "FUNDING_SETUP"
	StateFinalApproval        WorkflowState = "FINAL_APPROVAL"
	StateCompleted            WorkflowState = "COMPLETED"
	StateRejected             WorkflowState = "REJECTED"
	StateSuspended            WorkflowState = "SUSPENDED"
	StateCancelled            WorkflowState = "CANCELLED"
)

// Terminal reports whether no further transitions are permitted out of s.
// SUSPENDED is not terminal: RESUME_APPLICATION leads back into the flow.
func (s WorkflowState) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateCancelled
}

// WorkflowEvent is an external trigger submitted to the state machine.
type WorkflowEvent string

const (
	EventStartOnboarding      WorkflowEvent = "START_ONBOARDING"
	EventDocumentsSubmitted   WorkflowEvent = "DOCUMENTS_SUBMITTED"
	EventDocumentsVerified    WorkflowEvent = "DOCUMENTS_VERIFIED"
	EventIdentityVerified     WorkflowEvent = "IDENTITY_VERIFIED"
	EventKYCCompleted         WorkflowEvent = "KYC_COMPLETED"
	EventAMLCleared           WorkflowEvent = "AML_CLEARED"
	EventRiskAssessed         WorkflowEvent = "RISK_ASSESSED"
	EventSuitabilityConfirmed WorkflowEvent = "SUITABILITY_CONFIRMED"
	EventComplianceApproved   WorkflowEvent = "COMPLIANCE_APPROVED"
	EventAccountCreated       WorkflowEvent = "ACCOUNT_CREATED"
	EventFundingConfigured    WorkflowEvent = "FUNDING_CONFIGURED"
	EventFinalApprovalGranted WorkflowEvent = "FINAL_APPROVAL_GRANTED"
	EventRejectApplication    WorkflowEvent = "REJECT_APPLICATION"
	EventSuspendApplication   WorkflowEvent = "SUSPEND_APPLICATION"
	EventCancelApplication    WorkflowEvent = "CANCEL_APPLICATION"
	EventResumeApplication    WorkflowEvent = "RESUME_APPLICATION"
)

// Event type constants for the transition event log and the streaming hub.
const (
	EventTypeWorkflowCreated   = "workflow_created"
	EventTypeStateTransitioned = "state_transitioned"
	EventTypeWorkflowCompleted = "workflow_completed"
	EventTypeWorkflowRejected  = "workflow_rejected"
	EventTypeWorkflowSuspended = "workflow_suspended"
	EventTypeWorkflowCancelled = "workflow_cancelled"
	EventTypeAutoTransition    = "auto_transition_ready"

	EventTypeSetupStepCompleted = "setup_step_completed"
	EventTypeSetupStepFailed    = "setup_step_failed"
	EventTypeSetupCompleted     = "setup_completed"
	EventTypeSetupFailed        = "setup_failed"

	EventTypeReviewerAssigned  = "reviewer_assigned"
	EventTypeDecisionSubmitted = "decision_submitted"
	EventTypeApprovalStepDone  = "approval_step_completed"
	EventTypeApprovalResolved  = "approval_workflow_resolved"

	EventTypeProgressUpdated   = "progress_updated"
	EventTypeMilestoneAchieved = "milestone_achieved"
	EventTypeBlockerReported   = "blocker_reported"
	EventTypeBlockerResolved   = "blocker_resolved"

	EventTypeVerificationDone = "verification_completed"
)
