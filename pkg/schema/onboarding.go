package schema

// ClientType classifies the prospective account holder.
type ClientType string

const (
	ClientTypeIndividual ClientType = "INDIVIDUAL"
	ClientTypeJoint      ClientType = "JOINT"
	ClientTypeEntity     ClientType = "ENTITY"
)

// AccountType is the kind of account being opened.
type AccountType string

const (
	AccountTypeIndividual     AccountType = "INDIVIDUAL"
	AccountTypeJoint          AccountType = "JOINT"
	AccountTypeTraditionalIRA AccountType = "TRADITIONAL_IRA"
	AccountTypeRothIRA        AccountType = "ROTH_IRA"
	AccountTypeSEPIRA         AccountType = "SEP_IRA"
	AccountTypeCorporate      AccountType = "CORPORATE"
	AccountTypeLLC            AccountType = "LLC"
	AccountTypePartnership    AccountType = "PARTNERSHIP"
	AccountTypeTrust          AccountType = "TRUST"
)

// IsIRA reports whether the account is any IRA variant.
func (t AccountType) IsIRA() bool {
	return t == AccountTypeTraditionalIRA || t == AccountTypeRothIRA || t == AccountTypeSEPIRA
}

// IsEntity reports whether the account belongs to a legal entity rather than
// a natural person.
func (t AccountType) IsEntity() bool {
	return t == AccountTypeCorporate || t == AccountTypeLLC || t == AccountTypePartnership
}

// TaxStatus is the tax treatment of an account.
type TaxStatus string

const (
	TaxStatusTaxable     TaxStatus = "TAXABLE"
	TaxStatusTaxDeferred TaxStatus = "TAX_DEFERRED"
	TaxStatusTaxFree     TaxStatus = "TAX_FREE"
)

// RiskLevel grades the client risk rating produced by risk assessment.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// RiskTolerance is the client's stated investment risk appetite.
type RiskTolerance string

const (
	RiskToleranceConservative RiskTolerance = "CONSERVATIVE"
	RiskToleranceModerate     RiskTolerance = "MODERATE"
	RiskToleranceAggressive   RiskTolerance = "AGGRESSIVE"
)

// Severity grades a failure or blocker. Critical severity halts processing
// chains; everything below it allows continuation.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// StepStatus is the lifecycle state of a dependency-gated step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "PENDING"
	StepStatusInProgress StepStatus = "IN_PROGRESS"
	StepStatusCompleted  StepStatus = "COMPLETED"
	StepStatusFailed     StepStatus = "FAILED"
	StepStatusBlocked    StepStatus = "BLOCKED"
	StepStatusSkipped    StepStatus = "SKIPPED"
)

// ValidationStatus is the outcome of a single named validator.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationWarning ValidationStatus = "warning"
)

// ValidationResult is the outcome record of one validator run.
type ValidationResult struct {
	Name    string           `json:"name"`
	Status  ValidationStatus `json:"status"`
	Message string           `json:"message,omitempty"`
}

// TransitionResult is the structured outcome of a ProcessEvent call.
// Guard failures are reported here, never as panics or bare errors.
type TransitionResult struct {
	Success  bool               `json:"success"`
	NewState WorkflowState      `json:"new_state,omitempty"`
	Errors   []*OnboardError    `json:"errors,omitempty"`
	Results  []ValidationResult `json:"validation_results,omitempty"`
}
