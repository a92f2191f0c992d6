package setup

import (
	"fmt"
	"math"
	"time"

	"github.com/meridianfs/onboard/pkg/schema"
)

// allocationTolerance is the permitted deviation of asset class allocations
// from 100 percent.
const allocationTolerance = 1.0

// restrictedJurisdictions may not open accounts.
var restrictedJurisdictions = map[string]bool{
	"IR": true,
	"KP": true,
	"SY": true,
	"CU": true,
}

// stepHandler validates one setup step against the request documents.
// A nil return completes the step; a non-nil SetupError fails it.
type stepHandler func(req *SetupRequest) *SetupError

// handlerFor dispatches a step name to its validation logic.
func handlerFor(name string) (stepHandler, bool) {
	switch name {
	case StepConfigValidation:
		return validateConfiguration, true
	case StepRegulatoryCheck:
		return checkRegulatoryCompliance, true
	case StepTaxVerification:
		return verifyTaxStatus, true
	case StepTradingPermissions:
		return setupTradingPermissions, true
	case StepFundingVerification:
		return verifyFundingSources, true
	case StepInvestmentProfile:
		return setupInvestmentProfile, true
	case StepFeeSchedule:
		return assignFeeSchedule, true
	case StepAccountActivation:
		return activateAccount, true
	case StepIRACompliance:
		return reviewIRACompliance, true
	case StepEntityVerification:
		return verifyEntity, true
	case StepTrustDocReview:
		return reviewTrustDocuments, true
	}
	return nil, false
}

func stepError(step, code, message string, severity schema.Severity) *SetupError {
	return &SetupError{
		Code:      code,
		Message:   message,
		Severity:  severity,
		StepName:  step,
		Timestamp: time.Now().UTC(),
	}
}

func validateConfiguration(req *SetupRequest) *SetupError {
	cfg := req.Configuration

	if cfg.AccountType == schema.AccountTypeRothIRA && cfg.TaxStatus != schema.TaxStatusTaxFree {
		return stepError(StepConfigValidation, "TAX_STATUS_MISMATCH",
			fmt.Sprintf("ROTH_IRA accounts must have TAX_FREE tax status, got %s", cfg.TaxStatus),
			schema.SeverityHigh)
	}
	if cfg.AccountType.IsIRA() && len(cfg.Beneficiaries) == 0 {
		return stepError(StepConfigValidation, "MISSING_BENEFICIARY",
			"IRA account types require at least one beneficiary",
			schema.SeverityHigh)
	}
	if cfg.AccountType.IsEntity() && len(cfg.AuthorizedUsers) == 0 {
		return stepError(StepConfigValidation, "MISSING_AUTHORIZED_USER",
			"corporate accounts require at least one authorized user",
			schema.SeverityHigh)
	}
	if cfg.AccountType == schema.AccountTypeTrust && len(cfg.Trustees) == 0 {
		return stepError(StepConfigValidation, "MISSING_TRUSTEE",
			"trust accounts require at least one trustee",
			schema.SeverityHigh)
	}
	return nil
}

func checkRegulatoryCompliance(req *SetupRequest) *SetupError {
	if restrictedJurisdictions[req.Jurisdiction] {
		// Opening an account in a restricted jurisdiction is not recoverable
		// by later steps, so the chain halts here.
		return stepError(StepRegulatoryCheck, "RESTRICTED_JURISDICTION",
			fmt.Sprintf("jurisdiction %s is restricted for account opening", req.Jurisdiction),
			schema.SeverityCritical)
	}
	return nil
}

func verifyTaxStatus(req *SetupRequest) *SetupError {
	cfg := req.Configuration
	if cfg.AccountType.IsIRA() && cfg.TaxStatus == schema.TaxStatusTaxable {
		return stepError(StepTaxVerification, "TAX_STATUS_INVALID",
			fmt.Sprintf("%s accounts cannot have TAXABLE tax status", cfg.AccountType),
			schema.SeverityMedium)
	}
	return nil
}

func setupTradingPermissions(req *SetupRequest) *SetupError {
	cfg := req.Configuration
	if contains(cfg.TradingPermissions, "OPTIONS") && contains(cfg.Restrictions, "NO_OPTIONS") {
		return stepError(StepTradingPermissions, "PERMISSION_CONFLICT",
			"OPTIONS trading permission conflicts with NO_OPTIONS restriction",
			schema.SeverityHigh)
	}
	return nil
}

func verifyFundingSources(req *SetupRequest) *SetupError {
	if len(req.Funding.FundingSources) == 0 {
		return stepError(StepFundingVerification, "NO_FUNDING_SOURCE",
			"at least one funding source is required",
			schema.SeverityHigh)
	}
	if req.Funding.MinimumInitialDeposit <= 0 {
		return stepError(StepFundingVerification, "INVALID_MINIMUM_DEPOSIT",
			"minimum initial deposit must be positive",
			schema.SeverityMedium)
	}
	return nil
}

func setupInvestmentProfile(req *SetupRequest) *SetupError {
	prefs := req.Preferences.AssetClassPreferences
	if len(prefs) == 0 {
		return nil
	}
	var sum float64
	for _, p := range prefs {
		sum += p.Allocation
	}
	if math.Abs(sum-100) > allocationTolerance {
		return stepError(StepInvestmentProfile, "ALLOCATION_SUM_INVALID",
			fmt.Sprintf("asset class allocations sum to %.1f, must be within %.0f of 100", sum, allocationTolerance),
			schema.SeverityHigh)
	}
	return nil
}

func assignFeeSchedule(req *SetupRequest) *SetupError {
	switch deposit := req.Funding.MinimumInitialDeposit; {
	case deposit >= 1000000:
		req.FeeTier = "INSTITUTIONAL"
	case deposit >= 100000:
		req.FeeTier = "PREMIER"
	default:
		req.FeeTier = "STANDARD"
	}
	return nil
}

func activateAccount(req *SetupRequest) *SetupError {
	for _, s := range req.Steps {
		if s.Name != StepAccountActivation && s.Status == schema.StepStatusFailed {
			return stepError(StepAccountActivation, "ACTIVATION_BLOCKED",
				fmt.Sprintf("cannot activate account while step %q is failed", s.Name),
				schema.SeverityHigh)
		}
	}
	return nil
}

func reviewIRACompliance(req *SetupRequest) *SetupError {
	bens := req.Configuration.Beneficiaries
	if len(bens) == 0 {
		return nil // already reported by configuration validation
	}
	var sum float64
	for _, b := range bens {
		sum += b.Percentage
	}
	if math.Abs(sum-100) > allocationTolerance {
		return stepError(StepIRACompliance, "BENEFICIARY_SPLIT_INVALID",
			fmt.Sprintf("beneficiary percentages sum to %.1f, must be within %.0f of 100", sum, allocationTolerance),
			schema.SeverityMedium)
	}
	return nil
}

func verifyEntity(req *SetupRequest) *SetupError {
	if req.Jurisdiction == "" {
		return stepError(StepEntityVerification, "MISSING_REGISTRATION_JURISDICTION",
			"entity verification requires a registration jurisdiction",
			schema.SeverityMedium)
	}
	return nil
}

func reviewTrustDocuments(req *SetupRequest) *SetupError {
	if len(req.Configuration.Trustees) == 0 {
		return stepError(StepTrustDocReview, "MISSING_TRUSTEE",
			"trust document review requires at least one trustee",
			schema.SeverityHigh)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
