package setup

import (
	"sort"

	"github.com/google/uuid"

	"github.com/meridianfs/onboard/pkg/schema"
)

// Canonical step names. Dependencies reference these exact strings, so they
// must stay unique within one request.
const (
	StepConfigValidation    = "Account Configuration Validation"
	StepRegulatoryCheck     = "Regulatory Compliance Check"
	StepTaxVerification     = "Tax Status Verification"
	StepTradingPermissions  = "Trading Permissions Setup"
	StepFundingVerification = "Funding Source Verification"
	StepInvestmentProfile   = "Investment Profile Setup"
	StepFeeSchedule         = "Fee Schedule Assignment"
	StepAccountActivation   = "Account Activation"

	// Conditional steps, interleaved by fractional order.
	StepEntityVerification = "Entity Verification"
	StepTrustDocReview     = "Trust Document Review"
	StepIRACompliance      = "IRA Compliance Review"
)

// buildSteps produces the ordered step chain for an account type: the eight
// canonical steps plus the account-type-specific steps, stable-sorted by
// order so fractional orders interleave at the correct dependency point.
func buildSteps(accountType schema.AccountType) []*SetupStep {
	steps := []*SetupStep{
		newStep(StepConfigValidation, 1, nil),
		newStep(StepRegulatoryCheck, 2, []string{StepConfigValidation}),
		newStep(StepTaxVerification, 3, []string{StepConfigValidation}),
		newStep(StepTradingPermissions, 4, []string{StepConfigValidation, StepRegulatoryCheck}),
		newStep(StepFundingVerification, 5, []string{StepConfigValidation}),
		newStep(StepInvestmentProfile, 6, []string{StepConfigValidation}),
		newStep(StepFeeSchedule, 7, []string{StepRegulatoryCheck}),
		newStep(StepAccountActivation, 8, []string{
			StepTradingPermissions, StepFundingVerification, StepInvestmentProfile, StepFeeSchedule,
		}),
	}

	switch {
	case accountType.IsIRA():
		steps = append(steps, newStep(StepIRACompliance, 2.5, []string{StepConfigValidation}))
	case accountType.IsEntity():
		steps = append(steps, newStep(StepEntityVerification, 1.5, []string{StepConfigValidation}))
	case accountType == schema.AccountTypeTrust:
		steps = append(steps, newStep(StepTrustDocReview, 1.5, []string{StepConfigValidation}))
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

func newStep(name string, order float64, deps []string) *SetupStep {
	return &SetupStep{
		ID:           uuid.NewString(),
		Name:         name,
		Status:       schema.StepStatusPending,
		Order:        order,
		Dependencies: deps,
	}
}
