package validation

import (
	"math"

	"github.com/meridianfs/onboard/internal/setup"
	"github.com/meridianfs/onboard/pkg/schema"
)

// sumTolerance is how far beneficiary and allocation sums may drift from 100.
const sumTolerance = 1.0

// validateSemantic runs the cross-field rules JSON Schema cannot express:
// percentage sums, duplicate names, and contradictory permission sets. These
// mirror the setup engine's own step checks so a bad document is rejected at
// the edge instead of failing mid-chain.
func validateSemantic(in *setup.Input) error {
	if in.Configuration != nil {
		if err := validateBeneficiaries(in.Configuration.Beneficiaries); err != nil {
			return err
		}
		if err := validatePermissions(in.Configuration.TradingPermissions, in.Configuration.Restrictions); err != nil {
			return err
		}
	}
	if in.Preferences != nil {
		if err := validateAllocations(in.Preferences.AssetClassPreferences); err != nil {
			return err
		}
	}
	return nil
}

func validateBeneficiaries(beneficiaries []setup.Beneficiary) error {
	if len(beneficiaries) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(beneficiaries))
	sum := 0.0
	for _, b := range beneficiaries {
		if seen[b.Name] {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"duplicate beneficiary %q", b.Name)
		}
		seen[b.Name] = true
		sum += b.Percentage
	}
	if math.Abs(sum-100) > sumTolerance {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"beneficiary percentages sum to %.1f, must be within %.0f of 100", sum, sumTolerance)
	}
	return nil
}

func validateAllocations(prefs []setup.AssetClassPreference) error {
	if len(prefs) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(prefs))
	sum := 0.0
	for _, p := range prefs {
		if seen[p.AssetClass] {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"duplicate asset class %q", p.AssetClass)
		}
		seen[p.AssetClass] = true
		sum += p.Allocation
	}
	if math.Abs(sum-100) > sumTolerance {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"asset class allocations sum to %.1f, must be within %.0f of 100", sum, sumTolerance)
	}
	return nil
}

// validatePermissions rejects a permission granted and restricted at once
// (OPTIONS alongside a NO_OPTIONS restriction, and the general NO_<X> form).
func validatePermissions(permissions, restrictions []string) error {
	restricted := make(map[string]bool, len(restrictions))
	for _, r := range restrictions {
		restricted[r] = true
	}
	for _, p := range permissions {
		if restricted["NO_"+p] {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"trading permission %s conflicts with restriction %s", p, "NO_"+p)
		}
	}
	return nil
}
