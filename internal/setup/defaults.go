package setup

import "github.com/meridianfs/onboard/pkg/schema"

// Documented defaults for every optional field. Caller-supplied partials are
// merged over these.
const (
	// DefaultMinimumInitialDeposit applies when the caller does not set one.
	DefaultMinimumInitialDeposit = 10000.0
	// DefaultCurrencyCode applies when the caller does not set one.
	DefaultCurrencyCode = "USD"
	// DefaultInvestmentHorizonYears applies when the caller does not set one.
	DefaultInvestmentHorizonYears = 10
)

// defaultTaxStatus returns the tax treatment implied by the account type.
func defaultTaxStatus(accountType schema.AccountType) schema.TaxStatus {
	switch accountType {
	case schema.AccountTypeRothIRA:
		return schema.TaxStatusTaxFree
	case schema.AccountTypeTraditionalIRA, schema.AccountTypeSEPIRA:
		return schema.TaxStatusTaxDeferred
	default:
		return schema.TaxStatusTaxable
	}
}

// mergeConfiguration builds the account configuration from caller overrides
// over defaults. Only explicitly set fields override.
func mergeConfiguration(accountType schema.AccountType, in *AccountConfiguration) AccountConfiguration {
	cfg := AccountConfiguration{
		AccountType:        accountType,
		TaxStatus:          defaultTaxStatus(accountType),
		TradingPermissions: []string{"STOCKS", "ETFS", "MUTUAL_FUNDS"},
	}
	if in == nil {
		return cfg
	}
	if in.TaxStatus != "" {
		cfg.TaxStatus = in.TaxStatus
	}
	if len(in.TradingPermissions) > 0 {
		cfg.TradingPermissions = in.TradingPermissions
	}
	cfg.Restrictions = in.Restrictions
	cfg.Beneficiaries = in.Beneficiaries
	cfg.AuthorizedUsers = in.AuthorizedUsers
	cfg.Trustees = in.Trustees
	return cfg
}

// mergeFunding builds the funding document from caller overrides over defaults.
func mergeFunding(in *FundingSetup) FundingSetup {
	f := FundingSetup{
		MinimumInitialDeposit: DefaultMinimumInitialDeposit,
		CurrencyCode:          DefaultCurrencyCode,
	}
	if in == nil {
		return f
	}
	if in.MinimumInitialDeposit > 0 {
		f.MinimumInitialDeposit = in.MinimumInitialDeposit
	}
	if in.CurrencyCode != "" {
		f.CurrencyCode = in.CurrencyCode
	}
	f.FundingSources = in.FundingSources
	f.AutoInvestEnabled = in.AutoInvestEnabled
	return f
}

// mergePreferences builds the investment preferences from caller overrides
// over defaults. Risk tolerance defaults to MODERATE; auto-rebalance and
// dividend reinvestment default to enabled and only flip when the caller
// sets the toggle explicitly.
func mergePreferences(in *PreferencesInput) InvestmentPreferences {
	p := InvestmentPreferences{
		RiskTolerance:          schema.RiskToleranceModerate,
		InvestmentHorizonYears: DefaultInvestmentHorizonYears,
		AutoRebalance:          true,
		DividendReinvestment:   true,
	}
	if in == nil {
		return p
	}
	if in.RiskTolerance != "" {
		p.RiskTolerance = in.RiskTolerance
	}
	if in.InvestmentHorizonYears > 0 {
		p.InvestmentHorizonYears = in.InvestmentHorizonYears
	}
	p.AssetClassPreferences = in.AssetClassPreferences
	if in.AutoRebalance != nil {
		p.AutoRebalance = *in.AutoRebalance
	}
	if in.DividendReinvestment != nil {
		p.DividendReinvestment = *in.DividendReinvestment
	}
	return p
}
