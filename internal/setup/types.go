package setup

import (
	"time"

	"github.com/meridianfs/onboard/pkg/schema"
)

// SetupStatus is the overall state of a setup request.
type SetupStatus string

const (
	SetupInProgress SetupStatus = "IN_PROGRESS"
	SetupCompleted  SetupStatus = "COMPLETED"
	SetupFailed     SetupStatus = "FAILED"
)

// AccountConfiguration is the account-level document of a setup request.
type AccountConfiguration struct {
	AccountType        schema.AccountType `json:"account_type"`
	TaxStatus          schema.TaxStatus   `json:"tax_status"`
	TradingPermissions []string           `json:"trading_permissions,omitempty"`
	Restrictions       []string           `json:"restrictions,omitempty"`
	Beneficiaries      []Beneficiary      `json:"beneficiaries,omitempty"`
	AuthorizedUsers    []string           `json:"authorized_users,omitempty"`
	Trustees           []string           `json:"trustees,omitempty"`
}

// Beneficiary is a named account beneficiary with an allocation percentage.
type Beneficiary struct {
	Name         string  `json:"name"`
	Relationship string  `json:"relationship,omitempty"`
	Percentage   float64 `json:"percentage"`
}

// FundingSetup is the funding document of a setup request.
type FundingSetup struct {
	MinimumInitialDeposit float64         `json:"minimum_initial_deposit"`
	CurrencyCode          string          `json:"currency_code"`
	FundingSources        []FundingSource `json:"funding_sources,omitempty"`
	AutoInvestEnabled     bool            `json:"auto_invest_enabled"`
}

// FundingSource is one external source of account funding.
type FundingSource struct {
	Type          string `json:"type"` // ACH, WIRE, CHECK, TRANSFER
	AccountNumber string `json:"account_number,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	Verified      bool   `json:"verified"`
}

// InvestmentPreferences is the investment-profile document of a setup request.
type InvestmentPreferences struct {
	RiskTolerance          schema.RiskTolerance   `json:"risk_tolerance"`
	InvestmentHorizonYears int                    `json:"investment_horizon_years"`
	AssetClassPreferences  []AssetClassPreference `json:"asset_class_preferences,omitempty"`
	AutoRebalance          bool                   `json:"auto_rebalance"`
	DividendReinvestment   bool                   `json:"dividend_reinvestment"`
}

// AssetClassPreference is a target allocation for one asset class.
// Allocations across a preference set must sum to 100 within a ±1 tolerance.
type AssetClassPreference struct {
	AssetClass string  `json:"asset_class"`
	Allocation float64 `json:"allocation"`
}

// SetupStep is one dependency-gated unit of account setup work.
// Order may be fractional so conditional steps interleave at the correct
// dependency point; dependencies are matched by step name.
type SetupStep struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Status       schema.StepStatus `json:"status"`
	Order        float64           `json:"order"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Error        *SetupError       `json:"error,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// StepName implements runner.Node.
func (s *SetupStep) StepName() string { return s.Name }

// StepDependencies implements runner.Node.
func (s *SetupStep) StepDependencies() []string { return s.Dependencies }

// SetupError is a structured record of a failed setup step. Severity below
// CRITICAL lets the chain continue to the next eligible step; CRITICAL halts it.
type SetupError struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Severity  schema.Severity `json:"severity"`
	StepName  string          `json:"step_name"`
	Timestamp time.Time       `json:"timestamp"`
}

// SetupRequest bundles the three account documents with the ordered step
// chain that drives them through validation and activation.
type SetupRequest struct {
	ID            string                `json:"id"`
	WorkflowID    string                `json:"workflow_id"`
	ClientID      string                `json:"client_id"`
	Status        SetupStatus           `json:"status"`
	Jurisdiction  string                `json:"jurisdiction,omitempty"`
	FeeTier       string                `json:"fee_tier,omitempty"`
	Configuration AccountConfiguration  `json:"configuration"`
	Funding       FundingSetup          `json:"funding"`
	Preferences   InvestmentPreferences `json:"preferences"`
	Steps         []*SetupStep          `json:"steps"`
	Errors        []*SetupError         `json:"errors,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Step returns the step with the given name, or nil.
func (r *SetupRequest) Step(name string) *SetupStep {
	for _, s := range r.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// PreferencesInput carries caller overrides for the investment preferences.
// The toggles are pointers so an absent field keeps its enabled default
// instead of reading as false.
type PreferencesInput struct {
	RiskTolerance          schema.RiskTolerance   `json:"risk_tolerance,omitempty"`
	InvestmentHorizonYears int                    `json:"investment_horizon_years,omitempty"`
	AssetClassPreferences  []AssetClassPreference `json:"asset_class_preferences,omitempty"`
	AutoRebalance          *bool                  `json:"auto_rebalance,omitempty"`
	DividendReinvestment   *bool                  `json:"dividend_reinvestment,omitempty"`
}

// Input carries the caller-supplied partial documents for a new setup
// request. Nil sub-documents take full defaults; non-nil ones are merged
// field-by-field over the defaults.
type Input struct {
	AccountType   schema.AccountType    `json:"account_type"`
	Configuration *AccountConfiguration `json:"configuration,omitempty"`
	Funding       *FundingSetup         `json:"funding,omitempty"`
	Preferences   *PreferencesInput     `json:"preferences,omitempty"`
	Jurisdiction  string                `json:"jurisdiction,omitempty"`
}
