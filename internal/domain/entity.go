package domain

import (
	"fmt"
	"time"
)

// CustomerType distinguishes individuals from organizations
type CustomerType string

const (
	CustomerTypeIndividual   CustomerType = "IND"
	CustomerTypeOrganization CustomerType = "ORG"
)

// RiskTier represents the customer risk rating
type RiskTier string

const (
	RiskTierLow    RiskTier = "LOW"
	RiskTierMedium RiskTier = "MEDIUM"
	RiskTierHigh   RiskTier = "HIGH"
)

// Entity holds the reference attributes of an account or customer.
// Read-only within a scenario run.
type Entity struct {
	DisplayName  string       `json:"display_name"`
	CustomerType CustomerType `json:"customer_type"`
	RiskTier     RiskTier     `json:"risk_tier"`
	AccountType  string       `json:"account_type,omitempty"`

	// Countries
	CountryOfResidence     string `json:"country_of_residence,omitempty"`
	CountryOfIncorporation string `json:"country_of_incorporation,omitempty"`
	Citizenship            string `json:"citizenship,omitempty"`

	IsPEP bool `json:"is_pep"`

	AccountOpenDate time.Time `json:"account_open_date"`
}

// IsIndividual returns true for individual customers
func (e *Entity) IsIndividual() bool {
	return e.CustomerType == CustomerTypeIndividual
}

// HasOpenDate returns true when the account open date is known
func (e *Entity) HasOpenDate() bool {
	return !e.AccountOpenDate.IsZero()
}

// AccountAge renders the account age as of asOf the way investigators read it
func (e *Entity) AccountAge(asOf time.Time) string {
	days := DaysBetween(e.AccountOpenDate, asOf)
	return fmt.Sprintf("%d years and %d months", days/365, (days%365)/30)
}

// ParseCustomerType normalizes a raw customer type code
func ParseCustomerType(s string) (CustomerType, error) {
	switch CustomerType(s) {
	case CustomerTypeIndividual, CustomerTypeOrganization:
		return CustomerType(s), nil
	default:
		return "", fmt.Errorf("unknown customer type %q", s)
	}
}

// ParseRiskTier normalizes a raw risk tier
func ParseRiskTier(s string) (RiskTier, error) {
	switch RiskTier(s) {
	case RiskTierLow, RiskTierMedium, RiskTierHigh:
		return RiskTier(s), nil
	default:
		return "", fmt.Errorf("unknown risk tier %q", s)
	}
}
