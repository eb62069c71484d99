package domain

import (
	"strings"
)

// ScenarioFocus selects whether a scenario monitors accounts or customers
type ScenarioFocus string

const (
	FocusAccount  ScenarioFocus = "ACCOUNT"
	FocusCustomer ScenarioFocus = "CUSTOMER"
)

// ThresholdLevelActive enables tiered (risk-segmented) thresholds
const ThresholdLevelActive = "ACTIVE"

// ScenarioConfig is the per-scenario job configuration
type ScenarioConfig struct {
	ID             string        `json:"scenario_id" db:"scenario_id"`
	Name           string        `json:"scenario_name" db:"scenario_name"`
	JobID          string        `json:"job_id" db:"job_id"`
	JobName        string        `json:"job_name" db:"job_name"`
	Focus          ScenarioFocus `json:"scenario_focus" db:"scenario_focus"`
	ThresholdLevel string        `json:"threshold_level_fl" db:"threshold_level_fl"`
	AlertTypeID    int           `json:"alert_type_id" db:"alert_type_id"`
	ConfigID       int           `json:"config_id" db:"config_id"`

	// Filters are CEL predicates over a transaction, ANDed together
	Filters []string `json:"filters,omitempty"`

	// DisplayAttributes limits which evidence attributes are persisted on the alert
	DisplayAttributes []string `json:"display_attributes,omitempty"`
}

// Tiered returns true when thresholds are segmented by risk tier
func (c ScenarioConfig) Tiered() bool {
	return c.ThresholdLevel == ThresholdLevelActive
}

// ActiveFilters drops blank and commented-out filters
func (c ScenarioConfig) ActiveFilters() []string {
	out := make([]string, 0, len(c.Filters))
	for _, f := range c.Filters {
		f = strings.TrimSpace(f)
		if f == "" || strings.Contains(f, "--") {
			continue
		}
		out = append(out, f)
	}
	return out
}
