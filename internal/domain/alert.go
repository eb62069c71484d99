package domain

import (
	"sort"
	"strings"
	"time"
)

// Priority is the disposition tier assigned by the scoring composer
type Priority string

const (
	PriorityAutoClosure Priority = "Recommended Autoclosure"
	PriorityLow         Priority = "Low"
	PriorityMedium      Priority = "Medium"
	PriorityHigh        Priority = "High"
	PriorityCritical    Priority = "Critical"
)

// PriorityForScore returns the score-based tier
func PriorityForScore(score float64) Priority {
	switch {
	case score > 90:
		return PriorityCritical
	case score >= 70:
		return PriorityHigh
	case score >= 35:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ColorCode returns the UI colour for the priority
func (p Priority) ColorCode() string {
	switch p {
	case PriorityCritical, PriorityHigh:
		return "#FB404B"
	case PriorityMedium:
		return "#FFA534"
	default:
		return "#47B0A2"
	}
}

// AlertStatus represents the workflow status of a persisted alert
type AlertStatus string

const (
	AlertStatusNew       AlertStatus = "NEW"
	AlertStatusAssigned  AlertStatus = "ASSIGNED"
	AlertStatusParked    AlertStatus = "PARKED"
	AlertStatusReopen    AlertStatus = "REOPEN"
	AlertStatusEscalated AlertStatus = "ESCALATED"
	AlertStatusClosed    AlertStatus = "CLOSED"

	// Scoring buckets
	AlertStatusOther AlertStatus = "OTHER"
	AlertStatusSAR   AlertStatus = "SAR"
)

// IsOpen returns true for statuses that are still being worked
func (s AlertStatus) IsOpen() bool {
	switch s {
	case AlertStatusNew, AlertStatusAssigned, AlertStatusParked, AlertStatusEscalated:
		return true
	}
	return false
}

// FalsePositiveReason is the closure reason that makes an entity eligible for auto-closure
const FalsePositiveReason = "alert_deemed_as_false-posetive"

// Alert is a candidate alert produced by a detector and enriched by scoring
type Alert struct {
	ID           string `json:"alert_id"` // transient, unique within a run
	ScenarioID   string `json:"scenario_id"`
	ScenarioName string `json:"scenario_name"`
	JobID        string `json:"job_id"`
	JobName      string `json:"job_name"`

	// Subject
	AccountIDs   []string     `json:"account_ids"`
	CustomerIDs  []string     `json:"customer_ids"`
	CustomerName string       `json:"customer_name"`
	CustomerType CustomerType `json:"customer_type"`
	RiskTier     RiskTier     `json:"risk_tier"`

	// Detection facts
	CreatedDate     time.Time `json:"created_date"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TransactionIDs  []string  `json:"transaction_ids"`
	Attributes      Attrs     `json:"attributes"`
	AggregateAmount float64   `json:"aggregate_amount"`

	// Configuration lineage
	ThresholdSetID string            `json:"threshold_set_id"`
	Thresholds     map[string]string `json:"thresholds,omitempty"`
	AlertTypeID    int               `json:"alert_type_id"`
	ConfigID       int               `json:"config_id"`

	// History
	PrevMatchCount         int `json:"prev_match_ct"`
	PrevMatchCountScenario int `json:"prev_match_ct_all"`

	Score *AlertScore `json:"score,omitempty"`
}

// EntityIDs returns the focus entity ids of the alert
func (a *Alert) EntityIDs(focus ScenarioFocus) []string {
	if focus == FocusAccount {
		return a.AccountIDs
	}
	return a.CustomerIDs
}

// JoinedAccountIDs renders the account ids the way the alert table stores them
func (a *Alert) JoinedAccountIDs() string {
	return strings.Join(a.AccountIDs, ", ")
}

// JoinedCustomerIDs renders the customer ids the way the alert table stores them
func (a *Alert) JoinedCustomerIDs() string {
	return strings.Join(a.CustomerIDs, ", ")
}

// IsAutoClosed returns true once scoring recommended auto-closure
func (a *Alert) IsAutoClosed() bool {
	return a.Score != nil && a.Score.AutoClose
}

// AttributeScore records how one threshold attribute was scored
type AttributeScore struct {
	Attribute string  `json:"attribute"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Deviation float64 `json:"deviation"`
	Score     float64 `json:"score"`
}

// AlertScore holds the scoring enrichment of an alert
type AlertScore struct {
	Threshold     float64                 `json:"threshold_score"`
	Modules       map[ScoreModule]float64 `json:"module_scores"`
	Composite     float64                 `json:"alert_score"`
	Priority      Priority                `json:"alert_priority"`
	AutoClose     bool                    `json:"auto_close"`
	PriorStatuses []AlertStatus           `json:"prior_statuses,omitempty"`
	PriorReasons  []string                `json:"prior_reasons,omitempty"`
	Details       []AttributeScore        `json:"threshold_details,omitempty"`
}

// PriorAlert is a historical alert for an entity, as returned by the reference provider
type PriorAlert struct {
	AlertID     string      `json:"alert_id" db:"alert_id"`
	AccountID   string      `json:"account_id" db:"acct_id"`
	CustomerID  string      `json:"customer_id" db:"cust_id"`
	ScenarioID  string      `json:"scenario_id" db:"scenario_id"`
	Status      AlertStatus `json:"status" db:"status_cd"`
	SARID       string      `json:"sar_id,omitempty" db:"sar_id"`
	AutoReason  string      `json:"auto_reason,omitempty" db:"auto_reasn_fl"`
	CreatedDate time.Time   `json:"created_date" db:"created_date"`
}

// EntityID returns the account or customer id depending on focus
func (p *PriorAlert) EntityID(focus ScenarioFocus) string {
	if focus == FocusAccount {
		return strings.TrimSpace(p.AccountID)
	}
	return strings.TrimSpace(p.CustomerID)
}

// SortPriorAlertsNewestFirst orders prior alerts by created date, newest first,
// breaking ties on alert id
func SortPriorAlertsNewestFirst(alerts []PriorAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if !alerts[i].CreatedDate.Equal(alerts[j].CreatedDate) {
			return alerts[i].CreatedDate.After(alerts[j].CreatedDate)
		}
		return alerts[i].AlertID > alerts[j].AlertID
	})
}

// AlertTransaction is the per-transaction alert-membership record
type AlertTransaction struct {
	AlertID       string `json:"alert_id"`
	TransactionID string `json:"transaction_id"`
}

// AlertEntity maps an alert to one (account, customer) pair
type AlertEntity struct {
	AlertID    string `json:"alert_id"`
	AccountID  string `json:"account_id"`
	CustomerID string `json:"customer_id"`
}
