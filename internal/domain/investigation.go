package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvestigationStatusAutoClosed is the status code of an investigation opened
// and closed by the auto-closure rule
const InvestigationStatusAutoClosed = 4

// Investigation is the case record written for an auto-closed alert
type Investigation struct {
	ID             uuid.UUID `json:"id" db:"id"`
	AlertID        int64     `json:"alert_id" db:"alert_id"` // durable id assigned by the sink
	TransientID    string    `json:"transient_alert_id" db:"-"`
	StatusCode     int       `json:"status_cd" db:"status_cd"`
	AutoReason     string    `json:"auto_reasn_fl" db:"auto_reasn_fl"`
	Narrative      string    `json:"narrative,omitempty" db:"narrative"`
	Score          float64   `json:"alert_score" db:"alert_score"`
	Priority       Priority  `json:"alert_priority" db:"alert_priority"`
	CreatedDate    time.Time `json:"created_date" db:"created_date"`
	DueDate        time.Time `json:"due_date" db:"due_date"`
	LastModifiedBy string    `json:"last_modified_by" db:"last_modified_by"`
}

// NewAutoCloseInvestigation builds the investigation record of an auto-closed alert
func NewAutoCloseInvestigation(alert *Alert, durableID int64, actor string) *Investigation {
	inv := &Investigation{
		ID:             uuid.New(),
		AlertID:        durableID,
		TransientID:    alert.ID,
		StatusCode:     InvestigationStatusAutoClosed,
		AutoReason:     FalsePositiveReason,
		CreatedDate:    alert.CreatedDate,
		DueDate:        alert.CreatedDate.AddDate(0, 1, 0),
		LastModifiedBy: actor,
	}
	if alert.Score != nil {
		inv.Score = alert.Score.Composite
		inv.Priority = alert.Score.Priority
	}
	return inv
}

// IsOverdue returns true once the due date has passed
func (i *Investigation) IsOverdue(now time.Time) bool {
	return now.After(i.DueDate)
}

// NarrativeFacts is the structured fact bundle sent to the narrative service
type NarrativeFacts struct {
	AlertID      string            `json:"alert_id"`
	ScenarioID   string            `json:"scenario_id"`
	ScenarioName string            `json:"scenario_name"`
	CustomerName string            `json:"customer_name"`
	AccountIDs   string            `json:"account_ids"`
	CustomerIDs  string            `json:"customer_ids"`
	Score        float64           `json:"alert_score"`
	Priority     Priority          `json:"alert_priority"`
	Attributes   Attrs             `json:"attributes"`
	Thresholds   map[string]string `json:"thresholds,omitempty"`
	PriorReasons []string          `json:"prior_reasons,omitempty"`
}

// NewNarrativeFacts extracts the fact bundle of a scored alert
func NewNarrativeFacts(alert *Alert) NarrativeFacts {
	f := NarrativeFacts{
		AlertID:      alert.ID,
		ScenarioID:   alert.ScenarioID,
		ScenarioName: alert.ScenarioName,
		CustomerName: alert.CustomerName,
		AccountIDs:   alert.JoinedAccountIDs(),
		CustomerIDs:  alert.JoinedCustomerIDs(),
		Attributes:   alert.Attributes.Clone(),
		Thresholds:   alert.Thresholds,
	}
	if alert.Score != nil {
		f.Score = alert.Score.Composite
		f.Priority = alert.Score.Priority
		f.PriorReasons = alert.Score.PriorReasons
	}
	return f
}
