package domain

import (
	"strings"
	"time"
)

// DateLayout is the day-granularity layout used across alerts, evidence and partitions
const DateLayout = "2006-01-02"

// Counterparty holds the other side of a transaction
type Counterparty struct {
	Name     string `json:"name,omitempty"`
	Country  string `json:"country,omitempty"`
	Internal bool   `json:"internal"`
}

// Transaction is an immutable fact fetched from the bulk transaction provider.
// Owner carries the reference attributes of the owning account/customer as
// they were at fetch time.
type Transaction struct {
	ID         string `json:"id"`
	AccountID  string `json:"account_id"`
	CustomerID string `json:"customer_id"`

	// Transaction details
	Amount        float64   `json:"amount"`
	ExecutionDate time.Time `json:"execution_date"`
	PostingDate   time.Time `json:"posting_date"`
	TypeCode      string    `json:"type_code"`
	Channel       string    `json:"channel"`
	CreditDebit   string    `json:"credit_debit"` // C, D

	// Parties
	Counterparty Counterparty `json:"counterparty"`
	CrossBorder  bool         `json:"cross_border"`

	// HighRisk is derived from the counterparty country's high-risk flag
	HighRisk bool `json:"high_risk"`

	Owner Entity `json:"owner"`
}

// IsCheck returns true for cheque-type transactions
func (t *Transaction) IsCheck() bool {
	return strings.HasPrefix(t.TypeCode, "CHECK") || strings.HasPrefix(t.TypeCode, "check")
}

// EffectiveDate returns the day the transaction counts towards. Cheques are
// dated by posting, everything else by execution.
func (t *Transaction) EffectiveDate() time.Time {
	if t.IsCheck() && !t.PostingDate.IsZero() {
		return Day(t.PostingDate)
	}
	return Day(t.ExecutionDate)
}

// RiskType returns HRG for high-risk-flagged transactions, NORMAL otherwise
func (t *Transaction) RiskType() string {
	if t.HighRisk {
		return "HRG"
	}
	return "NORMAL"
}

// Day truncates t to midnight UTC of its calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns the first day of t's month
func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// WithinDays reports whether day lies in [from, to], inclusive
func WithinDays(day, from, to time.Time) bool {
	d := Day(day)
	return !d.Before(Day(from)) && !d.After(Day(to))
}
