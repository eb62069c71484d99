package evidence

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// Input is what an assembler needs to build the bundles of one detection pass
type Input struct {
	AsOf         time.Time
	Scenario     domain.ScenarioConfig
	Thresholds   domain.ThresholdSet
	Alerts       []*domain.Alert
	Transactions []domain.Transaction
}

// Assembler builds one evidence bundle per alert
type Assembler interface {
	Assemble(in Input) ([]domain.EvidenceBundle, error)
}

// Transaction row field names
const (
	FieldTransactionID = "TRXN_ID"
	FieldAccountID     = "ACCT_ID"
	FieldCustomerID    = "CUSTOMER_ID"
	FieldAmount        = "TRXN_AMOUNT"
	FieldExecutionDate = "TRXN_EXCN_DT"
	FieldPostingDate   = "TRXN_POST_DT"
	FieldTypeCode      = "TRXN_TYPE_CD"
	FieldChannel       = "CHANNEL"
	FieldCreditDebit   = "CREDIT_DEBIT_CODE"
	FieldPartyName     = "PARTY_NAME"
	FieldPartyCountry  = "PARTY_COUNTRY"
	FieldDisplayName   = "DISPLAY_NM"
	FieldAccountOpen   = "ACCT_OPEN_DT"
	FieldAccountType   = "ACCT_TYPE"
)

// transactionFields renders the facts of one transaction
func transactionFields(tx domain.Transaction) domain.Attrs {
	f := domain.NewAttrs()
	f.Set(FieldTransactionID, domain.String(tx.ID))
	f.Set(FieldAccountID, domain.String(tx.AccountID))
	f.Set(FieldCustomerID, domain.String(tx.CustomerID))
	f.Set(FieldAmount, domain.Number(tx.Amount))
	f.Set(FieldExecutionDate, domain.Date(tx.ExecutionDate))
	f.Set(FieldPostingDate, dateOrBlank(tx.PostingDate))
	f.Set(FieldTypeCode, domain.String(tx.TypeCode))
	f.Set(FieldChannel, domain.String(tx.Channel))
	f.Set(FieldCreditDebit, domain.String(tx.CreditDebit))
	f.Set(FieldPartyName, domain.String(tx.Counterparty.Name))
	f.Set(FieldPartyCountry, domain.String(tx.Counterparty.Country))
	f.Set(FieldDisplayName, domain.String(tx.Owner.DisplayName))
	f.Set(FieldAccountOpen, dateOrBlank(tx.Owner.AccountOpenDate))
	f.Set(FieldAccountType, domain.String(tx.Owner.AccountType))
	return f
}

func dateOrBlank(t time.Time) domain.Value {
	if t.IsZero() {
		return domain.String("")
	}
	return domain.Date(t)
}

func alertFlag(supporting bool) domain.Value {
	if supporting {
		return domain.String("Y")
	}
	return domain.String("N")
}

// setThresholds copies threshold values onto a row. Numeric values are
// rounded to two places; anything else is kept verbatim.
func setThresholds(f *domain.Attrs, t domain.ThresholdSet, keep func(string) bool) {
	for _, k := range t.Keys() {
		if keep != nil && !keep(k) {
			continue
		}
		raw := t.Values[k]
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			f.Set(k, domain.Number(domain.Round2(n)))
			continue
		}
		f.Set(k, domain.String(raw))
	}
}

// entityMatcher reports whether a transaction belongs to an alert's focus entities
func entityMatcher(alert *domain.Alert, focus domain.ScenarioFocus) func(domain.Transaction) bool {
	ids := make(map[string]bool)
	for _, id := range alert.EntityIDs(focus) {
		ids[strings.TrimSpace(id)] = true
	}
	if focus == domain.FocusAccount {
		return func(tx domain.Transaction) bool { return ids[tx.AccountID] }
	}
	return func(tx domain.Transaction) bool { return ids[tx.CustomerID] }
}

func sortByExecution(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		di, dj := domain.Day(txs[i].ExecutionDate), domain.Day(txs[j].ExecutionDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return txs[i].ID < txs[j].ID
	})
}

func supportingSet(alert *domain.Alert) map[string]bool {
	set := make(map[string]bool, len(alert.TransactionIDs))
	for _, id := range alert.TransactionIDs {
		set[id] = true
	}
	return set
}

func newBundle(alert *domain.Alert, scenarioName string, asOf time.Time) domain.EvidenceBundle {
	if scenarioName == "" {
		scenarioName = alert.ScenarioName
	}
	return domain.EvidenceBundle{
		AlertID:      alert.ID,
		ScenarioName: scenarioName,
		CreatedDate:  domain.Day(asOf),
		Rows:         []domain.EvidenceRow{},
	}
}
