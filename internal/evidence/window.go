package evidence

import (
	"github.com/banking/txn-monitoring-service/internal/domain"
)

// DefaultWindowDays is the evidence look-back of the window assembler
const DefaultWindowDays = 90

// Window collects every transaction of the alert's entities over a fixed
// look-back ending on the as-of date
type Window struct {
	days int
}

// NewWindow creates a window assembler. Non-positive days fall back to the default.
func NewWindow(days int) *Window {
	if days <= 0 {
		days = DefaultWindowDays
	}
	return &Window{days: days}
}

// Assemble implements Assembler
func (w *Window) Assemble(in Input) ([]domain.EvidenceBundle, error) {
	asOf := domain.Day(in.AsOf)
	from := asOf.AddDate(0, 0, -w.days)

	inWindow := make([]domain.Transaction, 0, len(in.Transactions))
	for _, tx := range in.Transactions {
		if domain.WithinDays(tx.EffectiveDate(), from, asOf) {
			inWindow = append(inWindow, tx)
		}
	}
	sortByExecution(inWindow)

	bundles := make([]domain.EvidenceBundle, 0, len(in.Alerts))
	for _, alert := range in.Alerts {
		bundle := newBundle(alert, in.Scenario.Name, asOf)
		belongs := entityMatcher(alert, in.Scenario.Focus)
		supporting := supportingSet(alert)

		for _, tx := range inWindow {
			if !belongs(tx) {
				continue
			}
			fields := transactionFields(tx)
			fields.Set(domain.KeyAlertFlag, alertFlag(supporting[tx.ID]))
			fields.Set(domain.KeyTransactionRisk, domain.String(tx.RiskType()))
			fields.Merge(alert.Attributes)
			setThresholds(&fields, in.Thresholds, nil)

			bundle.Rows = append(bundle.Rows, domain.EvidenceRow{
				TransactionID: tx.ID,
				Supporting:    supporting[tx.ID],
				Fields:        fields,
			})
		}
		bundles = append(bundles, bundle)
	}
	return bundles, nil
}
