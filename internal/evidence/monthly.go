package evidence

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/banking/txn-monitoring-service/internal/detection"
	"github.com/banking/txn-monitoring-service/internal/domain"
)

// MonthlyTrend collects the baseline transactions of an alerted account and
// summarizes them as a per-month series
type MonthlyTrend struct {
	baselineMonths int
}

// NewMonthlyTrend creates a monthly-trend assembler
func NewMonthlyTrend(baselineMonths int) *MonthlyTrend {
	if baselineMonths <= 0 {
		baselineMonths = detection.DefaultBaselineMonths
	}
	return &MonthlyTrend{baselineMonths: baselineMonths}
}

// lookbackThreshold keeps the thresholds that govern the look-back comparison
func lookbackThreshold(key string) bool {
	return key == domain.ThLookbackPeriod ||
		strings.HasPrefix(key, domain.ThMinTrxnAmount) ||
		strings.HasPrefix(key, domain.ThMinAccountAge) ||
		strings.HasPrefix(key, domain.ThMinRiskPercentage)
}

// Assemble implements Assembler
func (m *MonthlyTrend) Assemble(in Input) ([]domain.EvidenceBundle, error) {
	lookback, err := in.Thresholds.Int(domain.ThLookbackPeriod)
	if err != nil {
		return nil, err
	}
	asOf := domain.Day(in.AsOf)
	periods := detection.PeriodsFor(asOf, lookback, m.baselineMonths)

	baseline := make([]domain.Transaction, 0, len(in.Transactions))
	for _, tx := range in.Transactions {
		if domain.WithinDays(tx.ExecutionDate, periods.BaselineStart, periods.BaselineEnd) {
			baseline = append(baseline, tx)
		}
	}
	sortByExecution(baseline)

	bundles := make([]domain.EvidenceBundle, 0, len(in.Alerts))
	for _, alert := range in.Alerts {
		bundle := newBundle(alert, in.Scenario.Name, asOf)
		belongs := entityMatcher(alert, domain.FocusAccount)
		supporting := supportingSet(alert)

		sums := make(map[string]decimal.Decimal)
		for _, tx := range baseline {
			if !belongs(tx) {
				continue
			}
			month := tx.ExecutionDate.Format("2006-01")
			sums[month] = sums[month].Add(decimal.NewFromFloat(tx.Amount))

			fields := transactionFields(tx)
			fields.Set(domain.KeyAlertFlag, alertFlag(supporting[tx.ID]))
			setThresholds(&fields, in.Thresholds, lookbackThreshold)
			fields.Merge(alert.Attributes)

			bundle.Rows = append(bundle.Rows, domain.EvidenceRow{
				TransactionID: tx.ID,
				Supporting:    supporting[tx.ID],
				Fields:        fields,
			})
		}

		bundle.MonthlySums = make([]domain.MonthlyAmount, 0, m.baselineMonths)
		for month := domain.FirstOfMonth(periods.BaselineEnd); !month.Before(periods.BaselineStart); month = month.AddDate(0, -1, 0) {
			key := month.Format("2006-01")
			bundle.MonthlySums = append(bundle.MonthlySums, domain.MonthlyAmount{
				Month: key,
				Value: domain.Round2(sums[key].InexactFloat64()),
			})
		}
		bundles = append(bundles, bundle)
	}
	return bundles, nil
}
