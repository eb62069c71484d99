package detection

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// DefaultBaselineMonths is the number of calendar months averaged into the baseline
const DefaultBaselineMonths = 6

// Periods are the comparison windows of the deviation strategy, inclusive
type Periods struct {
	CurrentStart  time.Time
	CurrentEnd    time.Time
	BaselineStart time.Time
	BaselineEnd   time.Time
}

// PeriodsFor derives the current and baseline periods. Up to the 27th the
// current period is the lookbackMonths completed months before asOf's month;
// from the 28th on it is asOf's own month. The baseline is always the
// baselineMonths calendar months immediately before the current period.
func PeriodsFor(asOf time.Time, lookbackMonths, baselineMonths int) Periods {
	first := domain.FirstOfMonth(asOf)

	var p Periods
	if asOf.Day() <= 27 {
		p.CurrentStart = first.AddDate(0, -lookbackMonths, 0)
		p.CurrentEnd = first.AddDate(0, 0, -1)
	} else {
		p.CurrentStart = first
		p.CurrentEnd = first.AddDate(0, 1, -1)
	}
	p.BaselineEnd = p.CurrentStart.AddDate(0, 0, -1)
	p.BaselineStart = p.CurrentStart.AddDate(0, -baselineMonths, 0)
	return p
}

// Deviation detects accounts whose current-period volume jumped against
// their own monthly baseline (account focus)
type Deviation struct {
	baselineMonths int
}

// NewDeviation creates the aggregate-deviation detector
func NewDeviation(baselineMonths int) *Deviation {
	if baselineMonths <= 0 {
		baselineMonths = DefaultBaselineMonths
	}
	return &Deviation{baselineMonths: baselineMonths}
}

// BaselineMonths returns the configured baseline length
func (d *Deviation) BaselineMonths() int {
	return d.baselineMonths
}

type accountActivity struct {
	owner      domain.Entity
	customerID string
	current    decimal.Decimal
	baseline   decimal.Decimal
	inCurrent  bool
	inBaseline bool
	currentTxs []domain.Transaction
}

type deviationLimits struct {
	minAmount     decimal.Decimal
	minPercentage decimal.Decimal
}

// Detect implements Detector
func (d *Deviation) Detect(in Input) ([]*domain.Alert, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	lookback, err := positiveInt(in.Thresholds, domain.ThLookbackPeriod)
	if err != nil {
		return nil, err
	}

	asOf := domain.Day(in.AsOf)
	periods := PeriodsFor(asOf, lookback, d.baselineMonths)

	minOpen := make(map[domain.CustomerType]time.Time)
	accounts := make(map[string]*accountActivity)

	for _, tx := range in.Transactions {
		ct := tx.Owner.CustomerType
		if ct != domain.CustomerTypeIndividual && ct != domain.CustomerTypeOrganization {
			continue
		}
		if !tx.Owner.HasOpenDate() {
			continue
		}
		cutoff, ok := minOpen[ct]
		if !ok {
			age, err := nonNegativeInt(in.Thresholds, thresholdKey(domain.ThMinAccountAge, ct))
			if err != nil {
				return nil, err
			}
			cutoff = asOf.AddDate(0, 0, -age)
			minOpen[ct] = cutoff
		}
		if domain.Day(tx.Owner.AccountOpenDate).After(cutoff) {
			continue
		}

		day := domain.Day(tx.ExecutionDate)
		inCurrent := domain.WithinDays(day, periods.CurrentStart, periods.CurrentEnd)
		inBaseline := domain.WithinDays(day, periods.BaselineStart, periods.BaselineEnd)
		if !inCurrent && !inBaseline {
			continue
		}

		act, ok := accounts[tx.AccountID]
		if !ok {
			act = &accountActivity{owner: tx.Owner, customerID: tx.CustomerID}
			accounts[tx.AccountID] = act
		}
		amount := decimal.NewFromFloat(tx.Amount)
		if inCurrent {
			act.inCurrent = true
			act.current = act.current.Add(amount)
			act.currentTxs = append(act.currentTxs, tx)
		} else {
			act.inBaseline = true
			act.baseline = act.baseline.Add(amount)
		}
	}

	ids := make([]string, 0, len(accounts))
	for id, act := range accounts {
		if act.inCurrent && act.inBaseline {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	limits := make(map[string]deviationLimits)
	months := decimal.NewFromInt(int64(d.baselineMonths))

	var alerts []*domain.Alert
	for _, acctID := range ids {
		act := accounts[acctID]

		lim, err := d.limitsFor(in, act.owner, limits)
		if err != nil {
			return nil, err
		}

		average := act.baseline.Div(months)
		percentage := decimal.Zero
		if average.IsPositive() {
			percentage = act.current.Sub(average).Div(average).Mul(hundred)
			if percentage.IsNegative() {
				percentage = decimal.Zero
			}
		}

		if act.current.LessThan(lim.minAmount) || percentage.LessThan(lim.minPercentage) {
			continue
		}
		alerts = append(alerts, d.newAlert(in, acctID, act, average, percentage, periods, asOf))
	}
	return alerts, nil
}

func (d *Deviation) limitsFor(in Input, owner domain.Entity, cache map[string]deviationLimits) (deviationLimits, error) {
	tiered := in.Scenario.Tiered()
	amountKey := domain.SegmentedKey(domain.ThMinTrxnAmount, owner.CustomerType, owner.RiskTier, tiered)
	if lim, ok := cache[amountKey]; ok {
		return lim, nil
	}
	amount, err := in.Thresholds.Float(amountKey)
	if err != nil {
		return deviationLimits{}, err
	}
	pct, err := in.Thresholds.Float(domain.SegmentedKey(domain.ThMinRiskPercentage, owner.CustomerType, owner.RiskTier, tiered))
	if err != nil {
		return deviationLimits{}, err
	}
	lim := deviationLimits{minAmount: decimal.NewFromFloat(amount), minPercentage: decimal.NewFromFloat(pct)}
	cache[amountKey] = lim
	return lim, nil
}

// nonNegativeInt resolves an integral threshold that must be zero or more
func nonNegativeInt(t domain.ThresholdSet, key string) (int, error) {
	v, err := t.Int(key)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, domain.NewConfigurationError("THRESHOLD_INVALID",
			fmt.Sprintf("scenario %s: threshold %q must not be negative", t.ScenarioID, key))
	}
	return v, nil
}

func (d *Deviation) newAlert(
	in Input,
	acctID string,
	act *accountActivity,
	average, percentage decimal.Decimal,
	periods Periods,
	asOf time.Time,
) *domain.Alert {
	txs := act.currentTxs
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].ExecutionDate.Equal(txs[j].ExecutionDate) {
			return txs[i].ExecutionDate.Before(txs[j].ExecutionDate)
		}
		return txs[i].ID < txs[j].ID
	})
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}

	current := domain.Round2(act.current.InexactFloat64())

	attrs := domain.NewAttrs()
	attrs.Set(domain.KeyScenarioName, domain.String(in.Scenario.Name))
	attrs.Set(domain.KeyCustomerType, domain.String(string(act.owner.CustomerType)))
	attrs.Set(domain.KeyAccountAge, domain.String(act.owner.AccountAge(asOf)))
	attrs.Set(domain.KeyTotalTrxnAmount, domain.Number(current))
	attrs.Set(domain.KeyPreviousAverage, domain.Number(domain.Round2(average.InexactFloat64())))
	attrs.Set(domain.KeyRiskPercentage, domain.Number(domain.Round2(percentage.InexactFloat64())))
	attrs.Set(domain.KeyCustomerRiskLevel, domain.String(string(act.owner.RiskTier)))
	attrs.Set(domain.KeyLookbackPeriod, domain.String(fmt.Sprintf("%s  -  %s",
		periods.CurrentStart.Format(domain.DateLayout), periods.CurrentEnd.Format(domain.DateLayout))))
	attrs.Set(domain.KeyCustomerRisk, domain.String(string(act.owner.RiskTier)))

	return &domain.Alert{
		ID:              in.Sequence.Next(),
		ScenarioID:      in.Scenario.ID,
		ScenarioName:    in.Scenario.Name,
		JobID:           in.Scenario.JobID,
		JobName:         in.Scenario.JobName,
		AccountIDs:      []string{acctID},
		CustomerIDs:     []string{act.customerID},
		CustomerName:    act.owner.DisplayName,
		CustomerType:    act.owner.CustomerType,
		RiskTier:        act.owner.RiskTier,
		CreatedDate:     asOf,
		PeriodStart:     periods.CurrentStart,
		PeriodEnd:       periods.CurrentEnd,
		TransactionIDs:  ids,
		Attributes:      attrs,
		AggregateAmount: current,
		ThresholdSetID:  in.Thresholds.ID,
		Thresholds:      in.Thresholds.Values,
		AlertTypeID:     in.Scenario.AlertTypeID,
		ConfigID:        in.Scenario.ConfigID,
	}
}
