package detection

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// FrequencyWindow detects clustered high-risk activity per customer: enough
// high-risk money, in enough transactions, making up enough of the customer's
// total flow, all within one frequency period.
type FrequencyWindow struct{}

// NewFrequencyWindow creates the frequency-window detector
func NewFrequencyWindow() *FrequencyWindow {
	return &FrequencyWindow{}
}

// freqParams are the per-customer-type thresholds of the strategy
type freqParams struct {
	minTrxnAmount float64
	hrgAmount     decimal.Decimal
	hrgCount      int
	hrgPercentage decimal.Decimal
}

// dayRow is one (date, account, high-risk flag) aggregate of a customer
type dayRow struct {
	date     time.Time
	account  string
	highRisk bool
	amount   decimal.Decimal
}

// windowStats are the facts of a candidate window [start, end]
type windowStats struct {
	start      time.Time
	end        time.Time
	total      decimal.Decimal
	hrgAmount  decimal.Decimal
	hrgCount   int
	percentage decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Detect implements Detector
func (d *FrequencyWindow) Detect(in Input) ([]*domain.Alert, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	lookback, err := positiveInt(in.Thresholds, domain.ThLookbackPeriod)
	if err != nil {
		return nil, err
	}
	frequency, err := positiveInt(in.Thresholds, domain.ThFrequencyPeriod)
	if err != nil {
		return nil, err
	}

	asOf := domain.Day(in.AsOf)
	lookbackStart := asOf.AddDate(0, 0, -(lookback - 1))

	params := make(map[domain.CustomerType]freqParams)
	owners := make(map[string]domain.Entity)
	filtered := make(map[string][]domain.Transaction)

	for _, tx := range in.Transactions {
		if _, ok := owners[tx.CustomerID]; !ok {
			owners[tx.CustomerID] = tx.Owner
		}
		ct := tx.Owner.CustomerType
		if ct != domain.CustomerTypeIndividual && ct != domain.CustomerTypeOrganization {
			continue
		}
		p, ok := params[ct]
		if !ok {
			p, err = resolveFreqParams(in.Thresholds, ct)
			if err != nil {
				return nil, err
			}
			params[ct] = p
		}
		if tx.Amount < p.minTrxnAmount || !domain.WithinDays(tx.EffectiveDate(), lookbackStart, asOf) {
			continue
		}
		filtered[tx.CustomerID] = append(filtered[tx.CustomerID], tx)
	}

	customers := make([]string, 0, len(filtered))
	for id := range filtered {
		customers = append(customers, id)
	}
	sort.Strings(customers)

	var alerts []*domain.Alert
	for _, custID := range customers {
		txs := filtered[custID]
		owner := owners[custID]
		p, ok := params[owner.CustomerType]
		if !ok {
			owner = txs[0].Owner
			p = params[owner.CustomerType]
		}

		for _, st := range scanWindows(groupDays(txs), p, frequency) {
			alerts = append(alerts, d.newAlert(in, custID, owner, txs, st, lookbackStart, asOf))
		}
	}
	return alerts, nil
}

func resolveFreqParams(t domain.ThresholdSet, ct domain.CustomerType) (freqParams, error) {
	var p freqParams
	var err error
	if p.minTrxnAmount, err = t.Float(thresholdKey(domain.ThIndividualAmount, ct)); err != nil {
		return p, err
	}
	amount, err := t.Float(thresholdKey(domain.ThHRGAmount, ct))
	if err != nil {
		return p, err
	}
	if p.hrgCount, err = t.Int(thresholdKey(domain.ThHRGCount, ct)); err != nil {
		return p, err
	}
	pct, err := t.Float(thresholdKey(domain.ThHRGPercentage, ct))
	if err != nil {
		return p, err
	}
	p.hrgAmount = decimal.NewFromFloat(amount)
	p.hrgPercentage = decimal.NewFromFloat(pct)
	return p, nil
}

func positiveInt(t domain.ThresholdSet, key string) (int, error) {
	v, err := t.Int(key)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, domain.NewConfigurationError("THRESHOLD_INVALID",
			fmt.Sprintf("scenario %s: threshold %q must be at least 1, got %d", t.ScenarioID, key, v))
	}
	return v, nil
}

// groupDays sums a customer's transactions by (date, account, high-risk flag),
// ordered by date, then account, then flag
func groupDays(txs []domain.Transaction) []dayRow {
	type key struct {
		date     time.Time
		account  string
		highRisk bool
	}
	index := make(map[key]int)
	var rows []dayRow
	for _, tx := range txs {
		k := key{date: tx.EffectiveDate(), account: tx.AccountID, highRisk: tx.HighRisk}
		i, ok := index[k]
		if !ok {
			rows = append(rows, dayRow{date: k.date, account: k.account, highRisk: k.highRisk})
			i = len(rows) - 1
			index[k] = i
		}
		rows[i].amount = rows[i].amount.Add(decimal.NewFromFloat(tx.Amount))
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].date.Equal(rows[j].date) {
			return rows[i].date.Before(rows[j].date)
		}
		if rows[i].account != rows[j].account {
			return rows[i].account < rows[j].account
		}
		return !rows[i].highRisk && rows[j].highRisk
	})
	return rows
}

// scanWindows walks the rows newest first. Each unconsumed high-risk date
// anchors a window that grows backwards one high-risk date at a time. A
// window that reaches a date outside the frequency period is discarded and
// the next unconsumed high-risk date becomes the anchor. Dates absorbed by a
// window that fires, or that runs out of rows, are consumed.
func scanWindows(rows []dayRow, p freqParams, frequency int) []windowStats {
	var fired []windowStats
	consumed := make(map[time.Time]bool)

	for oi := len(rows) - 1; oi >= 0; oi-- {
		anchor := rows[oi]
		if !anchor.highRisk || consumed[anchor.date] {
			continue
		}
		bound := anchor.date.AddDate(0, 0, -(frequency - 1))

		absorbed := make(map[time.Time]bool)
		sum := decimal.Zero
		discarded := false

		for ii := oi; ii >= 0; ii-- {
			r := rows[ii]
			if !r.highRisk || consumed[r.date] || absorbed[r.date] {
				continue
			}
			if r.date.Before(bound) {
				discarded = true
				break
			}
			absorbed[r.date] = true
			sum = sum.Add(r.amount)

			st := statsBetween(rows, r.date, anchor.date)
			if p.fires(sum, st) {
				fired = append(fired, st)
				break
			}
		}

		if discarded {
			continue
		}
		for date := range absorbed {
			consumed[date] = true
		}
	}
	return fired
}

func statsBetween(rows []dayRow, start, end time.Time) windowStats {
	st := windowStats{start: start, end: end}
	for _, r := range rows {
		if r.date.Before(start) || r.date.After(end) {
			continue
		}
		st.total = st.total.Add(r.amount)
		if r.highRisk {
			st.hrgAmount = st.hrgAmount.Add(r.amount)
			st.hrgCount++
		}
	}
	if st.total.IsPositive() {
		st.percentage = st.hrgAmount.Div(st.total).Mul(hundred)
	}
	return st
}

func (p freqParams) fires(sum decimal.Decimal, st windowStats) bool {
	return sum.GreaterThanOrEqual(p.hrgAmount) &&
		st.hrgCount >= p.hrgCount &&
		st.hrgAmount.GreaterThanOrEqual(p.hrgAmount) &&
		st.percentage.GreaterThanOrEqual(p.hrgPercentage)
}

func (d *FrequencyWindow) newAlert(
	in Input,
	custID string,
	owner domain.Entity,
	txs []domain.Transaction,
	st windowStats,
	lookbackStart, asOf time.Time,
) *domain.Alert {
	accounts := make(map[string]struct{})
	var supporting []domain.Transaction
	for _, tx := range txs {
		accounts[tx.AccountID] = struct{}{}
		if tx.HighRisk && domain.WithinDays(tx.EffectiveDate(), st.start, st.end) {
			supporting = append(supporting, tx)
		}
	}
	sort.Slice(supporting, func(i, j int) bool {
		di, dj := supporting[i].EffectiveDate(), supporting[j].EffectiveDate()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return supporting[i].ID < supporting[j].ID
	})
	ids := make([]string, len(supporting))
	for i, tx := range supporting {
		ids[i] = tx.ID
	}

	hrgAmount := st.hrgAmount.InexactFloat64()

	attrs := domain.NewAttrs()
	attrs.Set(domain.KeyScenarioName, domain.String(in.Scenario.Name))
	attrs.Set(domain.KeyCustomerType, domain.String(string(owner.CustomerType)))
	attrs.Set(domain.KeyFrequencyPeriod, domain.String(fmt.Sprintf("%s  -  %s",
		st.start.Format(domain.DateLayout), st.end.Format(domain.DateLayout))))
	attrs.Set(domain.KeyLookbackPeriod, domain.String(fmt.Sprintf("%s - %s",
		lookbackStart.Format(domain.DateLayout), asOf.Format(domain.DateLayout))))
	attrs.Set(domain.KeyTotalTrxnAmount, domain.Number(domain.Round2(st.total.InexactFloat64())))
	attrs.Set(domain.KeyTotalHRGAmount, domain.Number(domain.Round2(hrgAmount)))
	attrs.Set(domain.KeyTotalHRGCount, domain.Int(st.hrgCount))
	attrs.Set(domain.KeyHRGPercentage, domain.Number(domain.Round2(st.percentage.InexactFloat64())))
	attrs.Set(domain.KeyCustomerRiskLevel, domain.String(string(owner.RiskTier)))
	attrs.Set(domain.KeyCustomerRisk, domain.String(string(owner.RiskTier)))

	return &domain.Alert{
		ID:              in.Sequence.Next(),
		ScenarioID:      in.Scenario.ID,
		ScenarioName:    in.Scenario.Name,
		JobID:           in.Scenario.JobID,
		JobName:         in.Scenario.JobName,
		AccountIDs:      sortedKeys(accounts),
		CustomerIDs:     []string{custID},
		CustomerName:    owner.DisplayName,
		CustomerType:    owner.CustomerType,
		RiskTier:        owner.RiskTier,
		CreatedDate:     asOf,
		PeriodStart:     st.start,
		PeriodEnd:       st.end,
		TransactionIDs:  ids,
		Attributes:      attrs,
		AggregateAmount: domain.Round2(hrgAmount),
		ThresholdSetID:  in.Thresholds.ID,
		Thresholds:      in.Thresholds.Values,
		AlertTypeID:     in.Scenario.AlertTypeID,
		ConfigID:        in.Scenario.ConfigID,
	}
}
