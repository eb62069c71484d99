package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func txn(id, acct, cust string, amount float64, date string, highRisk bool) domain.Transaction {
	return domain.Transaction{
		ID:            id,
		AccountID:     acct,
		CustomerID:    cust,
		Amount:        amount,
		ExecutionDate: day(date),
		TypeCode:      "WIRE",
		HighRisk:      highRisk,
		Owner: domain.Entity{
			DisplayName:     "Jane Roe",
			CustomerType:    domain.CustomerTypeIndividual,
			AccountOpenDate: day("2020-01-01"),
		},
	}
}

func field(t *testing.T, row domain.EvidenceRow, key string) string {
	t.Helper()
	v, ok := row.Fields.Get(key)
	require.True(t, ok, "missing field %s", key)
	return v.String()
}

func TestWindowAssembler(t *testing.T) {
	attrs := domain.NewAttrs()
	attrs.Set(domain.KeyScenarioName, domain.String("HRG Frequency"))
	alert := &domain.Alert{
		ID:             "0000001",
		ScenarioName:   "HRG Frequency",
		CustomerIDs:    []string{"C1"},
		TransactionIDs: []string{"T2"},
		Attributes:     attrs,
	}
	lonely := &domain.Alert{ID: "0000002", CustomerIDs: []string{"C9"}, TransactionIDs: []string{"T9"}}

	bundles, err := NewWindow(90).Assemble(Input{
		AsOf:       day("2024-03-10"),
		Scenario:   domain.ScenarioConfig{ID: "TS_SCN_01", Name: "HRG Frequency", Focus: domain.FocusCustomer},
		Thresholds: domain.NewThresholdSet("TS-01", "TS_SCN_01", map[string]string{"HRG TRXN AMOUNT IND": "1000.456"}),
		Alerts:     []*domain.Alert{alert, lonely},
		Transactions: []domain.Transaction{
			txn("T2", "A1", "C1", 500, "2024-03-05", true),
			txn("T1", "A2", "C1", 100, "2024-03-01", false),
			txn("T3", "A1", "C1", 700, "2023-12-01", true),
			txn("T4", "A3", "C2", 900, "2024-03-02", true),
		},
	})
	require.NoError(t, err)
	require.Len(t, bundles, 2)

	b := bundles[0]
	assert.Equal(t, "0000001", b.AlertID)
	assert.Equal(t, "HRG Frequency", b.ScenarioName)
	assert.Equal(t, day("2024-03-10"), b.CreatedDate)
	require.Len(t, b.Rows, 2)

	assert.Equal(t, "T1", b.Rows[0].TransactionID)
	assert.False(t, b.Rows[0].Supporting)
	assert.Equal(t, "N", field(t, b.Rows[0], domain.KeyAlertFlag))
	assert.Equal(t, "NORMAL", field(t, b.Rows[0], domain.KeyTransactionRisk))

	assert.Equal(t, "T2", b.Rows[1].TransactionID)
	assert.True(t, b.Rows[1].Supporting)
	assert.Equal(t, "Y", field(t, b.Rows[1], domain.KeyAlertFlag))
	assert.Equal(t, "HRG", field(t, b.Rows[1], domain.KeyTransactionRisk))
	assert.Equal(t, "2024-03-05", field(t, b.Rows[1], FieldExecutionDate))
	assert.Equal(t, "HRG Frequency", field(t, b.Rows[1], domain.KeyScenarioName))
	assert.Equal(t, "1000.46", field(t, b.Rows[1], "HRG TRXN AMOUNT IND"))

	assert.Equal(t, "0000002", bundles[1].AlertID)
	assert.NotNil(t, bundles[1].Rows)
	assert.Empty(t, bundles[1].Rows)
}

func TestWindowAssemblerAccountFocus(t *testing.T) {
	alert := &domain.Alert{ID: "0000001", AccountIDs: []string{"A1"}, TransactionIDs: []string{"T1"}}

	bundles, err := NewWindow(0).Assemble(Input{
		AsOf:     day("2024-03-10"),
		Scenario: domain.ScenarioConfig{Focus: domain.FocusAccount},
		Alerts:   []*domain.Alert{alert},
		Transactions: []domain.Transaction{
			txn("T1", "A1", "C1", 500, "2024-03-05", true),
			txn("T2", "A2", "C1", 100, "2024-03-01", false),
		},
	})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Len(t, bundles[0].Rows, 1)
	assert.Equal(t, "T1", bundles[0].Rows[0].TransactionID)
}

func TestWindowAssemblerDatesChequesByPosting(t *testing.T) {
	alert := &domain.Alert{ID: "0000001", CustomerIDs: []string{"C1"}}

	posted := txn("T1", "A1", "C1", 500, "2023-12-01", false)
	posted.TypeCode = "CHECK"
	posted.PostingDate = day("2024-02-01")

	late := txn("T2", "A1", "C1", 300, "2024-03-01", false)
	late.TypeCode = "CHECK"
	late.PostingDate = day("2024-03-12")

	bundles, err := NewWindow(90).Assemble(Input{
		AsOf:         day("2024-03-10"),
		Scenario:     domain.ScenarioConfig{Focus: domain.FocusCustomer},
		Alerts:       []*domain.Alert{alert},
		Transactions: []domain.Transaction{posted, late},
	})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Len(t, bundles[0].Rows, 1)
	assert.Equal(t, "T1", bundles[0].Rows[0].TransactionID)
}

func TestMonthlyTrendAssembler(t *testing.T) {
	alert := &domain.Alert{ID: "0000001", AccountIDs: []string{"A1"}, TransactionIDs: []string{"T6"}}
	thresholds := domain.NewThresholdSet("TS-12", "TS_SCN_12", map[string]string{
		"LOOKBACK PERIOD":     "1",
		"MIN TRXN AMOUNT IND": "5000",
		"UNRELATED":           "7",
	})

	bundles, err := NewMonthlyTrend(6).Assemble(Input{
		AsOf:       day("2024-07-15"),
		Scenario:   domain.ScenarioConfig{ID: "TS_SCN_12", Name: "Deviation", Focus: domain.FocusAccount},
		Thresholds: thresholds,
		Alerts:     []*domain.Alert{alert},
		Transactions: []domain.Transaction{
			txn("T1", "A1", "C1", 100, "2024-05-10", false),
			txn("T2", "A1", "C1", 50.255, "2024-05-20", false),
			txn("T3", "A1", "C1", 300, "2024-01-15", false),
			txn("T4", "A1", "C1", 400, "2023-11-30", false),
			txn("T5", "A2", "C2", 800, "2024-02-01", false),
			txn("T6", "A1", "C1", 999, "2024-06-10", false),
		},
	})
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	b := bundles[0]
	assert.Equal(t, []domain.MonthlyAmount{
		{Month: "2024-05", Value: 150.26},
		{Month: "2024-04", Value: 0},
		{Month: "2024-03", Value: 0},
		{Month: "2024-02", Value: 0},
		{Month: "2024-01", Value: 300},
		{Month: "2023-12", Value: 0},
	}, b.MonthlySums)

	require.Len(t, b.Rows, 3)
	assert.Equal(t, []string{"T3", "T1", "T2"}, []string{b.Rows[0].TransactionID, b.Rows[1].TransactionID, b.Rows[2].TransactionID})
	assert.Equal(t, "N", field(t, b.Rows[0], domain.KeyAlertFlag))
	assert.Equal(t, "5000", field(t, b.Rows[0], "MIN TRXN AMOUNT IND"))
	_, ok := b.Rows[0].Fields.Get("UNRELATED")
	assert.False(t, ok)
}

func TestMonthlyTrendRequiresLookback(t *testing.T) {
	_, err := NewMonthlyTrend(6).Assemble(Input{
		AsOf:       day("2024-07-15"),
		Thresholds: domain.NewThresholdSet("TS-12", "TS_SCN_12", map[string]string{"MIN TRXN AMOUNT IND": "1"}),
	})
	assert.True(t, domain.IsConfigurationError(err))
}
