package postgres

import (
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/txn?sslmode=disable", migrateURL("postgres://u:p@db:5432/txn?sslmode=disable"))
	assert.Equal(t, "pgx5://u:p@db/txn", migrateURL("postgresql://u:p@db/txn"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	up, ident, err := src.ReadUp(version)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "init_schema", ident)

	down, _, err := src.ReadDown(version)
	require.NoError(t, err)
	down.Close()
}

func TestLowestSetID(t *testing.T) {
	assert.True(t, setIDLess("9", "10"))
	assert.False(t, setIDLess("10", "9"))
	assert.True(t, setIDLess("42", "TS-A"))
	assert.True(t, setIDLess("TS-A", "TS-B"))

	id, ok := lowestSetID(map[string]map[string]string{
		"10": {"LOOKBACK PERIOD": "30"},
		"9":  {"LOOKBACK PERIOD": "60"},
		"2":  {},
	})
	require.True(t, ok)
	assert.Equal(t, "9", id)

	_, ok = lowestSetID(nil)
	assert.False(t, ok)
}

func TestChunks(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}, {4, 5}}, chunks(5, 2))
	assert.Equal(t, [][2]int{{0, 3}}, chunks(3, 500))
	assert.Empty(t, chunks(0, 10))
}

func TestApplyConfigRows(t *testing.T) {
	cfg := domain.ScenarioConfig{ID: "TS_SCN_01"}
	applyConfigRows(&cfg, []configRow{
		{id: 11, typeCD: ConfigTypeFilter, expr: `trxn.amount > 0`},
		{id: 12, typeCD: ConfigTypeDisplay, expr: domain.KeyTotalHRGAmount},
		{id: 13, typeCD: ConfigTypeFilter, expr: `trxn.high_risk`},
		{id: 14, typeCD: "THRESHOLD", expr: "ignored"},
	})

	assert.Equal(t, 11, cfg.ConfigID)
	assert.Equal(t, []string{`trxn.amount > 0`, `trxn.high_risk`}, cfg.Filters)
	assert.Equal(t, []string{domain.KeyTotalHRGAmount}, cfg.DisplayAttributes)
}

func TestFocusColumn(t *testing.T) {
	assert.Equal(t, "acct_id", focusColumn(domain.FocusAccount))
	assert.Equal(t, "cust_id", focusColumn(domain.FocusCustomer))
}

func TestAlertArgs(t *testing.T) {
	attrs := domain.NewAttrs()
	attrs.Set(domain.KeyTotalTrxnAmount, domain.Number(1500.5))
	created := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	a := &domain.Alert{
		ID:          "1000001",
		ScenarioID:  "TS_SCN_12",
		AccountIDs:  []string{"A1", "A2"},
		CustomerIDs: []string{"C1"},
		CreatedDate: created,
		Attributes:  attrs,
		Thresholds:  map[string]string{"LOOKBACK PERIOD": "1"},
	}

	args, err := alertArgs(a)
	require.NoError(t, err)
	require.Len(t, args, 22)
	assert.Equal(t, "A1, A2", args[4])
	assert.Equal(t, "NEW", args[7])
	assert.JSONEq(t, `{"TOTAL TRXN AMOUNT":1500.5}`, string(args[14].([]byte)))
	assert.Nil(t, args[16].(*float64))
	assert.Equal(t, created, args[21])

	a.Score = &domain.AlertScore{Composite: 12.5, AutoClose: true, Priority: domain.PriorityAutoClosure}
	args, err = alertArgs(a)
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", args[7])
	assert.Equal(t, 12.5, *args[16].(*float64))
	assert.Equal(t, "Recommended Autoclosure", *args[18].(*string))
}
