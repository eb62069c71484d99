package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

func TestExpandEntities(t *testing.T) {
	tests := []struct {
		name      string
		accounts  []string
		customers []string
		want      []domain.AlertEntity
		wantErr   bool
	}{
		{
			name:      "pairs in order",
			accounts:  []string{"A1", "A2"},
			customers: []string{"C1", "C2"},
			want: []domain.AlertEntity{
				{AlertID: "1", AccountID: "A1", CustomerID: "C1"},
				{AlertID: "1", AccountID: "A2", CustomerID: "C2"},
			},
		},
		{
			name:      "one customer many accounts",
			accounts:  []string{"A1, A2", "A3"},
			customers: []string{"C1"},
			want: []domain.AlertEntity{
				{AlertID: "1", AccountID: "A1", CustomerID: "C1"},
				{AlertID: "1", AccountID: "A2", CustomerID: "C1"},
				{AlertID: "1", AccountID: "A3", CustomerID: "C1"},
			},
		},
		{
			name:      "one account many customers",
			accounts:  []string{"A1"},
			customers: []string{"C1", "C2"},
			want: []domain.AlertEntity{
				{AlertID: "1", AccountID: "A1", CustomerID: "C1"},
				{AlertID: "1", AccountID: "A1", CustomerID: "C2"},
			},
		},
		{
			name:      "unmappable",
			accounts:  []string{"A1", "A2"},
			customers: []string{"C1", "C2", "C3"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEntities([]*domain.Alert{{ID: "1", AccountIDs: tt.accounts, CustomerIDs: tt.customers}})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsComputationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemberships(t *testing.T) {
	got := Memberships([]*domain.Alert{
		{ID: "1", TransactionIDs: []string{"t1", "t2"}},
		{ID: "2", TransactionIDs: []string{"t3"}},
	})
	assert.Equal(t, []domain.AlertTransaction{
		{AlertID: "1", TransactionID: "t1"},
		{AlertID: "1", TransactionID: "t2"},
		{AlertID: "2", TransactionID: "t3"},
	}, got)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(testPipeline())

	for _, id := range []string{"TS_SCN_01", "ts_scn_12", "TS_SCN_29"} {
		e, err := r.Lookup(id)
		require.NoError(t, err, id)
		assert.NotNil(t, e.Detector)
		assert.NotNil(t, e.Assembler)
	}

	_, err := r.Lookup("TS_SCN_77")
	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
}
