package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"go.uber.org/zap/zaptest"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	return logger.NewFromZap(zaptest.NewLogger(t), "test")
}

func sampleTxn(id, cust string, amount float64) domain.Transaction {
	return domain.Transaction{
		ID:            id,
		AccountID:     "A-" + cust,
		CustomerID:    cust,
		Amount:        amount,
		ExecutionDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		TypeCode:      "WIRE",
		Channel:       "ONLINE",
		CreditDebit:   "D",
		Counterparty:  domain.Counterparty{Name: "Acme", Country: "Iran"},
		CrossBorder:   true,
		HighRisk:      true,
		Owner: domain.Entity{
			DisplayName:        "Jane Roe",
			CustomerType:       domain.CustomerTypeIndividual,
			RiskTier:           domain.RiskTierHigh,
			CountryOfResidence: "France",
			AccountOpenDate:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestPartitionRoundTrip(t *testing.T) {
	store := NewPartitionStore(t.TempDir(), testLogger(t))
	ctx := context.Background()
	in := []domain.Transaction{sampleTxn("T1", "C1", 100.25), sampleTxn("T2", "C2", 50)}

	name, err := store.Write(ctx, 3, in)
	require.NoError(t, err)
	assert.Equal(t, "trxn_data_chunk_3.parquet", name)

	out, err := store.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPartitionsInIndexOrder(t *testing.T) {
	dir := t.TempDir()
	store := NewPartitionStore(dir, testLogger(t))
	ctx := context.Background()

	for _, i := range []int{10, 2, 1} {
		_, err := store.Write(ctx, i, []domain.Transaction{sampleTxn("T1", "C1", 1)})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	stale := filepath.Join(dir, "trxn_data_chunk_4.parquet.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("PAR1"), 0o644))

	names, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"trxn_data_chunk_1.parquet",
		"trxn_data_chunk_2.parquet",
		"trxn_data_chunk_10.parquet",
	}, names)

	require.NoError(t, store.Clear())
	names, err = store.Partitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

// brokenFile wraps a real file and fails writes or close on demand
type brokenFile struct {
	source.ParquetFile
	failWrite bool
	failClose bool
}

func (b *brokenFile) Write(p []byte) (int, error) {
	if b.failWrite {
		return 0, errors.New("disk full")
	}
	return b.ParquetFile.Write(p)
}

func (b *brokenFile) Close() error {
	err := b.ParquetFile.Close()
	if b.failClose {
		return errors.New("flush failed")
	}
	return err
}

func brokenCreate(failWrite, failClose func(path string) bool) func(string) (source.ParquetFile, error) {
	return func(path string) (source.ParquetFile, error) {
		fw, err := local.NewLocalFileWriter(path)
		if err != nil {
			return nil, err
		}
		return &brokenFile{ParquetFile: fw, failWrite: failWrite(path), failClose: failClose(path)}, nil
	}
}

func always(string) bool { return true }
func never(string) bool  { return false }

func assertNoPartitionFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPartitionWriteFailureLeavesNoFile(t *testing.T) {
	ctx := context.Background()
	in := []domain.Transaction{sampleTxn("T1", "C1", 1)}

	t.Run("write error", func(t *testing.T) {
		dir := t.TempDir()
		store := NewPartitionStore(dir, testLogger(t))
		store.create = brokenCreate(always, never)

		_, err := store.Write(ctx, 0, in)
		require.Error(t, err)
		assertNoPartitionFiles(t, dir)
	})

	t.Run("close error", func(t *testing.T) {
		dir := t.TempDir()
		store := NewPartitionStore(dir, testLogger(t))
		store.create = brokenCreate(never, always)

		_, err := store.Write(ctx, 0, in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close trxn_data_chunk_0.parquet")
		assertNoPartitionFiles(t, dir)
	})

	t.Run("cancelled", func(t *testing.T) {
		dir := t.TempDir()
		store := NewPartitionStore(dir, testLogger(t))
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Write(cancelled, 0, in)
		require.ErrorIs(t, err, context.Canceled)
		assertNoPartitionFiles(t, dir)
	})
}

func TestPartitionsMissingDir(t *testing.T) {
	store := NewPartitionStore(filepath.Join(t.TempDir(), "absent"), testLogger(t))

	_, err := store.Partitions(context.Background())
	assert.True(t, domain.IsDataUnavailableError(err))
	assert.NoError(t, store.Clear())
}

func TestBatches(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, Batches(ids, 2))
	assert.Equal(t, [][]string{ids}, Batches(ids, 10))
	assert.Empty(t, Batches(nil, 2))
}

type staticCustomers struct {
	ids []string
	err error
}

func (s staticCustomers) CustomerIDs(context.Context) ([]string, error) {
	return s.ids, s.err
}

type fakeTransactions struct {
	failFor map[string]bool
}

func (f fakeTransactions) TransactionsFor(_ context.Context, ids []string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, id := range ids {
		if f.failFor[id] {
			return nil, errors.New("warehouse timeout")
		}
		out = append(out, sampleTxn("T-"+id, id, 10))
	}
	return out, nil
}

type countingRecorder struct {
	ok, failed int
}

func (c *countingRecorder) FetchBatch(ok bool) {
	if ok {
		c.ok++
		return
	}
	c.failed++
}

func TestFetcherToleratesFailedBatch(t *testing.T) {
	store := NewPartitionStore(t.TempDir(), testLogger(t))
	rec := &countingRecorder{}
	f := NewFetcher(
		staticCustomers{ids: []string{"C1", "C2", "C3", "C4", "C5"}},
		fakeTransactions{failFor: map[string]bool{"C3": true}},
		store, 2, 2, 0, rec, testLogger(t),
	)

	report, err := f.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Customers)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, []int{1}, report.FailedBatches)
	assert.Equal(t, []string{"trxn_data_chunk_0.parquet", "trxn_data_chunk_2.parquet"}, report.Partitions)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 2, rec.ok)
	assert.Equal(t, 1, rec.failed)

	names, err := store.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Partitions, names)
}

func TestFetcherSkipsPartitionThatFailsToWrite(t *testing.T) {
	dir := t.TempDir()
	store := NewPartitionStore(dir, testLogger(t))
	store.create = brokenCreate(func(path string) bool {
		return filepath.Base(path) == "trxn_data_chunk_1.parquet.tmp"
	}, never)
	f := NewFetcher(
		staticCustomers{ids: []string{"C1", "C2", "C3", "C4", "C5"}},
		fakeTransactions{}, store, 2, 2, 0, nil, testLogger(t),
	)

	report, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, report.FailedBatches)
	assert.Equal(t, []string{"trxn_data_chunk_0.parquet", "trxn_data_chunk_2.parquet"}, report.Partitions)

	names, err := store.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Partitions, names)

	_, err = os.Stat(filepath.Join(dir, "trxn_data_chunk_1.parquet.tmp"))
	assert.True(t, os.IsNotExist(err))

	for _, name := range names {
		_, err := store.Load(context.Background(), name)
		assert.NoError(t, err)
	}
}

func TestFetcherMaxBatches(t *testing.T) {
	store := NewPartitionStore(t.TempDir(), testLogger(t))
	f := NewFetcher(
		staticCustomers{ids: []string{"C1", "C2", "C3", "C4", "C5"}},
		fakeTransactions{}, store, 2, 4, 2, nil, testLogger(t),
	)

	report, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Batches)
	assert.Len(t, report.Partitions, 2)
}

func TestFetcherFailures(t *testing.T) {
	store := NewPartitionStore(t.TempDir(), testLogger(t))

	_, err := NewFetcher(staticCustomers{}, fakeTransactions{}, store, 2, 2, 0, nil, testLogger(t)).
		Fetch(context.Background())
	assert.True(t, domain.IsDataUnavailableError(err))

	_, err = NewFetcher(staticCustomers{err: errors.New("db down")}, fakeTransactions{}, store, 2, 2, 0, nil, testLogger(t)).
		Fetch(context.Background())
	assert.True(t, domain.IsIntegrationError(err))

	_, err = NewFetcher(
		staticCustomers{ids: []string{"C1", "C2"}},
		fakeTransactions{failFor: map[string]bool{"C1": true, "C2": true}},
		store, 1, 2, 0, nil, testLogger(t),
	).Fetch(context.Background())
	assert.True(t, domain.IsIntegrationError(err))
}
