package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// Default fetch settings
const (
	DefaultBatchSize = 25000
	DefaultWorkers   = 4
)

// CustomerSource lists the customers whose transactions are monitored
type CustomerSource interface {
	CustomerIDs(ctx context.Context) ([]string, error)
}

// TransactionSource returns the transactions of a batch of customers,
// joined with their reference attributes
type TransactionSource interface {
	TransactionsFor(ctx context.Context, customerIDs []string) ([]domain.Transaction, error)
}

// BatchRecorder observes batch outcomes
type BatchRecorder interface {
	FetchBatch(ok bool)
}

// Report describes one bulk fetch
type Report struct {
	Customers     int
	Batches       int
	Partitions    []string
	FailedBatches []int
	Rows          int
	Duration      time.Duration
}

// Fetcher exports the transaction universe of a run into partitions, one per
// batch of customers, using a bounded worker pool
type Fetcher struct {
	customers    CustomerSource
	transactions TransactionSource
	store        *PartitionStore
	batchSize    int
	workers      int
	maxBatches   int
	metrics      BatchRecorder
	log          *logger.Logger
}

// NewFetcher creates a bulk fetcher. maxBatches caps how many batches are
// exported; 0 exports everything.
func NewFetcher(
	customers CustomerSource,
	transactions TransactionSource,
	store *PartitionStore,
	batchSize, workers, maxBatches int,
	metrics BatchRecorder,
	log *logger.Logger,
) *Fetcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Fetcher{
		customers:    customers,
		transactions: transactions,
		store:        store,
		batchSize:    batchSize,
		workers:      workers,
		maxBatches:   maxBatches,
		metrics:      metrics,
		log:          log.Named("fetcher"),
	}
}

// Batches splits ids into consecutive chunks of at most size
func Batches(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// Fetch replaces the partitions of the previous run. A failed batch is logged
// and skipped; the fetch fails only when there are no customers or every
// batch failed.
func (f *Fetcher) Fetch(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	ids, err := f.customers.CustomerIDs(ctx)
	if err != nil {
		return report, domain.NewIntegrationError("CUSTOMERS_UNAVAILABLE", "failed to list customer ids").WithCause(err)
	}
	if len(ids) == 0 {
		return report, domain.NewDataUnavailableError("CUSTOMERS_MISSING", "no customer ids to monitor")
	}
	report.Customers = len(ids)

	if err := f.store.Clear(); err != nil {
		return report, err
	}

	batches := Batches(ids, f.batchSize)
	if f.maxBatches > 0 && len(batches) > f.maxBatches {
		batches = batches[:f.maxBatches]
	}
	report.Batches = len(batches)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			name, rows, err := f.fetchBatch(gctx, i, batch)

			mu.Lock()
			defer mu.Unlock()
			if f.metrics != nil {
				f.metrics.FetchBatch(err == nil)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.log.BatchFetchFailed(i, len(batch), err)
				report.FailedBatches = append(report.FailedBatches, i)
				return nil
			}
			if name != "" {
				report.Partitions = append(report.Partitions, name)
				report.Rows += rows
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Ints(report.FailedBatches)
	sort.Slice(report.Partitions, func(i, j int) bool {
		return partitionIndex(report.Partitions[i]) < partitionIndex(report.Partitions[j])
	})
	report.Duration = time.Since(start)

	if len(report.FailedBatches) == len(batches) {
		return report, domain.NewIntegrationError("FETCH_FAILED",
			fmt.Sprintf("all %d transaction batches failed", len(batches)))
	}

	f.log.Info("bulk fetch completed",
		zap.Int("customers", report.Customers),
		zap.Int("batches", report.Batches),
		zap.Int("partitions", len(report.Partitions)),
		zap.Int("failed_batches", len(report.FailedBatches)),
		zap.Int("rows", report.Rows),
		logger.DurationField("duration", report.Duration),
	)
	return report, nil
}

func (f *Fetcher) fetchBatch(ctx context.Context, i int, customerIDs []string) (string, int, error) {
	txs, err := f.transactions.TransactionsFor(ctx, customerIDs)
	if err != nil {
		return "", 0, err
	}
	if len(txs) == 0 {
		return "", 0, nil
	}
	name, err := f.store.Write(ctx, i, txs)
	if err != nil {
		return "", 0, err
	}
	return name, len(txs), nil
}

func partitionIndex(name string) int {
	var i int
	fmt.Sscanf(name, "trxn_data_chunk_%d.parquet", &i)
	return i
}
