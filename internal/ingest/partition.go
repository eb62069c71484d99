package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

var (
	partitionPattern = regexp.MustCompile(`^trxn_data_chunk_(\d+)\.parquet$`)
	// partitionFilePattern also matches unfinished writes
	partitionFilePattern = regexp.MustCompile(`^trxn_data_chunk_\d+\.parquet(\.tmp)?$`)
)

const tmpSuffix = ".tmp"

// PartitionName returns the file name of partition i
func PartitionName(i int) string {
	return fmt.Sprintf("trxn_data_chunk_%d.parquet", i)
}

// TransactionRow is the parquet layout of one transaction with its owner's
// reference attributes. Dates are unix milliseconds, 0 when unknown.
type TransactionRow struct {
	ID            string  `parquet:"name=trxn_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountID     string  `parquet:"name=acct_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CustomerID    string  `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount        float64 `parquet:"name=trxn_amount, type=DOUBLE"`
	ExecutionDate int64   `parquet:"name=trxn_excn_dt, type=INT64"`
	PostingDate   int64   `parquet:"name=trxn_post_dt, type=INT64"`
	TypeCode      string  `parquet:"name=trxn_type_cd, type=BYTE_ARRAY, convertedtype=UTF8"`
	Channel       string  `parquet:"name=channel, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreditDebit   string  `parquet:"name=credit_debit_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	PartyName     string  `parquet:"name=party_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	PartyCountry  string  `parquet:"name=party_country, type=BYTE_ARRAY, convertedtype=UTF8"`
	PartyInternal bool    `parquet:"name=party_internal, type=BOOLEAN"`
	CrossBorder   bool    `parquet:"name=cross_border, type=BOOLEAN"`
	HighRisk      bool    `parquet:"name=highrisk_flag, type=BOOLEAN"`

	DisplayName            string `parquet:"name=display_nm, type=BYTE_ARRAY, convertedtype=UTF8"`
	CustomerType           string `parquet:"name=customer_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	RiskTier               string `parquet:"name=risk_level, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountType            string `parquet:"name=acct_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	CountryOfResidence     string `parquet:"name=cntry_of_residence, type=BYTE_ARRAY, convertedtype=UTF8"`
	CountryOfIncorporation string `parquet:"name=cntry_of_incorporation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Citizenship            string `parquet:"name=citizenship, type=BYTE_ARRAY, convertedtype=UTF8"`
	IsPEP                  bool   `parquet:"name=is_pep, type=BOOLEAN"`
	AccountOpenDate        int64  `parquet:"name=acct_open_dt, type=INT64"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// NewTransactionRow flattens a transaction for storage
func NewTransactionRow(tx domain.Transaction) TransactionRow {
	return TransactionRow{
		ID:                     tx.ID,
		AccountID:              tx.AccountID,
		CustomerID:             tx.CustomerID,
		Amount:                 tx.Amount,
		ExecutionDate:          toMillis(tx.ExecutionDate),
		PostingDate:            toMillis(tx.PostingDate),
		TypeCode:               tx.TypeCode,
		Channel:                tx.Channel,
		CreditDebit:            tx.CreditDebit,
		PartyName:              tx.Counterparty.Name,
		PartyCountry:           tx.Counterparty.Country,
		PartyInternal:          tx.Counterparty.Internal,
		CrossBorder:            tx.CrossBorder,
		HighRisk:               tx.HighRisk,
		DisplayName:            tx.Owner.DisplayName,
		CustomerType:           string(tx.Owner.CustomerType),
		RiskTier:               string(tx.Owner.RiskTier),
		AccountType:            tx.Owner.AccountType,
		CountryOfResidence:     tx.Owner.CountryOfResidence,
		CountryOfIncorporation: tx.Owner.CountryOfIncorporation,
		Citizenship:            tx.Owner.Citizenship,
		IsPEP:                  tx.Owner.IsPEP,
		AccountOpenDate:        toMillis(tx.Owner.AccountOpenDate),
	}
}

// Transaction rebuilds the domain transaction
func (r TransactionRow) Transaction() domain.Transaction {
	return domain.Transaction{
		ID:            r.ID,
		AccountID:     r.AccountID,
		CustomerID:    r.CustomerID,
		Amount:        r.Amount,
		ExecutionDate: fromMillis(r.ExecutionDate),
		PostingDate:   fromMillis(r.PostingDate),
		TypeCode:      r.TypeCode,
		Channel:       r.Channel,
		CreditDebit:   r.CreditDebit,
		Counterparty: domain.Counterparty{
			Name:     r.PartyName,
			Country:  r.PartyCountry,
			Internal: r.PartyInternal,
		},
		CrossBorder: r.CrossBorder,
		HighRisk:    r.HighRisk,
		Owner: domain.Entity{
			DisplayName:            r.DisplayName,
			CustomerType:           domain.CustomerType(r.CustomerType),
			RiskTier:               domain.RiskTier(r.RiskTier),
			AccountType:            r.AccountType,
			CountryOfResidence:     r.CountryOfResidence,
			CountryOfIncorporation: r.CountryOfIncorporation,
			Citizenship:            r.Citizenship,
			IsPEP:                  r.IsPEP,
			AccountOpenDate:        fromMillis(r.AccountOpenDate),
		},
	}
}

// PartitionStore keeps transaction partitions as parquet files in one directory
type PartitionStore struct {
	dir    string
	create func(path string) (source.ParquetFile, error)
	log    *logger.Logger
}

// NewPartitionStore creates a store rooted at dir
func NewPartitionStore(dir string, log *logger.Logger) *PartitionStore {
	return &PartitionStore{dir: dir, create: local.NewLocalFileWriter, log: log.Named("partitions")}
}

// Dir returns the partition directory
func (s *PartitionStore) Dir() string {
	return s.dir
}

// Write stores txs as partition i, replacing any previous file. The rows go
// to a temporary file that is renamed into place only once fully written, so
// a failed write never leaves a partition behind for Partitions to list.
func (s *PartitionStore) Write(ctx context.Context, i int, txs []domain.Transaction) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create partition dir: %w", err)
	}
	name := PartitionName(i)
	path := filepath.Join(s.dir, name)
	tmp := path + tmpSuffix

	fw, err := s.create(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}

	if err := s.encode(ctx, fw, name, txs); err != nil {
		_ = fw.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := fw.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to publish %s: %w", name, err)
	}
	return name, nil
}

func (s *PartitionStore) encode(ctx context.Context, fw source.ParquetFile, name string, txs []domain.Transaction) error {
	pw, err := writer.NewParquetWriter(fw, new(TransactionRow), 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := NewTransactionRow(tx)
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", name, err)
	}
	return nil
}

type indexedName struct {
	index int
	name  string
}

// Partitions lists the partition files in index order
func (s *PartitionStore) Partitions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewDataUnavailableError("PARTITIONS_MISSING",
				fmt.Sprintf("partition dir %s does not exist", s.dir))
		}
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	var found []indexedName
	for _, e := range entries {
		m := partitionPattern.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		i, _ := strconv.Atoi(m[1])
		found = append(found, indexedName{index: i, name: e.Name()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names, nil
}

// Load reads one partition back into transactions
func (s *PartitionStore) Load(ctx context.Context, name string) ([]domain.Transaction, error) {
	start := time.Now()
	path := filepath.Join(s.dir, filepath.Base(name))

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(TransactionRow), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]TransactionRow, n)
	if n > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
	}

	txs := make([]domain.Transaction, len(rows))
	for i, r := range rows {
		txs[i] = r.Transaction()
	}
	s.log.PartitionLoaded(name, len(txs), time.Since(start).Milliseconds())
	return txs, ctx.Err()
}

// Clear removes every partition file left by a previous run, including
// unfinished temporary files
func (s *PartitionStore) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list partitions: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !partitionFilePattern.MatchString(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
