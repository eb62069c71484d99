package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// TransactionStore is the bulk transaction provider backing the fetcher
type TransactionStore struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewTransactionStore creates a transaction store
func NewTransactionStore(db *pgxpool.Pool, log *logger.Logger) *TransactionStore {
	return &TransactionStore{db: db, log: log.Named("transaction_store")}
}

// CustomerIDs lists every monitored customer in id order
func (s *TransactionStore) CustomerIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT cust_id FROM ts_cust ORDER BY cust_id`)
	if err != nil {
		return nil, domain.NewIntegrationError("CUSTOMER_QUERY_FAILED", "failed to list customers").WithCause(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewIntegrationError("CUSTOMER_QUERY_FAILED", "failed to scan customer").WithCause(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewIntegrationError("CUSTOMER_QUERY_FAILED", "failed to read customers").WithCause(err)
	}
	return ids, nil
}

// TransactionsFor returns the transactions of the given customers joined with
// their account and customer reference attributes
func (s *TransactionStore) TransactionsFor(ctx context.Context, customerIDs []string) ([]domain.Transaction, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	start := time.Now()

	rows, err := s.db.Query(ctx, `
		SELECT t.trxn_id, t.acct_id, c.cust_id, t.trxn_amt::float8, t.trxn_excn_dt, t.trxn_post_dt,
		       t.trxn_type_cd, COALESCE(t.channel, ''), COALESCE(t.cr_dr_cd, ''),
		       COALESCE(t.party_nm, ''), COALESCE(t.party_cntry_cd, ''), t.internal_fl, t.cross_border_fl,
		       COALESCE(pc.high_risk_fl, FALSE),
		       c.display_nm, c.cust_type, c.risk_tier, COALESCE(a.acct_type, ''),
		       COALESCE(c.cntry_residence, ''), COALESCE(c.cntry_citizenship, ''),
		       COALESCE(c.cntry_incorporation, ''), c.pep_fl, a.acct_open_dt
		FROM ts_trxn t
		JOIN ts_acct a ON a.acct_id = t.acct_id
		JOIN ts_cust c ON c.cust_id = a.cust_id
		LEFT JOIN ts_country pc ON pc.cntry_cd = t.party_cntry_cd
		WHERE c.cust_id = ANY($1)
		ORDER BY t.trxn_excn_dt, t.trxn_id
	`, customerIDs)
	if err != nil {
		return nil, domain.NewIntegrationError("TRANSACTION_QUERY_FAILED", "failed to load transactions").WithCause(err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var postDate, openDate *time.Time
		var custType, riskTier string
		if err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.CustomerID, &tx.Amount, &tx.ExecutionDate, &postDate,
			&tx.TypeCode, &tx.Channel, &tx.CreditDebit,
			&tx.Counterparty.Name, &tx.Counterparty.Country, &tx.Counterparty.Internal, &tx.CrossBorder,
			&tx.HighRisk,
			&tx.Owner.DisplayName, &custType, &riskTier, &tx.Owner.AccountType,
			&tx.Owner.CountryOfResidence, &tx.Owner.Citizenship,
			&tx.Owner.CountryOfIncorporation, &tx.Owner.IsPEP, &openDate,
		); err != nil {
			return nil, domain.NewIntegrationError("TRANSACTION_QUERY_FAILED", "failed to scan transaction").WithCause(err)
		}
		if postDate != nil {
			tx.PostingDate = *postDate
		}
		if openDate != nil {
			tx.Owner.AccountOpenDate = *openDate
		}
		tx.Owner.CustomerType = domain.CustomerType(custType)
		tx.Owner.RiskTier = domain.RiskTier(riskTier)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewIntegrationError("TRANSACTION_QUERY_FAILED", "failed to read transactions").WithCause(err)
	}

	s.log.Debug("transactions loaded",
		zap.Int("customers", len(customerIDs)),
		zap.Int("rows", len(out)),
		logger.DurationField("duration", time.Since(start)),
	)
	return out, nil
}
