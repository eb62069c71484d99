package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
	"github.com/banking/txn-monitoring-service/internal/scenario"
)

// DefaultChunkSize is the number of alerts inserted per batch round trip
const DefaultChunkSize = 500

const insertAlertSQL = `
	INSERT INTO ts_alert (
		transient_id, scenario_id, scenario_nm, job_id, acct_ids, cust_ids, cust_nm,
		status_cd, alert_type_id, config_id, threshold_set_id, period_start, period_end,
		aggregate_amt, attributes, thresholds, alert_score, threshold_score, alert_priority,
		prev_match_ct, prev_match_ct_all, created_date
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	RETURNING alert_id
`

// Sink writes alerts, their memberships, entity mappings, evidence and
// auto-closure investigations
type Sink struct {
	db        *pgxpool.Pool
	chunkSize int
	log       *logger.Logger
}

// NewSink creates a persistence sink
func NewSink(db *pgxpool.Pool, chunkSize int, log *logger.Logger) *Sink {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Sink{db: db, chunkSize: chunkSize, log: log.Named("sink")}
}

// chunks splits n items into [start, end) ranges of at most size
func chunks(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// alertStatus is the initial workflow status of a persisted alert
func alertStatus(a *domain.Alert) domain.AlertStatus {
	if a.IsAutoClosed() {
		return domain.AlertStatusClosed
	}
	return domain.AlertStatusNew
}

func alertArgs(a *domain.Alert) ([]any, error) {
	attrs, err := json.Marshal(a.Attributes)
	if err != nil {
		return nil, fmt.Errorf("alert %s attributes: %w", a.ID, err)
	}
	thresholds, err := json.Marshal(a.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("alert %s thresholds: %w", a.ID, err)
	}

	var composite, threshold *float64
	var priority *string
	if a.Score != nil {
		composite = &a.Score.Composite
		threshold = &a.Score.Threshold
		p := string(a.Score.Priority)
		priority = &p
	}

	return []any{
		a.ID, a.ScenarioID, a.ScenarioName, a.JobID, a.JoinedAccountIDs(), a.JoinedCustomerIDs(), a.CustomerName,
		string(alertStatus(a)), a.AlertTypeID, a.ConfigID, a.ThresholdSetID, a.PeriodStart, a.PeriodEnd,
		a.AggregateAmount, attrs, thresholds, composite, threshold, priority,
		a.PrevMatchCount, a.PrevMatchCountScenario, a.CreatedDate,
	}, nil
}

// Persist writes one partition's results in a single transaction and returns
// the durable id of every alert
func (s *Sink) Persist(ctx context.Context, r scenario.Result) (map[string]int64, error) {
	if len(r.Alerts) == 0 {
		return map[string]int64{}, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, domain.NewIntegrationError("PERSIST_FAILED", "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback(ctx)

	ids := make(map[string]int64, len(r.Alerts))
	for _, c := range chunks(len(r.Alerts), s.chunkSize) {
		if err := s.insertAlerts(ctx, tx, r.Alerts[c[0]:c[1]], ids); err != nil {
			return nil, err
		}
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"ts_alert_trxn"},
		[]string{"alert_id", "trxn_id"},
		pgx.CopyFromSlice(len(r.Memberships), func(i int) ([]any, error) {
			m := r.Memberships[i]
			return []any{ids[m.AlertID], m.TransactionID}, nil
		}),
	); err != nil {
		return nil, domain.NewIntegrationError("PERSIST_FAILED", "failed to write alert transactions").WithCause(err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"ts_alert_entity"},
		[]string{"alert_id", "acct_id", "cust_id"},
		pgx.CopyFromSlice(len(r.Entities), func(i int) ([]any, error) {
			e := r.Entities[i]
			return []any{ids[e.AlertID], e.AccountID, e.CustomerID}, nil
		}),
	); err != nil {
		return nil, domain.NewIntegrationError("PERSIST_FAILED", "failed to write alert entities").WithCause(err)
	}

	if len(r.Evidence) > 0 {
		batch := &pgx.Batch{}
		for _, b := range r.Evidence {
			payload, err := json.Marshal(b)
			if err != nil {
				return nil, domain.NewComputationError("EVIDENCE_ENCODE", "failed to encode evidence").WithCause(err)
			}
			batch.Queue(`INSERT INTO ts_alert_evidence (alert_id, evidence) VALUES ($1, $2)`, ids[b.AlertID], payload)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, domain.NewIntegrationError("PERSIST_FAILED", "failed to write evidence").WithCause(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.NewIntegrationError("PERSIST_FAILED", "failed to commit alerts").WithCause(err)
	}

	s.log.Debug("alerts persisted",
		zap.String("scenario_id", r.Scenario.ID),
		zap.Int("alerts", len(r.Alerts)),
		zap.Int("memberships", len(r.Memberships)),
	)
	return ids, nil
}

func (s *Sink) insertAlerts(ctx context.Context, tx pgx.Tx, alerts []*domain.Alert, ids map[string]int64) error {
	batch := &pgx.Batch{}
	for _, a := range alerts {
		args, err := alertArgs(a)
		if err != nil {
			return domain.NewComputationError("ALERT_ENCODE", "failed to encode alert").WithCause(err)
		}
		batch.Queue(insertAlertSQL, args...)
	}

	br := tx.SendBatch(ctx, batch)
	for _, a := range alerts {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			br.Close()
			return domain.NewIntegrationError("PERSIST_FAILED",
				fmt.Sprintf("failed to insert alert %s", a.ID)).WithCause(err)
		}
		ids[a.ID] = id
	}
	if err := br.Close(); err != nil {
		return domain.NewIntegrationError("PERSIST_FAILED", "failed to insert alerts").WithCause(err)
	}
	return nil
}

// SaveInvestigations writes the investigation records of auto-closed alerts
func (s *Sink) SaveInvestigations(ctx context.Context, investigations []*domain.Investigation) error {
	if len(investigations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, inv := range investigations {
		batch.Queue(`
			INSERT INTO ts_investigation (
				id, alert_id, status_cd, auto_reasn_fl, narrative, alert_score, alert_priority,
				created_date, due_date, last_modified_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, inv.ID, inv.AlertID, inv.StatusCode, inv.AutoReason, inv.Narrative, inv.Score,
			string(inv.Priority), inv.CreatedDate, inv.DueDate, inv.LastModifiedBy)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return domain.NewIntegrationError("INVESTIGATION_PERSIST_FAILED", "failed to write investigations").WithCause(err)
	}

	s.log.Info("auto-closure investigations saved", zap.Int("count", len(investigations)))
	return nil
}
