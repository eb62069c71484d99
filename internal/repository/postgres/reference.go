package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// Scenario config row types
const (
	ConfigTypeFilter  = "FILTER"
	ConfigTypeDisplay = "DISPLAY"
)

// ReferenceStore reads scenario reference data and alert history
type ReferenceStore struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewReferenceStore creates a reference store
func NewReferenceStore(db *pgxpool.Pool, log *logger.Logger) *ReferenceStore {
	return &ReferenceStore{db: db, log: log.Named("reference_store")}
}

type configRow struct {
	id     int
	typeCD string
	expr   string
}

// applyConfigRows folds the FILTER and DISPLAY rows of a scenario into cfg.
// The first filter row's id is the config lineage id.
func applyConfigRows(cfg *domain.ScenarioConfig, rows []configRow) {
	for _, r := range rows {
		switch r.typeCD {
		case ConfigTypeFilter:
			if cfg.ConfigID == 0 {
				cfg.ConfigID = r.id
			}
			cfg.Filters = append(cfg.Filters, r.expr)
		case ConfigTypeDisplay:
			cfg.DisplayAttributes = append(cfg.DisplayAttributes, r.expr)
		}
	}
}

// ScenarioConfig loads the configuration of an active scenario
func (s *ReferenceStore) ScenarioConfig(ctx context.Context, scenarioID string) (domain.ScenarioConfig, error) {
	var cfg domain.ScenarioConfig
	var focus string
	err := s.db.QueryRow(ctx, `
		SELECT scenario_id, scenario_nm, alert_type_id, scenario_focus, threshold_level_fl
		FROM ts_scenario
		WHERE scenario_id = $1 AND active
	`, scenarioID).Scan(&cfg.ID, &cfg.Name, &cfg.AlertTypeID, &focus, &cfg.ThresholdLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cfg, domain.NewDataUnavailableError("SCENARIO_NOT_FOUND",
				fmt.Sprintf("scenario %s not found or inactive", scenarioID))
		}
		return cfg, domain.NewIntegrationError("SCENARIO_QUERY_FAILED", "failed to load scenario").WithCause(err)
	}
	cfg.Focus = domain.ScenarioFocus(focus)

	rows, err := s.db.Query(ctx, `
		SELECT config_id, config_type_cd, expr_tx
		FROM ts_scn_config
		WHERE scenario_id = $1 AND active
		ORDER BY config_id
	`, scenarioID)
	if err != nil {
		return cfg, domain.NewIntegrationError("SCENARIO_QUERY_FAILED", "failed to load scenario config").WithCause(err)
	}
	defer rows.Close()

	var configs []configRow
	for rows.Next() {
		var r configRow
		if err := rows.Scan(&r.id, &r.typeCD, &r.expr); err != nil {
			return cfg, domain.NewIntegrationError("SCENARIO_QUERY_FAILED", "failed to scan scenario config").WithCause(err)
		}
		configs = append(configs, r)
	}
	if err := rows.Err(); err != nil {
		return cfg, domain.NewIntegrationError("SCENARIO_QUERY_FAILED", "failed to read scenario config").WithCause(err)
	}

	applyConfigRows(&cfg, configs)
	return cfg, nil
}

// Thresholds loads the active threshold set of a scenario. When several sets
// are active the lowest set id wins, see setIDLess.
func (s *ReferenceStore) Thresholds(ctx context.Context, scenarioID string) (domain.ThresholdSet, error) {
	rows, err := s.db.Query(ctx, `
		SELECT threshold_set_id, dply_nm, threshold_value
		FROM ts_threshold
		WHERE scenario_id = $1 AND active
		ORDER BY threshold_set_id, dply_nm
	`, scenarioID)
	if err != nil {
		return domain.ThresholdSet{}, domain.NewIntegrationError("THRESHOLD_QUERY_FAILED", "failed to load thresholds").WithCause(err)
	}
	defer rows.Close()

	sets := make(map[string]map[string]string)
	for rows.Next() {
		var id, name, value string
		if err := rows.Scan(&id, &name, &value); err != nil {
			return domain.ThresholdSet{}, domain.NewIntegrationError("THRESHOLD_QUERY_FAILED", "failed to scan threshold").WithCause(err)
		}
		if sets[id] == nil {
			sets[id] = make(map[string]string)
		}
		sets[id][name] = value
	}
	if err := rows.Err(); err != nil {
		return domain.ThresholdSet{}, domain.NewIntegrationError("THRESHOLD_QUERY_FAILED", "failed to read thresholds").WithCause(err)
	}

	setID, ok := lowestSetID(sets)
	if !ok {
		return domain.ThresholdSet{}, domain.NewDataUnavailableError("THRESHOLDS_NOT_FOUND",
			fmt.Sprintf("scenario %s has no active thresholds", scenarioID))
	}
	return domain.NewThresholdSet(setID, scenarioID, sets[setID]), nil
}

func lowestSetID(sets map[string]map[string]string) (string, bool) {
	var lowest string
	found := false
	for id, values := range sets {
		if len(values) == 0 {
			continue
		}
		if !found || setIDLess(id, lowest) {
			lowest, found = id, true
		}
	}
	return lowest, found
}

// setIDLess orders threshold set ids numerically when both parse as
// integers ("9" before "10") and lexically otherwise. Numeric ids sort
// before non-numeric ones.
func setIDLess(a, b string) bool {
	na, errA := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	nb, errB := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// ScoreBuckets loads the active scoring configuration of a scenario
func (s *ReferenceStore) ScoreBuckets(ctx context.Context, scenarioID string) (domain.ScoreBuckets, error) {
	rows, err := s.db.Query(ctx, `
		SELECT scr_grp_type, weightage::float8, attr_nm, min_value, max_value, attr_score::float8
		FROM ts_score_bucket
		WHERE scenario_id = $1 AND active
		ORDER BY bucket_id
	`, scenarioID)
	if err != nil {
		return domain.ScoreBuckets{}, domain.NewIntegrationError("SCORE_BUCKET_QUERY_FAILED", "failed to load score buckets").WithCause(err)
	}
	defer rows.Close()

	var buckets []domain.ScoreBucketRow
	for rows.Next() {
		var r domain.ScoreBucketRow
		var group string
		if err := rows.Scan(&group, &r.Weight, &r.Attribute, &r.Min, &r.Max, &r.Score); err != nil {
			return domain.ScoreBuckets{}, domain.NewIntegrationError("SCORE_BUCKET_QUERY_FAILED", "failed to scan score bucket").WithCause(err)
		}
		r.Group = domain.ScoreModule(group)
		buckets = append(buckets, r)
	}
	if err := rows.Err(); err != nil {
		return domain.ScoreBuckets{}, domain.NewIntegrationError("SCORE_BUCKET_QUERY_FAILED", "failed to read score buckets").WithCause(err)
	}
	return domain.BuildScoreBuckets(scenarioID, buckets), nil
}

// CountryFlags returns the high-risk flag of every known country code
func (s *ReferenceStore) CountryFlags(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.Query(ctx, `SELECT cntry_cd, high_risk_fl FROM ts_country`)
	if err != nil {
		return nil, domain.NewIntegrationError("COUNTRY_QUERY_FAILED", "failed to load countries").WithCause(err)
	}
	defer rows.Close()

	flags := make(map[string]bool)
	for rows.Next() {
		var code string
		var high bool
		if err := rows.Scan(&code, &high); err != nil {
			return nil, domain.NewIntegrationError("COUNTRY_QUERY_FAILED", "failed to scan country").WithCause(err)
		}
		flags[code] = high
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewIntegrationError("COUNTRY_QUERY_FAILED", "failed to read countries").WithCause(err)
	}
	return flags, nil
}

// focusColumn maps a scenario focus onto the alert entity column
func focusColumn(focus domain.ScenarioFocus) string {
	if focus == domain.FocusAccount {
		return "acct_id"
	}
	return "cust_id"
}

// PriorAlerts returns the alerts raised since the given date for any of the
// entities, with the disposition of their latest investigation
func (s *ReferenceStore) PriorAlerts(
	ctx context.Context,
	focus domain.ScenarioFocus,
	entityIDs []string,
	since time.Time,
) ([]domain.PriorAlert, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT a.alert_id::text, e.acct_id, e.cust_id, a.scenario_id, a.status_cd,
		       COALESCE(i.sar_id, ''), COALESCE(i.auto_reasn_fl, ''), a.created_date
		FROM ts_alert_entity e
		JOIN ts_alert a ON a.alert_id = e.alert_id
		LEFT JOIN LATERAL (
			SELECT sar_id, auto_reasn_fl
			FROM ts_investigation
			WHERE ts_investigation.alert_id = a.alert_id
			ORDER BY created_date DESC
			LIMIT 1
		) i ON TRUE
		WHERE e.%s = ANY($1) AND a.created_date >= $2
		ORDER BY a.created_date DESC, a.alert_id DESC
	`, focusColumn(focus))

	rows, err := s.db.Query(ctx, query, entityIDs, since)
	if err != nil {
		return nil, domain.NewIntegrationError("PRIOR_ALERT_QUERY_FAILED", "failed to load prior alerts").WithCause(err)
	}
	defer rows.Close()

	var out []domain.PriorAlert
	for rows.Next() {
		var p domain.PriorAlert
		var status string
		if err := rows.Scan(&p.AlertID, &p.AccountID, &p.CustomerID, &p.ScenarioID, &status,
			&p.SARID, &p.AutoReason, &p.CreatedDate); err != nil {
			return nil, domain.NewIntegrationError("PRIOR_ALERT_QUERY_FAILED", "failed to scan prior alert").WithCause(err)
		}
		p.Status = domain.AlertStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewIntegrationError("PRIOR_ALERT_QUERY_FAILED", "failed to read prior alerts").WithCause(err)
	}
	return out, nil
}
