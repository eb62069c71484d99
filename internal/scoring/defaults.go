package scoring

import (
	"fmt"
	"strings"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/domain"
)

// builtinThresholdScoring covers the scenarios shipped with the service.
// Entries under scoring.scenarios in the config file take precedence.
var builtinThresholdScoring = map[string]config.ThresholdScoringConfig{
	"TS_SCN_01": {
		Fields: []config.FieldMapping{
			{SourceAttribute: domain.KeyTotalHRGAmount, Column: "hrg_trxn_amt"},
			{SourceAttribute: domain.KeyHRGPercentage, Column: "hrg_pct_amt"},
		},
		Thresholds: []config.ThresholdMapping{
			{ThresholdName: domain.ThHRGAmount, AttributeName: domain.KeyTotalHRGAmount, Column: "hrg_trxn_amt", Deviation: DeviationPercentage},
			{ThresholdName: domain.ThHRGPercentage, AttributeName: domain.KeyHRGPercentage, Column: "hrg_pct_amt", Deviation: DeviationChange},
		},
	},
	"TS_SCN_12": deviationScoring(),
	"TS_SCN_29": deviationScoring(),
}

func deviationScoring() config.ThresholdScoringConfig {
	return config.ThresholdScoringConfig{
		Fields: []config.FieldMapping{
			{SourceAttribute: domain.KeyTotalTrxnAmount, Column: "trxn_amt"},
			{SourceAttribute: domain.KeyRiskPercentage, Column: "risk_pct"},
		},
		Thresholds: []config.ThresholdMapping{
			{ThresholdName: domain.ThMinTrxnAmount, AttributeName: domain.KeyTotalTrxnAmount, Column: "trxn_amt", Deviation: DeviationPercentage},
			{ThresholdName: domain.ThMinRiskPercentage, AttributeName: domain.KeyRiskPercentage, Column: "risk_pct", Deviation: DeviationChange},
		},
	}
}

// ThresholdScoringFor resolves the threshold scoring layout of a scenario
func ThresholdScoringFor(cfg config.ScoringConfig, scenarioID string) (config.ThresholdScoringConfig, error) {
	if sc, ok := cfg.Scenarios[strings.ToLower(scenarioID)]; ok && len(sc.Thresholds) > 0 {
		return sc, nil
	}
	if sc, ok := cfg.Scenarios[scenarioID]; ok && len(sc.Thresholds) > 0 {
		return sc, nil
	}
	if sc, ok := builtinThresholdScoring[strings.ToUpper(scenarioID)]; ok {
		return sc, nil
	}
	return config.ThresholdScoringConfig{}, domain.NewConfigurationError("SCORING_CONFIG_MISSING",
		fmt.Sprintf("scenario %s: no threshold scoring configuration", scenarioID))
}
