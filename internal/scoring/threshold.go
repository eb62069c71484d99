package scoring

import (
	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/domain"
)

// Deviation formulas
const (
	DeviationPercentage = "percentage"
	DeviationChange     = "change"
)

// ThresholdScorer scores how far an alert's facts exceed their thresholds
type ThresholdScorer struct {
	cfg config.ThresholdScoringConfig
}

// NewThresholdScorer creates a threshold scorer for one scenario
func NewThresholdScorer(cfg config.ThresholdScoringConfig) *ThresholdScorer {
	return &ThresholdScorer{cfg: cfg}
}

// PercentageDeviation returns how many percent value lies above threshold
func PercentageDeviation(value, threshold float64) float64 {
	if value <= 0 || threshold <= 0 {
		return 0
	}
	d := (value - threshold) / threshold * 100
	if d < 0 {
		return 0
	}
	return domain.Round2(d)
}

// ChangeDeviation returns the absolute excess of value over threshold
func ChangeDeviation(value, threshold float64) float64 {
	if value <= 0 {
		return 0
	}
	d := value - threshold
	if d < 0 {
		return 0
	}
	return domain.Round2(d)
}

// BucketScore maps a deviation onto the ordered rules of one attribute.
// Values in [0, 1) score 10. Past the last matching range the score is
// extrapolated from the last rule evaluated: +5 above 50, -5 otherwise.
// With no rules at all the score is 50.
func BucketScore(value float64, rules []domain.ScoreRule) float64 {
	if value < 0 {
		return 0
	}
	if value < 1 {
		return 10
	}

	var last *float64
	for _, r := range rules {
		lo, hi, ok := r.Range()
		if !ok {
			continue
		}
		if lo <= value && value <= hi {
			return r.Score
		}
		s := r.Score
		last = &s
	}

	if last == nil {
		return 50
	}
	if *last > 50 {
		return *last + 5
	}
	return *last - 5
}

// columns copies the configured evidence attributes into numeric columns
func (s *ThresholdScorer) columns(alert *domain.Alert) map[string]float64 {
	cols := make(map[string]float64, len(s.cfg.Fields))
	for _, f := range s.cfg.Fields {
		cols[f.Column] = f.Default
		v, ok := alert.Attributes.Get(f.SourceAttribute)
		if !ok || v.IsZero() {
			continue
		}
		if n, ok := v.AsFloat(); ok {
			cols[f.Column] = n
		}
	}
	return cols
}

func (s *ThresholdScorer) value(alert *domain.Alert, cols map[string]float64, column string) float64 {
	if v, ok := cols[column]; ok {
		return v
	}
	if v, ok := alert.Attributes.Get(column); ok {
		if n, ok := v.AsFloat(); ok {
			return n
		}
	}
	return 0
}

// segment returns the customer type and risk tier recorded on the alert
func segment(alert *domain.Alert) (domain.CustomerType, domain.RiskTier) {
	ct, tier := alert.CustomerType, alert.RiskTier
	if v, ok := alert.Attributes.Get(domain.KeyCustomerType); ok && v.String() != "" {
		ct = domain.CustomerType(v.String())
	}
	if v, ok := alert.Attributes.Get(domain.KeyCustomerRisk); ok && v.String() != "" {
		tier = domain.RiskTier(v.String())
	}
	return ct, tier
}

// Score returns the weighted threshold sub-score of an alert and the per
// attribute breakdown. Thresholds absent from the set count as 0.
func (s *ThresholdScorer) Score(
	alert *domain.Alert,
	thresholds domain.ThresholdSet,
	group domain.ScoreGroup,
	tiered bool,
) (float64, []domain.AttributeScore) {
	if len(s.cfg.Thresholds) == 0 {
		return 0, nil
	}

	cols := s.columns(alert)
	ct, tier := segment(alert)
	weight := (group.Weight / 100) / float64(len(s.cfg.Thresholds))

	var total float64
	details := make([]domain.AttributeScore, 0, len(s.cfg.Thresholds))
	for _, t := range s.cfg.Thresholds {
		value := s.value(alert, cols, t.Column)
		limit := thresholds.FloatOr(domain.SegmentedKey(t.ThresholdName, ct, tier, tiered), 0)

		var dev float64
		switch t.Deviation {
		case DeviationChange:
			dev = ChangeDeviation(value, limit)
		default:
			dev = PercentageDeviation(value, limit)
		}

		score := BucketScore(dev, group.RulesFor(t.AttributeName))
		total += weight * score
		details = append(details, domain.AttributeScore{
			Attribute: t.AttributeName,
			Value:     value,
			Threshold: limit,
			Deviation: dev,
			Score:     score,
		})
	}
	return domain.Round2(total), details
}
