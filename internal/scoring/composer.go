package scoring

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// DefaultAutoCloseMaxScore is the highest composite score eligible for auto-closure
const DefaultAutoCloseMaxScore = 35.0

// Batch is everything the composer needs to score one scenario's alerts.
// Reference inputs are loaded by the caller so scoring itself never blocks.
type Batch struct {
	Scenario     domain.ScenarioConfig
	Thresholds   domain.ThresholdSet
	Buckets      domain.ScoreBuckets
	Alerts       []*domain.Alert
	Transactions map[string]domain.Transaction
	History      *PriorHistory
	CountryFlags CountryFlags
}

// Composer merges the module scores of each alert into a composite score,
// priority and auto-closure decision
type Composer struct {
	threshold    *ThresholdScorer
	prior        *PriorAlertScorer
	country      *CountryScorer
	autoCloseMax float64
	log          *logger.Logger
}

// NewComposer creates a composer around the scenario's threshold scorer
func NewComposer(threshold *ThresholdScorer, autoCloseMax float64, log *logger.Logger) *Composer {
	if autoCloseMax <= 0 {
		autoCloseMax = DefaultAutoCloseMaxScore
	}
	return &Composer{
		threshold:    threshold,
		prior:        NewPriorAlertScorer(),
		country:      NewCountryScorer(),
		autoCloseMax: autoCloseMax,
		log:          log.Named("scoring"),
	}
}

// Score attaches an AlertScore to every alert in the batch. A scenario
// without a THRESHOLD group, or with an incomplete country group, fails as a
// whole before any alert is touched.
func (c *Composer) Score(b Batch) error {
	start := time.Now()

	thresholdGroup, ok := b.Buckets.Group(domain.ModuleThreshold)
	if !ok {
		return domain.NewConfigurationError("SCORE_BUCKET_MISSING",
			fmt.Sprintf("scenario %s: no %s score bucket group", b.Scenario.ID, domain.ModuleThreshold))
	}

	var countryScores CountryScores
	if g, ok := b.Buckets.Group(domain.ModuleCustBehavior); ok {
		var err error
		if countryScores, err = c.country.Resolve(b.Scenario.ID, g); err != nil {
			return err
		}
	}

	history := b.History
	if history == nil {
		history = NewPriorHistory(b.Scenario.Focus, nil, nil)
	}

	tiered := b.Scenario.Tiered()
	autoClosed := 0
	for _, alert := range b.Alerts {
		thr, details := c.threshold.Score(alert, b.Thresholds, thresholdGroup, tiered)

		score := &domain.AlertScore{
			Threshold: thr,
			Modules:   map[domain.ScoreModule]float64{domain.ModuleThreshold: thr},
			Details:   details,
		}
		composite := thr

		for _, g := range b.Buckets.Groups {
			var sub float64
			switch g.Module {
			case domain.ModuleThreshold:
				continue
			case domain.ModulePriorAlert:
				r := c.prior.Score(alert.ID, history, g)
				sub = r.Score
				score.PriorStatuses = r.Statuses
				score.PriorReasons = r.Reasons
			case domain.ModuleCustBehavior:
				sub = c.country.Score(alert, b.Transactions, b.CountryFlags, countryScores, b.Buckets)
			default:
				c.log.Warn("unknown score module ignored",
					zap.String("scenario_id", b.Scenario.ID),
					zap.String("module", string(g.Module)),
				)
				continue
			}
			score.Modules[g.Module] = sub
			composite += g.Weight / 100 * sub
		}

		score.Composite = domain.Round2(composite)
		score.AutoClose = c.autoClose(score)
		if score.AutoClose {
			score.Priority = domain.PriorityAutoClosure
			autoClosed++
		} else {
			score.Priority = domain.PriorityForScore(score.Composite)
		}
		alert.Score = score
	}

	c.log.Debug("alerts scored",
		zap.String("scenario_id", b.Scenario.ID),
		zap.Int("alerts", len(b.Alerts)),
		zap.Int("auto_closed", autoClosed),
		logger.DurationField("duration", time.Since(start)),
	)
	return nil
}

// autoClose applies the auto-closure rule: a low composite score, no prior
// alert still being worked, and the most recent prior alert closed as a
// false positive
func (c *Composer) autoClose(s *domain.AlertScore) bool {
	if s.Composite > c.autoCloseMax {
		return false
	}
	for _, st := range s.PriorStatuses {
		if st.IsOpen() {
			return false
		}
	}
	return len(s.PriorReasons) > 0 && s.PriorReasons[0] == domain.FalsePositiveReason
}
