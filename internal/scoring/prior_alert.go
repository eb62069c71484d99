package scoring

import (
	"github.com/banking/txn-monitoring-service/internal/domain"
)

// PriorResult is the prior-alert evaluation of one alert. Statuses keep the
// workflow status as recorded; only the score lookup folds them into OTHER.
type PriorResult struct {
	Score    float64
	Statuses []domain.AlertStatus
	Reasons  []string
}

// PriorAlertScorer scores an alert by the dispositions of earlier alerts on
// the same entities
type PriorAlertScorer struct{}

// NewPriorAlertScorer creates a prior-alert scorer
func NewPriorAlertScorer() *PriorAlertScorer {
	return &PriorAlertScorer{}
}

func normalizeStatus(s domain.AlertStatus) domain.AlertStatus {
	switch s {
	case "":
		return domain.AlertStatusNew
	case domain.AlertStatusReopen, domain.AlertStatusParked, domain.AlertStatusAssigned:
		return domain.AlertStatusOther
	}
	return s
}

func statusScore(group domain.ScoreGroup, s domain.AlertStatus) float64 {
	v, _ := group.CategoryScore(domain.AttrPreviousAlert, string(s))
	return v
}

// scoreEntity evaluates the prior alerts of one entity, newest first. A prior
// alert escalated to a filed SAR short-circuits to the SAR score.
func (s *PriorAlertScorer) scoreEntity(priors []domain.PriorAlert, group domain.ScoreGroup) PriorResult {
	if len(priors) == 0 {
		return PriorResult{Score: statusScore(group, domain.AlertStatusNew)}
	}

	for _, p := range priors {
		if p.Status == domain.AlertStatusEscalated && p.SARID != "" {
			return PriorResult{
				Score:    statusScore(group, domain.AlertStatusSAR),
				Statuses: []domain.AlertStatus{domain.AlertStatusSAR},
			}
		}
	}

	res := PriorResult{
		Statuses: make([]domain.AlertStatus, 0, len(priors)),
		Reasons:  make([]string, 0, len(priors)),
	}
	var sum float64
	for _, p := range priors {
		status := p.Status
		if status == "" {
			status = domain.AlertStatusNew
		}
		res.Statuses = append(res.Statuses, status)
		res.Reasons = append(res.Reasons, p.AutoReason)
		sum += statusScore(group, normalizeStatus(status))
	}
	res.Score = sum / float64(len(priors))
	return res
}

// Score returns the highest prior-alert result across the alert's entities.
// Ties keep the first entity evaluated.
func (s *PriorAlertScorer) Score(alertID string, history *PriorHistory, group domain.ScoreGroup) PriorResult {
	entities := history.EntitiesOf(alertID)
	if len(entities) == 0 {
		return s.scoreEntity(nil, group)
	}

	var best PriorResult
	for i, id := range entities {
		r := s.scoreEntity(history.ForEntity(id), group)
		if i == 0 || r.Score > best.Score {
			best = r
		}
	}
	return best
}
