package scoring

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// PriorAlertSource looks up historical alerts of accounts or customers
type PriorAlertSource interface {
	PriorAlerts(ctx context.Context, focus domain.ScenarioFocus, entityIDs []string, since time.Time) ([]domain.PriorAlert, error)
}

// PriorHistory indexes the prior alerts of one batch of candidate alerts by
// focus entity. Each entity's alerts are de-duplicated and newest first.
type PriorHistory struct {
	focus    domain.ScenarioFocus
	byEntity map[string][]domain.PriorAlert
	entities map[string][]string
}

// LoadPriorHistory fetches prior alerts created on or after since for every
// focus entity referenced by entities
func LoadPriorHistory(
	ctx context.Context,
	src PriorAlertSource,
	focus domain.ScenarioFocus,
	entities []domain.AlertEntity,
	since time.Time,
) (*PriorHistory, error) {
	h := NewPriorHistory(focus, entities, nil)
	ids := h.entityIDs()
	if len(ids) == 0 {
		return h, nil
	}

	priors, err := src.PriorAlerts(ctx, focus, ids, since)
	if err != nil {
		return nil, domain.NewIntegrationError("PRIOR_ALERTS_UNAVAILABLE", "failed to load prior alerts").WithCause(err)
	}
	return NewPriorHistory(focus, entities, priors), nil
}

// NewPriorHistory builds a history from already fetched prior alerts
func NewPriorHistory(focus domain.ScenarioFocus, entities []domain.AlertEntity, priors []domain.PriorAlert) *PriorHistory {
	h := &PriorHistory{
		focus:    focus,
		byEntity: make(map[string][]domain.PriorAlert),
		entities: make(map[string][]string),
	}

	seenEntity := make(map[string]map[string]bool)
	for _, e := range entities {
		id := e.CustomerID
		if focus == domain.FocusAccount {
			id = e.AccountID
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if seenEntity[e.AlertID] == nil {
			seenEntity[e.AlertID] = make(map[string]bool)
		}
		if !seenEntity[e.AlertID][id] {
			seenEntity[e.AlertID][id] = true
			h.entities[e.AlertID] = append(h.entities[e.AlertID], id)
		}
	}

	seenAlert := make(map[string]map[string]bool)
	for _, p := range priors {
		id := p.EntityID(focus)
		if seenAlert[id] == nil {
			seenAlert[id] = make(map[string]bool)
		}
		if seenAlert[id][p.AlertID] {
			continue
		}
		seenAlert[id][p.AlertID] = true
		h.byEntity[id] = append(h.byEntity[id], p)
	}
	for id := range h.byEntity {
		domain.SortPriorAlertsNewestFirst(h.byEntity[id])
	}
	return h
}

func (h *PriorHistory) entityIDs() []string {
	set := make(map[string]bool)
	var out []string
	for _, ids := range h.entities {
		for _, id := range ids {
			if !set[id] {
				set[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

// EntitiesOf returns the focus entity ids mapped to an alert
func (h *PriorHistory) EntitiesOf(alertID string) []string {
	return h.entities[alertID]
}

// ForEntity returns the prior alerts of one entity, newest first
func (h *PriorHistory) ForEntity(entityID string) []domain.PriorAlert {
	return h.byEntity[strings.TrimSpace(entityID)]
}

// MatchCounts returns the number of distinct prior alerts across an alert's
// entities, overall and restricted to scenarioID
func (h *PriorHistory) MatchCounts(alertID, scenarioID string) (all, sameScenario int) {
	seen := make(map[string]bool)
	for _, id := range h.entities[alertID] {
		for _, p := range h.byEntity[id] {
			if seen[p.AlertID] {
				continue
			}
			seen[p.AlertID] = true
			all++
			if p.ScenarioID == scenarioID {
				sameScenario++
			}
		}
	}
	return all, sameScenario
}
