package domain

import (
	"strconv"
	"strings"
)

// ScoreModule names a scoring module group
type ScoreModule string

const (
	ModuleThreshold    ScoreModule = "THRESHOLD"
	ModulePriorAlert   ScoreModule = "PRIOR_ALERT"
	ModuleCustBehavior ScoreModule = "CUST_BEHAV"
)

// Attribute names with special meaning inside score bucket rows
const (
	AttrPreviousAlert      = "PREVIOUS_ALERT"
	AttrCountryParty       = "CNTRY_PARTY"
	AttrCountryResidence   = "CNTRY_RESIDENCE"
	AttrCountryCitizenship = "CNTRY_CITIZENSHIPSTS"
)

// ScoreBucketRow is one row of the scoring configuration table
type ScoreBucketRow struct {
	Group     ScoreModule `json:"group" db:"scr_grp_type"`
	Weight    float64     `json:"weight" db:"weightage"`
	Attribute string      `json:"attribute" db:"attr_nm"`
	Min       string      `json:"min" db:"min_value"`
	Max       string      `json:"max" db:"max_value"`
	Score     float64     `json:"score" db:"attr_score"`
}

// ScoreRule maps an attribute value (numeric range or category) to a score
type ScoreRule struct {
	Attribute string  `json:"attribute"`
	Min       string  `json:"min"`
	Max       string  `json:"max"`
	Score     float64 `json:"score"`
}

// Range parses the inclusive numeric bounds of the rule
func (r ScoreRule) Range() (lo, hi float64, ok bool) {
	lo, err := strconv.ParseFloat(strings.TrimSpace(r.Min), 64)
	if err != nil {
		return 0, 0, false
	}
	hi, err = strconv.ParseFloat(strings.TrimSpace(r.Max), 64)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// Category returns the categorical match value, stored in Min
func (r ScoreRule) Category() string {
	return strings.TrimSpace(r.Min)
}

// ScoreGroup is the configuration of one scoring module
type ScoreGroup struct {
	Module ScoreModule `json:"module"`
	Weight float64     `json:"weight"` // 0-100
	Rules  []ScoreRule `json:"rules"`
}

// RulesFor returns the rules for attribute in configured order
func (g ScoreGroup) RulesFor(attribute string) []ScoreRule {
	var out []ScoreRule
	for _, r := range g.Rules {
		if r.Attribute == attribute {
			out = append(out, r)
		}
	}
	return out
}

// CategoryScore returns the score of the first rule whose category matches
func (g ScoreGroup) CategoryScore(attribute, category string) (float64, bool) {
	for _, r := range g.Rules {
		if r.Attribute == attribute && r.Category() == category {
			return r.Score, true
		}
	}
	return 0, false
}

// ScoreBuckets is the scoring configuration of one scenario, immutable for a run
type ScoreBuckets struct {
	ScenarioID string       `json:"scenario_id"`
	Groups     []ScoreGroup `json:"groups"`

	// ActiveCountryFields lists which of CNTRY_RESIDENCE/CNTRY_CITIZENSHIPSTS are scored
	ActiveCountryFields []string `json:"active_country_fields"`
}

// Group returns the configuration for module m
func (b ScoreBuckets) Group(m ScoreModule) (ScoreGroup, bool) {
	for _, g := range b.Groups {
		if g.Module == m {
			return g, true
		}
	}
	return ScoreGroup{}, false
}

// CountryFieldActive reports whether the given country attribute participates in scoring
func (b ScoreBuckets) CountryFieldActive(attr string) bool {
	for _, f := range b.ActiveCountryFields {
		if f == attr {
			return true
		}
	}
	return false
}

// BuildScoreBuckets groups raw rows by module. The module weight is taken
// from the first row seen for that module; group order follows first
// appearance.
func BuildScoreBuckets(scenarioID string, rows []ScoreBucketRow) ScoreBuckets {
	b := ScoreBuckets{ScenarioID: scenarioID}
	index := make(map[ScoreModule]int)
	seenCountry := make(map[string]bool)

	for _, row := range rows {
		if row.Attribute == AttrCountryResidence || row.Attribute == AttrCountryCitizenship {
			if !seenCountry[row.Attribute] {
				seenCountry[row.Attribute] = true
				b.ActiveCountryFields = append(b.ActiveCountryFields, row.Attribute)
			}
		}

		i, ok := index[row.Group]
		if !ok {
			b.Groups = append(b.Groups, ScoreGroup{Module: row.Group, Weight: row.Weight})
			i = len(b.Groups) - 1
			index[row.Group] = i
		}

		switch row.Group {
		case ModulePriorAlert:
			if row.Attribute != AttrPreviousAlert {
				continue
			}
		case ModuleCustBehavior:
			if row.Attribute != AttrCountryParty {
				continue
			}
		}
		b.Groups[i].Rules = append(b.Groups[i].Rules, ScoreRule{
			Attribute: row.Attribute,
			Min:       row.Min,
			Max:       row.Max,
			Score:     row.Score,
		})
	}
	return b
}
