package scoring

import (
	"fmt"
	"strings"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// CountryFlags maps a country name to its high-risk flag
type CountryFlags map[string]bool

// flag returns "Y", "N" or "" for countries the reference data does not know
func (f CountryFlags) flag(country string) string {
	c := strings.TrimSpace(country)
	if c == "" {
		return ""
	}
	hr, ok := f[c]
	if !ok {
		return ""
	}
	if hr {
		return "Y"
	}
	return "N"
}

// CountryScorer scores the counterparty country of supporting transactions
// against the owner's own country ties
type CountryScorer struct{}

// NewCountryScorer creates a country/behaviour scorer
func NewCountryScorer() *CountryScorer {
	return &CountryScorer{}
}

// CountryScores are the configured counterparty-country scores for flags Y and N
type CountryScores struct {
	Yes float64
	No  float64
}

// Resolve reads the counterparty-country scores for flag Y and N
func (s *CountryScorer) Resolve(scenarioID string, group domain.ScoreGroup) (CountryScores, error) {
	yes, okY := group.CategoryScore(domain.AttrCountryParty, "Y")
	no, okN := group.CategoryScore(domain.AttrCountryParty, "N")
	if !okY || !okN {
		return CountryScores{}, domain.NewConfigurationError("SCORE_BUCKET_MISSING",
			fmt.Sprintf("scenario %s: %s scores for flags Y and N are required", scenarioID, domain.AttrCountryParty))
	}
	return CountryScores{Yes: yes, No: no}, nil
}

// transactionScore applies the country formula to one transaction. With both
// individual country fields active the additive term of the N branch uses the
// N score; with a single active field it uses the Y score.
func (s *CountryScorer) transactionScore(tx domain.Transaction, flags CountryFlags, sc CountryScores, buckets domain.ScoreBuckets) float64 {
	party := flags.flag(tx.Counterparty.Country)
	owner := tx.Owner

	var freq, active int
	if owner.IsIndividual() {
		if buckets.CountryFieldActive(domain.AttrCountryCitizenship) {
			active++
			if flags.flag(owner.Citizenship) == "Y" {
				freq++
			}
		}
		if buckets.CountryFieldActive(domain.AttrCountryResidence) {
			active++
			if flags.flag(owner.CountryOfResidence) == "Y" {
				freq++
			}
		}
	} else {
		active = 1
		if flags.flag(owner.CountryOfIncorporation) == "Y" {
			freq = 1
		}
	}

	f := float64(freq)
	var score float64
	switch {
	case active == 0:
		return 0
	case party == "Y":
		score = sc.Yes - f*sc.No
	case party == "N" && active == 2:
		score = sc.No + f*sc.No
	case party == "N":
		score = sc.No + f*sc.Yes
	}
	return float64(int(score))
}

// Score returns the maximum transaction score over the alert's supporting
// transactions. Transactions missing from txs are skipped.
func (s *CountryScorer) Score(
	alert *domain.Alert,
	txs map[string]domain.Transaction,
	flags CountryFlags,
	sc CountryScores,
	buckets domain.ScoreBuckets,
) float64 {
	var best float64
	first := true
	for _, id := range alert.TransactionIDs {
		tx, ok := txs[id]
		if !ok {
			continue
		}
		v := s.transactionScore(tx, flags, sc, buckets)
		if first || v > best {
			best = v
			first = false
		}
	}
	return best
}
