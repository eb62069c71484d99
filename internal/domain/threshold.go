package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ThresholdSet holds the named parameters of one scenario. Keys may be
// segmented by customer type and risk tier, e.g. "MIN TRXN AMOUNT IND HIGH".
// Loaded once per job; treat as immutable.
type ThresholdSet struct {
	ID         string            `json:"id"`
	ScenarioID string            `json:"scenario_id"`
	Values     map[string]string `json:"values"`
}

// NewThresholdSet copies values into a new set
func NewThresholdSet(id, scenarioID string, values map[string]string) ThresholdSet {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return ThresholdSet{ID: id, ScenarioID: scenarioID, Values: cp}
}

// Empty returns true when no parameters are configured
func (t ThresholdSet) Empty() bool {
	return len(t.Values) == 0
}

// Lookup returns the raw value of key
func (t ThresholdSet) Lookup(key string) (string, bool) {
	v, ok := t.Values[key]
	return v, ok
}

// Float resolves a required numeric parameter
func (t ThresholdSet) Float(key string) (float64, error) {
	raw, ok := t.Values[key]
	if !ok {
		return 0, MissingThreshold(t.ScenarioID, key)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, NewConfigurationError("THRESHOLD_MALFORMED",
			fmt.Sprintf("scenario %s: threshold %q is not numeric", t.ScenarioID, key)).WithCause(err)
	}
	return f, nil
}

// Int resolves a required integral parameter. Fractional values are truncated.
func (t ThresholdSet) Int(key string) (int, error) {
	f, err := t.Float(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// FloatOr resolves key, falling back to def when missing or malformed
func (t ThresholdSet) FloatOr(key string, def float64) float64 {
	f, err := t.Float(key)
	if err != nil {
		return def
	}
	return f
}

// Keys returns the parameter names in sorted order
func (t ThresholdSet) Keys() []string {
	keys := make([]string, 0, len(t.Values))
	for k := range t.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SegmentedKey builds "{name} {type}" or "{name} {type} {tier}" when tiered
func SegmentedKey(name string, ct CustomerType, tier RiskTier, tiered bool) string {
	if tiered {
		return fmt.Sprintf("%s %s %s", name, ct, tier)
	}
	return fmt.Sprintf("%s %s", name, ct)
}
