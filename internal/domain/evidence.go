package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindNumber
	KindDate
)

// Value is a small tagged union used for evidence attributes
type Value struct {
	kind ValueKind
	str  string
	num  float64
	date time.Time
}

// String builds a string value
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a numeric value
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int builds a numeric value from an integer
func Int(i int) Value { return Value{kind: KindNumber, num: float64(i)} }

// Date builds a day-granularity date value
func Date(t time.Time) Value { return Value{kind: KindDate, date: Day(t)} }

func (v Value) Kind() ValueKind { return v.kind }

// Num returns the numeric payload; ok is false for non-numbers
func (v Value) Num() (float64, bool) {
	if v.kind == KindNumber {
		return v.num, true
	}
	return 0, false
}

// Time returns the date payload; ok is false for non-dates
func (v Value) Time() (time.Time, bool) {
	if v.kind == KindDate {
		return v.date, true
	}
	return time.Time{}, false
}

// IsZero returns true for empty strings, zero numbers and zero dates
func (v Value) IsZero() bool {
	switch v.kind {
	case KindNumber:
		return v.num == 0
	case KindDate:
		return v.date.IsZero()
	default:
		return v.str == ""
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindDate:
		return v.date.Format(DateLayout)
	default:
		return v.str
	}
}

// AsFloat parses the value as a number, accepting numeric strings
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindDate:
		return json.Marshal(v.date.Format(DateLayout))
	default:
		return json.Marshal(v.str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case float64:
		*v = Number(x)
	case string:
		*v = String(x)
	case nil:
		*v = String("")
	default:
		*v = String(string(data))
	}
	return nil
}

// Attrs is an insertion-ordered mapping of evidence attribute names to values
type Attrs struct {
	keys []string
	vals map[string]Value
}

// NewAttrs returns an empty attribute set
func NewAttrs() Attrs {
	return Attrs{vals: make(map[string]Value)}
}

// Set stores v under key. A key keeps its original position when overwritten.
func (a *Attrs) Set(key string, v Value) {
	if a.vals == nil {
		a.vals = make(map[string]Value)
	}
	if _, ok := a.vals[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.vals[key] = v
}

// Get returns the value stored under key
func (a Attrs) Get(key string) (Value, bool) {
	v, ok := a.vals[key]
	return v, ok
}

// Keys returns the attribute names in insertion order
func (a Attrs) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

func (a Attrs) Len() int { return len(a.keys) }

// Each calls fn for every attribute in order
func (a Attrs) Each(fn func(key string, v Value)) {
	for _, k := range a.keys {
		fn(k, a.vals[k])
	}
}

// Clone returns an independent copy
func (a Attrs) Clone() Attrs {
	out := NewAttrs()
	a.Each(out.Set)
	return out
}

// Merge copies every attribute of other into a
func (a *Attrs) Merge(other Attrs) {
	other.Each(a.Set)
}

// Only returns the attributes whose names appear in allowed. An empty allow
// list keeps everything.
func (a Attrs) Only(allowed []string) Attrs {
	if len(allowed) == 0 {
		return a.Clone()
	}
	keep := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		keep[k] = true
	}
	out := NewAttrs()
	a.Each(func(k string, v Value) {
		if keep[k] {
			out.Set(k, v)
		}
	})
	return out
}

func (a Attrs) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range a.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := a.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// EvidenceRow is one transaction row of an evidence bundle
type EvidenceRow struct {
	TransactionID string `json:"transaction_id"`
	Supporting    bool   `json:"supporting"`
	Fields        Attrs  `json:"fields"`
}

// MonthlyAmount is one point of a per-account monthly series
type MonthlyAmount struct {
	Month string  `json:"Month"` // YYYY-MM
	Value float64 `json:"Value"`
}

// EvidenceBundle groups the supporting records of one alert for review
type EvidenceBundle struct {
	AlertID      string          `json:"alert_id"`
	ScenarioName string          `json:"scenario_name"`
	CreatedDate  time.Time       `json:"created_date"`
	Rows         []EvidenceRow   `json:"records"`
	MonthlySums  []MonthlyAmount `json:"monthly_sums,omitempty"`
}
