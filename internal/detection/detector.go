package detection

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// Sequence hands out alert ids. One sequence is scoped to a single run.
type Sequence interface {
	Next() string
}

// Input is everything a detector needs for one pass
type Input struct {
	AsOf         time.Time
	Scenario     domain.ScenarioConfig
	Thresholds   domain.ThresholdSet
	Transactions []domain.Transaction
	Sequence     Sequence
}

// Detector scans a transaction table and emits candidate alerts.
// Implementations must be deterministic for a given Input.
type Detector interface {
	Detect(in Input) ([]*domain.Alert, error)
}

// CounterSequence is a monotonic, zero-padded alert id generator
type CounterSequence struct {
	mu   sync.Mutex
	next int64
}

// NewCounterSequence creates a sequence whose first id is start
func NewCounterSequence(start int64) *CounterSequence {
	return &CounterSequence{next: start}
}

// Next returns the next id, formatted to at least seven digits
func (s *CounterSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("%07d", s.next)
	s.next++
	return id
}

func (in Input) validate() error {
	if in.Sequence == nil {
		return domain.NewComputationError("SEQUENCE_MISSING",
			fmt.Sprintf("scenario %s: no alert id sequence", in.Scenario.ID))
	}
	if in.AsOf.IsZero() {
		return domain.NewComputationError("AS_OF_MISSING",
			fmt.Sprintf("scenario %s: as-of date not set", in.Scenario.ID))
	}
	if in.Thresholds.Empty() {
		return domain.NewConfigurationError("THRESHOLDS_MISSING",
			fmt.Sprintf("scenario %s: no thresholds configured", in.Scenario.ID))
	}
	return nil
}

// thresholdKey appends the customer type suffix used by per-type parameters
func thresholdKey(name string, ct domain.CustomerType) string {
	return name + " " + string(ct)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
