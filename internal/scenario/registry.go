package scenario

import (
	"fmt"
	"strings"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/detection"
	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/evidence"
)

// Entry pairs the detector of a scenario with its evidence assembler
type Entry struct {
	Detector  detection.Detector
	Assembler evidence.Assembler
}

// Registry maps scenario ids to their detection strategy
type Registry struct {
	entries map[string]Entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// DefaultRegistry wires the scenarios shipped with the service
func DefaultRegistry(cfg config.PipelineConfig) *Registry {
	r := NewRegistry()
	r.Register("TS_SCN_01", Entry{
		Detector:  detection.NewFrequencyWindow(),
		Assembler: evidence.NewWindow(cfg.EvidenceWindowDays),
	})

	deviation := Entry{
		Detector:  detection.NewDeviation(cfg.BaselineMonths),
		Assembler: evidence.NewMonthlyTrend(cfg.BaselineMonths),
	}
	r.Register("TS_SCN_12", deviation)
	r.Register("TS_SCN_29", deviation)
	return r
}

// Register adds or replaces the entry of a scenario
func (r *Registry) Register(scenarioID string, e Entry) {
	r.entries[strings.ToUpper(scenarioID)] = e
}

// Lookup returns the entry of a scenario
func (r *Registry) Lookup(scenarioID string) (Entry, error) {
	e, ok := r.entries[strings.ToUpper(scenarioID)]
	if !ok {
		return Entry{}, domain.NewConfigurationError("SCENARIO_UNKNOWN",
			fmt.Sprintf("scenario %s has no registered detector", scenarioID))
	}
	return e, nil
}
