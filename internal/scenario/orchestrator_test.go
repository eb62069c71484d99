package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/detection"
	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/evidence"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

var asOf = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func testPipeline() config.PipelineConfig {
	return config.PipelineConfig{
		MaxPartitions:            6,
		EvidenceWindowDays:       90,
		PriorAlertLookbackMonths: 9,
		BaselineMonths:           6,
		AlertIDStart:             1000001,
		AsOf:                     "2024-03-10",
	}
}

// fakeRefs serves reference data from memory
type fakeRefs struct {
	configs    map[string]domain.ScenarioConfig
	thresholds map[string]domain.ThresholdSet
	buckets    map[string]domain.ScoreBuckets
	priors     []domain.PriorAlert
	priorErr   error
}

func (f *fakeRefs) ScenarioConfig(_ context.Context, id string) (domain.ScenarioConfig, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return cfg, domain.NewDataUnavailableError("SCENARIO_CONFIG_MISSING", id)
	}
	return cfg, nil
}

func (f *fakeRefs) Thresholds(_ context.Context, id string) (domain.ThresholdSet, error) {
	return f.thresholds[id], nil
}

func (f *fakeRefs) ScoreBuckets(_ context.Context, id string) (domain.ScoreBuckets, error) {
	return f.buckets[id], nil
}

func (f *fakeRefs) CountryFlags(context.Context) (map[string]bool, error) {
	return map[string]bool{"IR": true, "US": false}, nil
}

func (f *fakeRefs) PriorAlerts(context.Context, domain.ScenarioFocus, []string, time.Time) ([]domain.PriorAlert, error) {
	return f.priors, f.priorErr
}

type fakePartitions struct {
	data    map[string][]domain.Transaction
	err     error
	loadErr map[string]error
}

func (f *fakePartitions) Partitions(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var names []string
	for i := 0; i < len(f.data); i++ {
		names = append(names, fmt.Sprintf("p%d", i))
	}
	return names, nil
}

func (f *fakePartitions) Load(_ context.Context, name string) ([]domain.Transaction, error) {
	if err := f.loadErr[name]; err != nil {
		return nil, err
	}
	return f.data[name], nil
}

type fakeSink struct {
	mu             sync.Mutex
	next           int64
	results        []Result
	investigations []*domain.Investigation
}

func (s *fakeSink) Persist(_ context.Context, r Result) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	ids := make(map[string]int64, len(r.Alerts))
	for _, a := range r.Alerts {
		s.next++
		ids[a.ID] = s.next
	}
	return ids, nil
}

func (s *fakeSink) SaveInvestigations(_ context.Context, inv []*domain.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.investigations = append(s.investigations, inv...)
	return nil
}

type fakeNarrator struct {
	err error
}

func (n fakeNarrator) Generate(_ context.Context, facts domain.NarrativeFacts) (string, error) {
	if n.err != nil {
		return "", n.err
	}
	return "closed alert " + facts.AlertID, nil
}

type fakeEvents struct {
	mu      sync.Mutex
	alerts  int
	durable map[string]int64
	jobs    []*domain.JobResult
}

func (e *fakeEvents) PublishAlerts(_ context.Context, alerts []*domain.Alert, durable map[string]int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts += len(alerts)
	e.durable = durable
	return nil
}

func (e *fakeEvents) PublishJobCompleted(_ context.Context, r *domain.JobResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, r)
	return nil
}

// oneAlertPerCustomer raises one alert for every customer in the partition
type oneAlertPerCustomer struct{}

func (oneAlertPerCustomer) Detect(in detection.Input) ([]*domain.Alert, error) {
	seen := make(map[string]*domain.Alert)
	var alerts []*domain.Alert
	for _, tx := range in.Transactions {
		a, ok := seen[tx.CustomerID]
		if !ok {
			attrs := domain.NewAttrs()
			attrs.Set(domain.KeyScenarioName, domain.String(in.Scenario.Name))
			attrs.Set(domain.KeyCustomerType, domain.String("IND"))
			a = &domain.Alert{
				ID:          in.Sequence.Next(),
				ScenarioID:  in.Scenario.ID,
				JobID:       in.Scenario.JobID,
				JobName:     in.Scenario.JobName,
				AccountIDs:  []string{tx.AccountID},
				CustomerIDs: []string{tx.CustomerID},
				CreatedDate: in.AsOf,
				Attributes:  attrs,
			}
			seen[tx.CustomerID] = a
			alerts = append(alerts, a)
		}
		a.TransactionIDs = append(a.TransactionIDs, tx.ID)
	}
	return alerts, nil
}

type panicking struct{}

func (panicking) Detect(detection.Input) ([]*domain.Alert, error) {
	panic("boom")
}

type emptyEvidence struct{}

func (emptyEvidence) Assemble(in evidence.Input) ([]domain.EvidenceBundle, error) {
	out := make([]domain.EvidenceBundle, len(in.Alerts))
	for i, a := range in.Alerts {
		out[i] = domain.EvidenceBundle{AlertID: a.ID, Rows: []domain.EvidenceRow{}}
	}
	return out, nil
}

func scoreBuckets(id string) domain.ScoreBuckets {
	return domain.ScoreBuckets{
		ScenarioID: id,
		Groups: []domain.ScoreGroup{
			{Module: domain.ModuleThreshold, Weight: 60},
			{Module: domain.ModulePriorAlert, Weight: 20, Rules: []domain.ScoreRule{
				{Attribute: domain.AttrPreviousAlert, Min: "NEW", Max: "NEW", Score: 30},
				{Attribute: domain.AttrPreviousAlert, Min: "CLOSED", Max: "CLOSED", Score: 10},
				{Attribute: domain.AttrPreviousAlert, Min: "OTHER", Max: "OTHER", Score: 50},
			}},
		},
	}
}

func newRefs(ids ...string) *fakeRefs {
	refs := &fakeRefs{
		configs:    map[string]domain.ScenarioConfig{},
		thresholds: map[string]domain.ThresholdSet{},
		buckets:    map[string]domain.ScoreBuckets{},
	}
	for _, id := range ids {
		refs.configs[id] = domain.ScenarioConfig{ID: id, Name: "scenario " + id, Focus: domain.FocusCustomer}
		refs.thresholds[id] = domain.NewThresholdSet("TS-"+id, id, map[string]string{"LOOKBACK PERIOD": "30"})
		refs.buckets[id] = scoreBuckets(id)
	}
	return refs
}

func txnFor(id, acct, cust string) domain.Transaction {
	return domain.Transaction{ID: id, AccountID: acct, CustomerID: cust, Amount: 100, ExecutionDate: asOf, TypeCode: "WIRE"}
}

type harness struct {
	refs   *fakeRefs
	parts  *fakePartitions
	sink   *fakeSink
	events *fakeEvents
	orch   *Orchestrator
}

func newHarness(t *testing.T, refs *fakeRefs, registry *Registry, opts ...Option) *harness {
	h := &harness{
		refs: refs,
		parts: &fakePartitions{data: map[string][]domain.Transaction{
			"p0": {txnFor("t1", "A1", "C1"), txnFor("t2", "A1", "C1")},
			"p1": {txnFor("t3", "A2", "C2")},
		}},
		sink:   &fakeSink{},
		events: &fakeEvents{},
	}
	opts = append([]Option{WithEvents(h.events)}, opts...)
	log := logger.NewFromZap(zaptest.NewLogger(t), "test")
	h.orch = NewOrchestrator(refs, h.parts, h.sink, registry, testPipeline(), config.ScoringConfig{}, log, opts...)
	return h
}

func stubRegistry() *Registry {
	r := NewRegistry()
	r.Register("TS_SCN_01", Entry{Detector: oneAlertPerCustomer{}, Assembler: emptyEvidence{}})
	r.Register("TS_SCN_12", Entry{Detector: panicking{}, Assembler: emptyEvidence{}})
	return r
}

func newRun() Run {
	return Run{JobID: "JOB-1", RunID: "run-1", TriggeredBy: "scheduler", AsOf: asOf, Sequence: detection.NewCounterSequence(1000001)}
}

func TestOrchestrator_RunScenario(t *testing.T) {
	h := newHarness(t, newRefs("TS_SCN_01"), stubRegistry())

	out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.Alerts)

	require.Len(t, h.sink.results, 2)
	first := h.sink.results[0]
	require.Len(t, first.Alerts, 1)
	assert.Equal(t, "1000001", first.Alerts[0].ID)
	assert.Equal(t, "1000002", h.sink.results[1].Alerts[0].ID)
	assert.Len(t, first.Memberships, 2)
	assert.Equal(t, []domain.AlertEntity{{AlertID: "1000001", AccountID: "A1", CustomerID: "C1"}}, first.Entities)

	score := first.Alerts[0].Score
	require.NotNil(t, score)
	// threshold 0.6 * 10 plus prior NEW 0.2 * 30
	assert.Equal(t, 12.0, score.Composite)
	assert.Equal(t, domain.PriorityLow, score.Priority)
	assert.False(t, score.AutoClose)

	assert.Empty(t, h.sink.investigations)
	assert.Equal(t, 2, h.events.alerts)
}

func TestOrchestrator_AutoClosure(t *testing.T) {
	refs := newRefs("TS_SCN_01")
	refs.priors = []domain.PriorAlert{{
		AlertID:     "900",
		CustomerID:  "C1",
		ScenarioID:  "TS_SCN_01",
		Status:      domain.AlertStatusClosed,
		AutoReason:  domain.FalsePositiveReason,
		CreatedDate: asOf.AddDate(0, -1, 0),
	}}
	h := newHarness(t, refs, stubRegistry(), WithNarrator(fakeNarrator{}))

	out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
	require.NoError(t, out.Err)

	a := h.sink.results[0].Alerts[0]
	require.True(t, a.IsAutoClosed())
	assert.Equal(t, domain.PriorityAutoClosure, a.Score.Priority)
	assert.Equal(t, 8.0, a.Score.Composite)
	assert.Equal(t, 1, a.PrevMatchCount)
	assert.Equal(t, 1, a.PrevMatchCountScenario)

	assert.False(t, h.sink.results[1].Alerts[0].IsAutoClosed())

	require.Len(t, h.sink.investigations, 1)
	inv := h.sink.investigations[0]
	assert.Equal(t, int64(1), inv.AlertID)
	assert.Equal(t, "1000001", inv.TransientID)
	assert.Equal(t, "closed alert 1000001", inv.Narrative)
	assert.Equal(t, "scheduler", inv.LastModifiedBy)
	assert.Equal(t, asOf.AddDate(0, 1, 0), inv.DueDate)
}

func TestOrchestrator_NarrativeFailureStillCloses(t *testing.T) {
	refs := newRefs("TS_SCN_01")
	refs.priors = []domain.PriorAlert{{AlertID: "900", CustomerID: "C2", Status: domain.AlertStatusClosed, AutoReason: domain.FalsePositiveReason, CreatedDate: asOf}}
	h := newHarness(t, refs, stubRegistry(), WithNarrator(fakeNarrator{err: errors.New("unavailable")}))

	out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
	require.NoError(t, out.Err)
	require.Len(t, h.sink.investigations, 1)
	assert.Equal(t, "1000002", h.sink.investigations[0].TransientID)
	assert.Empty(t, h.sink.investigations[0].Narrative)
}

func TestOrchestrator_PriorHistoryFailureDegrades(t *testing.T) {
	refs := newRefs("TS_SCN_01")
	refs.priorErr = errors.New("connection refused")
	h := newHarness(t, refs, stubRegistry())

	out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.Alerts)
	assert.Empty(t, h.sink.investigations)
}

func TestOrchestrator_Failures(t *testing.T) {
	t.Run("panic is contained", func(t *testing.T) {
		h := newHarness(t, newRefs("TS_SCN_12"), stubRegistry())
		out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_12")
		require.Error(t, out.Err)
		assert.True(t, domain.IsComputationError(out.Err))
		assert.Zero(t, out.Alerts)
	})

	t.Run("unknown scenario", func(t *testing.T) {
		h := newHarness(t, newRefs(), stubRegistry())
		out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_99")
		assert.True(t, domain.IsConfigurationError(out.Err))
	})

	t.Run("missing config", func(t *testing.T) {
		refs := newRefs("TS_SCN_01")
		delete(refs.configs, "TS_SCN_01")
		h := newHarness(t, refs, stubRegistry())
		out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
		assert.True(t, domain.IsConfigurationError(out.Err))
	})

	t.Run("missing thresholds", func(t *testing.T) {
		refs := newRefs("TS_SCN_01")
		delete(refs.thresholds, "TS_SCN_01")
		h := newHarness(t, refs, stubRegistry())
		out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
		assert.True(t, domain.IsConfigurationError(out.Err))
		assert.Empty(t, h.sink.results)
	})

	t.Run("missing threshold score group", func(t *testing.T) {
		refs := newRefs("TS_SCN_01")
		refs.buckets["TS_SCN_01"] = domain.ScoreBuckets{}
		h := newHarness(t, refs, stubRegistry())
		out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
		assert.True(t, domain.IsConfigurationError(out.Err))
		assert.Empty(t, h.sink.results)
	})
}

func TestOrchestrator_LaterPartitionFailureKeepsSavedCount(t *testing.T) {
	h := newHarness(t, newRefs("TS_SCN_01"), stubRegistry())
	h.parts.loadErr = map[string]error{"p1": errors.New("corrupt chunk")}

	out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "partition p1")
	assert.Equal(t, 1, out.Alerts)
	require.Len(t, h.sink.results, 1)

	res := &domain.JobResult{}
	res.Record(out)
	assert.Equal(t, 1, res.TotalAlerts)
	assert.Equal(t, []string{"TS_SCN_01"}, res.FailedScenarios)
}

func TestOrchestrator_NoPartitions(t *testing.T) {
	h := newHarness(t, newRefs("TS_SCN_01"), stubRegistry())
	h.parts.err = domain.NewDataUnavailableError("PARTITIONS_MISSING", "none")

	out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
	require.NoError(t, out.Err)
	assert.Zero(t, out.Alerts)
}

func TestOrchestrator_FiltersBeforeDetection(t *testing.T) {
	refs := newRefs("TS_SCN_01")
	cfg := refs.configs["TS_SCN_01"]
	cfg.Filters = []string{`trxn.customer_id != "C2"`}
	refs.configs["TS_SCN_01"] = cfg
	h := newHarness(t, refs, stubRegistry())

	out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Alerts)
	require.Len(t, h.sink.results, 1)
	assert.Equal(t, []string{"C1"}, h.sink.results[0].Alerts[0].CustomerIDs)
}

func TestOrchestrator_MaxPartitions(t *testing.T) {
	h := newHarness(t, newRefs("TS_SCN_01"), stubRegistry())
	h.orch.pipeline.MaxPartitions = 1

	out := h.orch.RunScenario(context.Background(), newRun(), "TS_SCN_01")
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Alerts)
}
