package scenario

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/detection"
	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/evidence"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
	"github.com/banking/txn-monitoring-service/internal/scoring"
)

const tracerName = "github.com/banking/txn-monitoring-service/internal/scenario"

// ReferenceProvider resolves the reference data of a scenario
type ReferenceProvider interface {
	ScenarioConfig(ctx context.Context, scenarioID string) (domain.ScenarioConfig, error)
	Thresholds(ctx context.Context, scenarioID string) (domain.ThresholdSet, error)
	ScoreBuckets(ctx context.Context, scenarioID string) (domain.ScoreBuckets, error)
	CountryFlags(ctx context.Context) (map[string]bool, error)
	scoring.PriorAlertSource
}

// PartitionSource reads the transaction partitions written by the bulk fetch
type PartitionSource interface {
	Partitions(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) ([]domain.Transaction, error)
}

// Result is everything persisted for one partition of a scenario
type Result struct {
	Scenario    domain.ScenarioConfig
	Alerts      []*domain.Alert
	Memberships []domain.AlertTransaction
	Evidence    []domain.EvidenceBundle
	Entities    []domain.AlertEntity
}

// Sink persists scenario results. Persist returns the durable id assigned to
// each transient alert id.
type Sink interface {
	Persist(ctx context.Context, r Result) (map[string]int64, error)
	SaveInvestigations(ctx context.Context, investigations []*domain.Investigation) error
}

// Narrator writes the free-text narrative of an auto-closed alert
type Narrator interface {
	Generate(ctx context.Context, facts domain.NarrativeFacts) (string, error)
}

// EventPublisher announces alerts and finished jobs
type EventPublisher interface {
	PublishAlerts(ctx context.Context, alerts []*domain.Alert, durableIDs map[string]int64) error
	PublishJobCompleted(ctx context.Context, result *domain.JobResult) error
}

// Recorder receives pipeline measurements
type Recorder interface {
	ScenarioRun(scenarioID string, ok bool, d time.Duration)
	AlertsScored(scenarioID string, alerts []*domain.Alert)
	Narrative(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ScenarioRun(string, bool, time.Duration) {}

func (nopRecorder) AlertsScored(string, []*domain.Alert) {}

func (nopRecorder) Narrative(bool) {}

// Run identifies one job execution shared by all of its scenarios
type Run struct {
	JobID       string
	JobName     string
	RunID       string
	TriggeredBy string
	AsOf        time.Time
	Sequence    detection.Sequence
}

// Orchestrator runs scenarios end to end: filter, detect, gather evidence,
// score, persist
type Orchestrator struct {
	refs       ReferenceProvider
	partitions PartitionSource
	sink       Sink
	narrator   Narrator
	events     EventPublisher
	metrics    Recorder
	registry   *Registry

	pipeline config.PipelineConfig
	scoring  config.ScoringConfig

	tracer trace.Tracer
	log    *logger.Logger
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithNarrator enables narratives for auto-closed alerts
func WithNarrator(n Narrator) Option {
	return func(o *Orchestrator) { o.narrator = n }
}

// WithEvents enables alert events
func WithEvents(p EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.metrics = r
		}
	}
}

// NewOrchestrator creates a scenario orchestrator
func NewOrchestrator(
	refs ReferenceProvider,
	partitions PartitionSource,
	sink Sink,
	registry *Registry,
	pipeline config.PipelineConfig,
	scoringCfg config.ScoringConfig,
	log *logger.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		refs:       refs,
		partitions: partitions,
		sink:       sink,
		registry:   registry,
		metrics:    nopRecorder{},
		pipeline:   pipeline,
		scoring:    scoringCfg,
		tracer:     otel.Tracer(tracerName),
		log:        log.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// scenarioRefs is the resolved configuration of one scenario run
type scenarioRefs struct {
	cfg        domain.ScenarioConfig
	thresholds domain.ThresholdSet
	buckets    domain.ScoreBuckets
	flags      scoring.CountryFlags
	entry      Entry
	filter     *Filter
	composer   *scoring.Composer
}

// RunScenario runs one scenario. Errors and panics are contained in the
// returned outcome so the caller can carry on with the next scenario.
func (o *Orchestrator) RunScenario(ctx context.Context, run Run, scenarioID string) (out domain.ScenarioOutcome) {
	start := time.Now()
	out.ScenarioID = scenarioID

	ctx = context.WithValue(ctx, logger.ScenarioIDKey, scenarioID)
	ctx, span := o.tracer.Start(ctx, "scenario.run", trace.WithAttributes(
		attribute.String("job.id", run.JobID),
		attribute.String("scenario.id", scenarioID),
	))
	defer span.End()

	log := o.log.WithScenario(run.JobID, scenarioID)

	defer func() {
		if r := recover(); r != nil {
			out.Err = domain.NewComputationError("SCENARIO_PANIC",
				fmt.Sprintf("scenario %s panicked: %v", scenarioID, r))
		}
		out.Duration = time.Since(start)
		o.metrics.ScenarioRun(scenarioID, out.Err == nil, out.Duration)

		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
			log.ScenarioFailed(scenarioID, out.Err)
			return
		}
		span.SetAttributes(attribute.Int("scenario.alerts", out.Alerts))
		log.ScenarioCompleted(scenarioID, out.Alerts, out.Duration.Milliseconds())
	}()

	out.Err = o.runScenario(ctx, run, scenarioID, log, &out.Alerts)
	return out
}

// runScenario processes every partition. saved counts the alerts the sink
// has accepted so far and stays accurate when a later partition fails.
func (o *Orchestrator) runScenario(ctx context.Context, run Run, scenarioID string, log *logger.Logger, saved *int) error {
	refs, err := o.prepare(ctx, scenarioID)
	if err != nil {
		return err
	}
	if refs.cfg.JobID == "" {
		refs.cfg.JobID = run.JobID
		refs.cfg.JobName = run.JobName
	}

	names, err := o.partitions.Partitions(ctx)
	if err != nil {
		if domain.IsDataUnavailableError(err) {
			log.Info("no transaction partitions available", zap.String("scenario_id", scenarioID))
			return nil
		}
		return err
	}
	if limit := o.pipeline.MaxPartitions; limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	log.ScenarioStarted(scenarioID, len(names))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := o.runPartition(ctx, run, refs, name, log)
		*saved += n
		if err != nil {
			return fmt.Errorf("partition %s: %w", name, err)
		}
	}
	return nil
}

// prepare resolves the scenario's reference data concurrently
func (o *Orchestrator) prepare(ctx context.Context, scenarioID string) (*scenarioRefs, error) {
	refs := &scenarioRefs{}

	entry, err := o.registry.Lookup(scenarioID)
	if err != nil {
		return nil, err
	}
	refs.entry = entry

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cfg, err := o.refs.ScenarioConfig(gctx, scenarioID)
		if err != nil {
			if domain.IsDataUnavailableError(err) {
				return domain.NewConfigurationError("SCENARIO_CONFIG_MISSING",
					fmt.Sprintf("scenario %s is not configured", scenarioID)).WithCause(err)
			}
			return err
		}
		refs.cfg = cfg
		return nil
	})

	g.Go(func() error {
		t, err := o.refs.Thresholds(gctx, scenarioID)
		if err != nil && !domain.IsDataUnavailableError(err) {
			return err
		}
		if t.Empty() {
			return domain.NewConfigurationError("THRESHOLDS_MISSING",
				fmt.Sprintf("scenario %s: no thresholds configured", scenarioID))
		}
		refs.thresholds = t
		return nil
	})

	g.Go(func() error {
		b, err := o.refs.ScoreBuckets(gctx, scenarioID)
		if err != nil && !domain.IsDataUnavailableError(err) {
			return err
		}
		refs.buckets = b
		return nil
	})

	g.Go(func() error {
		flags, err := o.refs.CountryFlags(gctx)
		if err != nil && !domain.IsDataUnavailableError(err) {
			return err
		}
		refs.flags = flags
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if refs.cfg.ID == "" {
		refs.cfg.ID = scenarioID
	}
	if refs.filter, err = NewFilter(scenarioID, refs.cfg.ActiveFilters()); err != nil {
		return nil, err
	}

	thresholdCfg, err := scoring.ThresholdScoringFor(o.scoring, scenarioID)
	if err != nil {
		return nil, err
	}
	refs.composer = scoring.NewComposer(scoring.NewThresholdScorer(thresholdCfg), o.scoring.AutoCloseMaxScore, o.log)
	return refs, nil
}

func (o *Orchestrator) runPartition(ctx context.Context, run Run, refs *scenarioRefs, name string, log *logger.Logger) (int, error) {
	txs, err := o.partitions.Load(ctx, name)
	if err != nil {
		return 0, err
	}
	txs, err = refs.filter.Apply(txs)
	if err != nil {
		return 0, err
	}
	if len(txs) == 0 {
		return 0, nil
	}

	_, span := o.tracer.Start(ctx, "scenario.detect")
	alerts, err := refs.entry.Detector.Detect(detection.Input{
		AsOf:         run.AsOf,
		Scenario:     refs.cfg,
		Thresholds:   refs.thresholds,
		Transactions: txs,
		Sequence:     run.Sequence,
	})
	span.SetAttributes(attribute.Int("alerts", len(alerts)))
	span.End()
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	memberships := Memberships(alerts)

	bundles, err := refs.entry.Assembler.Assemble(evidence.Input{
		AsOf:         run.AsOf,
		Scenario:     refs.cfg,
		Thresholds:   refs.thresholds,
		Alerts:       alerts,
		Transactions: txs,
	})
	if err != nil {
		return 0, err
	}

	entities, err := ExpandEntities(alerts)
	if err != nil {
		return 0, err
	}

	history := o.loadHistory(ctx, run, refs.cfg.Focus, entities, log)
	if err := o.score(ctx, refs, alerts, txs, history); err != nil {
		return 0, err
	}

	autoClosed := 0
	for _, a := range alerts {
		a.PrevMatchCount, a.PrevMatchCountScenario = history.MatchCounts(a.ID, refs.cfg.ID)
		a.Attributes = a.Attributes.Only(refs.cfg.DisplayAttributes)
		if a.IsAutoClosed() {
			autoClosed++
		}
	}
	o.metrics.AlertsScored(refs.cfg.ID, alerts)

	ctx, span = o.tracer.Start(ctx, "scenario.persist")
	defer span.End()

	durable, err := o.sink.Persist(ctx, Result{
		Scenario:    refs.cfg,
		Alerts:      alerts,
		Memberships: memberships,
		Evidence:    bundles,
		Entities:    entities,
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if autoClosed > 0 {
		if err := o.closeAutomatically(ctx, run, alerts, durable, log); err != nil {
			span.RecordError(err)
			return len(alerts), err
		}
	}

	if o.events != nil {
		if err := o.events.PublishAlerts(ctx, alerts, durable); err != nil {
			log.Warn("failed to publish alert events", logger.ErrorField(err))
		}
	}

	log.AlertsDetected(refs.cfg.ID, name, len(alerts), autoClosed)
	return len(alerts), nil
}

// loadHistory fetches prior alerts. Without them no alert can auto-close,
// so a failed lookup degrades to an empty history.
func (o *Orchestrator) loadHistory(
	ctx context.Context,
	run Run,
	focus domain.ScenarioFocus,
	entities []domain.AlertEntity,
	log *logger.Logger,
) *scoring.PriorHistory {
	months := o.pipeline.PriorAlertLookbackMonths
	if months <= 0 {
		months = 9
	}
	since := domain.Day(run.AsOf).AddDate(0, -months, 0)

	history, err := scoring.LoadPriorHistory(ctx, o.refs, focus, entities, since)
	if err != nil {
		log.Warn("prior alert history unavailable, scoring without it", logger.ErrorField(err))
		return scoring.NewPriorHistory(focus, entities, nil)
	}
	return history
}

func (o *Orchestrator) score(
	ctx context.Context,
	refs *scenarioRefs,
	alerts []*domain.Alert,
	txs []domain.Transaction,
	history *scoring.PriorHistory,
) error {
	_, span := o.tracer.Start(ctx, "scenario.score")
	defer span.End()

	index := make(map[string]domain.Transaction, len(txs))
	for _, tx := range txs {
		index[tx.ID] = tx
	}

	err := refs.composer.Score(scoring.Batch{
		Scenario:     refs.cfg,
		Thresholds:   refs.thresholds,
		Buckets:      refs.buckets,
		Alerts:       alerts,
		Transactions: index,
		History:      history,
		CountryFlags: refs.flags,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// closeAutomatically writes the investigation record of every auto-closed
// alert. Narratives are best effort.
func (o *Orchestrator) closeAutomatically(
	ctx context.Context,
	run Run,
	alerts []*domain.Alert,
	durable map[string]int64,
	log *logger.Logger,
) error {
	var investigations []*domain.Investigation
	for _, a := range alerts {
		if !a.IsAutoClosed() {
			continue
		}
		inv := domain.NewAutoCloseInvestigation(a, durable[a.ID], run.TriggeredBy)

		if o.narrator != nil {
			text, err := o.narrator.Generate(ctx, domain.NewNarrativeFacts(a))
			o.metrics.Narrative(err == nil)
			if err != nil {
				log.NarrativeFailed(a.ID, err)
			} else {
				inv.Narrative = text
			}
		}
		investigations = append(investigations, inv)
	}
	return o.sink.SaveInvestigations(ctx, investigations)
}
