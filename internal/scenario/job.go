package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/detection"
	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/ingest"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// Fetcher materializes the transaction partitions of a run
type Fetcher interface {
	Fetch(ctx context.Context) (ingest.Report, error)
}

// JobMonitor tracks job status in the job-monitor table. MarkRunning returns
// the job's display name.
type JobMonitor interface {
	MarkRunning(ctx context.Context, jobID, runID string) (string, error)
	MarkFinished(ctx context.Context, jobID string, status domain.JobStatus, description string) error
}

// JobRunner executes a triggered job: fetch, then every scenario in turn
type JobRunner struct {
	orchestrator *Orchestrator
	fetcher      Fetcher
	monitor      JobMonitor
	events       EventPublisher
	pipeline     config.PipelineConfig
	now          func() time.Time

	tracer trace.Tracer
	log    *logger.Logger
}

// NewJobRunner creates a job runner. events may be nil.
func NewJobRunner(
	orchestrator *Orchestrator,
	fetcher Fetcher,
	monitor JobMonitor,
	events EventPublisher,
	pipeline config.PipelineConfig,
	log *logger.Logger,
) *JobRunner {
	return &JobRunner{
		orchestrator: orchestrator,
		fetcher:      fetcher,
		monitor:      monitor,
		events:       events,
		pipeline:     pipeline,
		now:          time.Now,
		tracer:       otel.Tracer(tracerName),
		log:          log.Named("job_runner"),
	}
}

// scenarioIDs trims and de-duplicates the requested scenarios, keeping order
func scenarioIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Run executes the job. A non-nil error means the job could not reach its
// scenarios at all; every requested scenario is then reported failed.
func (r *JobRunner) Run(ctx context.Context, req domain.JobRequest) (*domain.JobResult, error) {
	ids := scenarioIDs(req.ScenarioIDs)
	result := &domain.JobResult{
		JobID:     req.JobID,
		RunID:     uuid.NewString(),
		Manual:    req.Manual(),
		StartedAt: r.now(),
	}

	ctx = context.WithValue(ctx, logger.JobIDKey, req.JobID)
	ctx, span := r.tracer.Start(ctx, "job.run", trace.WithAttributes(
		attribute.String("job.id", req.JobID),
		attribute.String("job.run_id", result.RunID),
		attribute.StringSlice("job.scenarios", ids),
		attribute.Bool("job.manual", result.Manual),
	))
	defer span.End()

	log := r.log.WithContext(ctx)
	log.JobStarted(req.JobID, result.RunID, ids, result.Manual)

	jobName, err := r.monitor.MarkRunning(ctx, req.JobID, result.RunID)
	if err != nil {
		log.Warn("failed to mark job running", logger.ErrorField(err))
		jobName = req.JobID
	}

	asOf, err := r.pipeline.AsOfDate(r.now())
	if err != nil {
		err = domain.NewConfigurationError("AS_OF_INVALID", "pipeline.as_of is not a date").WithCause(err)
		return r.abort(ctx, span, result, ids, err), err
	}

	report, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return r.abort(ctx, span, result, ids, fmt.Errorf("bulk fetch: %w", err)), err
	}
	log.Info("transaction partitions ready",
		zap.Int("partitions", len(report.Partitions)),
		zap.Ints("failed_batches", report.FailedBatches),
	)

	run := Run{
		JobID:       req.JobID,
		JobName:     jobName,
		RunID:       result.RunID,
		TriggeredBy: req.TriggeredBy,
		AsOf:        asOf,
		Sequence:    detection.NewCounterSequence(r.pipeline.AlertIDStart),
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			result.Record(domain.ScenarioOutcome{ScenarioID: id, Err: ctx.Err()})
			continue
		}
		result.Record(r.orchestrator.RunScenario(ctx, run, id))
	}

	r.finish(ctx, span, result)
	return result, nil
}

// abort reports every scenario failed after a job-level error
func (r *JobRunner) abort(ctx context.Context, span trace.Span, result *domain.JobResult, ids []string, err error) *domain.JobResult {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.log.WithContext(ctx).Error("job aborted", zap.String("job_id", result.JobID), logger.ErrorField(err))

	for _, id := range ids {
		result.Record(domain.ScenarioOutcome{ScenarioID: id, Err: err})
	}
	r.finish(ctx, span, result)
	return result
}

func (r *JobRunner) finish(ctx context.Context, span trace.Span, result *domain.JobResult) {
	result.CompletedAt = r.now()
	span.SetAttributes(
		attribute.Int("job.total_alerts", result.TotalAlerts),
		attribute.Int("job.failed_scenarios", len(result.FailedScenarios)),
	)

	// Status updates must outlive a cancelled request
	bg := context.WithoutCancel(ctx)
	if err := r.monitor.MarkFinished(bg, result.JobID, result.Status(), result.Summary()); err != nil {
		r.log.Warn("failed to update job monitor", zap.String("job_id", result.JobID), logger.ErrorField(err))
	}
	if r.events != nil {
		if err := r.events.PublishJobCompleted(bg, result); err != nil {
			r.log.Warn("failed to publish job event", zap.String("job_id", result.JobID), logger.ErrorField(err))
		}
	}

	r.log.JobCompleted(result.JobID, result.TotalAlerts, result.FailedScenarios,
		result.CompletedAt.Sub(result.StartedAt).Milliseconds())
}
