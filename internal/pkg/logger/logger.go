package logger

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with monitoring-specific functionality
type Logger struct {
	*zap.Logger
	serviceName string
}

// ContextKey for request context values
type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	JobIDKey      ContextKey = "job_id"
	ScenarioIDKey ContextKey = "scenario_id"
)

// New creates a new logger instance
func New(serviceName, environment string, debug bool) (*Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	// Add service metadata
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
		"pid":     os.Getpid(),
	}

	zapLogger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}, nil
}

// NewFromZap wraps an existing zap logger, e.g. zaptest.NewLogger in tests
func NewFromZap(z *zap.Logger, serviceName string) *Logger {
	return &Logger{Logger: z, serviceName: serviceName}
}

// Named returns a named sub-logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.Named(name),
		serviceName: l.serviceName,
	}
}

// WithContext returns a logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if jobID, ok := ctx.Value(JobIDKey).(string); ok && jobID != "" {
		fields = append(fields, zap.String("job_id", jobID))
	}
	if scenarioID, ok := ctx.Value(ScenarioIDKey).(string); ok && scenarioID != "" {
		fields = append(fields, zap.String("scenario_id", scenarioID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	return &Logger{
		Logger:      l.With(fields...),
		serviceName: l.serviceName,
	}
}

// WithScenario returns a logger with scenario context
func (l *Logger) WithScenario(jobID, scenarioID string) *Logger {
	return &Logger{
		Logger: l.With(
			zap.String("job_id", jobID),
			zap.String("scenario_id", scenarioID),
		),
		serviceName: l.serviceName,
	}
}

// JobStarted logs the start of a pipeline job
func (l *Logger) JobStarted(jobID, runID string, scenarios []string, manual bool) {
	l.Info("job started",
		zap.String("job_id", jobID),
		zap.String("run_id", runID),
		zap.Strings("scenarios", scenarios),
		zap.Bool("manual", manual),
	)
}

// JobCompleted logs the completion of a pipeline job
func (l *Logger) JobCompleted(jobID string, totalAlerts int, failed []string, durationMs int64) {
	l.Info("job completed",
		zap.String("job_id", jobID),
		zap.Int("total_alerts", totalAlerts),
		zap.Strings("failed_scenarios", failed),
		zap.Int64("duration_ms", durationMs),
	)
}

// ScenarioStarted logs the start of a scenario run
func (l *Logger) ScenarioStarted(scenarioID string, partitions int) {
	l.Info("scenario started",
		zap.String("scenario_id", scenarioID),
		zap.Int("partitions", partitions),
	)
}

// ScenarioCompleted logs the completion of a scenario run
func (l *Logger) ScenarioCompleted(scenarioID string, alerts int, durationMs int64) {
	l.Info("scenario completed",
		zap.String("scenario_id", scenarioID),
		zap.Int("alerts", alerts),
		zap.Int64("duration_ms", durationMs),
	)
}

// ScenarioFailed logs a scenario failure
func (l *Logger) ScenarioFailed(scenarioID string, err error) {
	l.Error("scenario failed",
		zap.String("scenario_id", scenarioID),
		zap.Error(err),
	)
}

// AlertsDetected logs the alerts found in one partition
func (l *Logger) AlertsDetected(scenarioID, partition string, alerts, autoClosed int) {
	l.Info("alerts detected",
		zap.String("scenario_id", scenarioID),
		zap.String("partition", partition),
		zap.Int("alerts", alerts),
		zap.Int("auto_closed", autoClosed),
	)
}

// PartitionLoaded logs a transaction partition read
func (l *Logger) PartitionLoaded(partition string, rows int, durationMs int64) {
	l.Debug("partition loaded",
		zap.String("partition", partition),
		zap.Int("rows", rows),
		zap.Int64("duration_ms", durationMs),
	)
}

// BatchFetchFailed logs a failed bulk-fetch batch
func (l *Logger) BatchFetchFailed(batch int, customers int, err error) {
	l.Warn("batch fetch failed",
		zap.Int("batch", batch),
		zap.Int("customers", customers),
		zap.Error(err),
	)
}

// NarrativeFailed logs a failed narrative request
func (l *Logger) NarrativeFailed(alertID string, err error) {
	l.Warn("narrative generation failed",
		zap.String("alert_id", alertID),
		zap.Error(err),
	)
}

// Helper field functions

// ErrorField creates an error field
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// DurationField creates a duration field
func DurationField(name string, d time.Duration) zap.Field {
	return zap.Duration(name, d)
}
