package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// JobRunner executes a detection job
type JobRunner interface {
	Run(ctx context.Context, req domain.JobRequest) (*domain.JobResult, error)
}

// CacheInvalidator drops cached reference data of a scenario
type CacheInvalidator interface {
	Invalidate(ctx context.Context, scenarioID string) error
}

// Check is a readiness probe of one dependency
type Check func(ctx context.Context) error

// ErrorResponse is the body of a rejected request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the job trigger and operational endpoints
type Handler struct {
	runner     JobRunner
	validate   *validator.Validate
	jobTimeout time.Duration
	checks     map[string]Check
	cache      CacheInvalidator
	log        *logger.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithCheck adds a readiness probe
func WithCheck(name string, check Check) HandlerOption {
	return func(h *Handler) { h.checks[name] = check }
}

// WithCache enables the cache invalidation route
func WithCache(c CacheInvalidator) HandlerOption {
	return func(h *Handler) { h.cache = c }
}

// NewHandler creates the API handler
func NewHandler(runner JobRunner, jobTimeout time.Duration, log *logger.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		runner:     runner,
		validate:   validator.New(),
		jobTimeout: jobTimeout,
		checks:     make(map[string]Check),
		log:        log.Named("api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes. Routes under /api go through the given middleware.
func (h *Handler) Register(e *echo.Echo, apiMiddleware ...echo.MiddlewareFunc) {
	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)

	g := e.Group("/api", apiMiddleware...)
	g.POST("/execute_pipeline", h.ExecutePipeline)
	if h.cache != nil {
		g.DELETE("/cache/scenarios/:id", h.InvalidateScenario)
	}
}

// ExecutePipeline runs a detection job synchronously
func (h *Handler) ExecutePipeline(c echo.Context) error {
	var req domain.JobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing required fields"})
	}
	req.JobID = strings.TrimSpace(req.JobID)
	req.TriggeredBy = strings.TrimSpace(req.TriggeredBy)
	if err := h.validate.Struct(req); err != nil {
		h.log.Debug("trigger request rejected", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing required fields"})
	}

	reqLog := h.log.WithContext(c.Request().Context())
	reqLog.Info("pipeline requested",
		zap.String("job_id", req.JobID),
		zap.Strings("scenarios", req.ScenarioIDs),
		zap.String("triggered_by", req.TriggeredBy),
		zap.Bool("manual", req.Manual()),
	)

	ctx := c.Request().Context()
	if h.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.jobTimeout)
		defer cancel()
	}

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		reqLog.Error("pipeline execution failed", zap.String("job_id", req.JobID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, failureResponse(req, result, err))
	}
	return c.JSON(http.StatusOK, result.ToResponse())
}

func failureResponse(req domain.JobRequest, result *domain.JobResult, err error) domain.JobResponse {
	failed := req.ScenarioIDs
	if result != nil && len(result.FailedScenarios) > 0 {
		failed = result.FailedScenarios
	}
	return domain.JobResponse{
		Status:           "error",
		Message:          fmt.Sprintf("Error - %s", err),
		TotalAlerts:      0,
		SuccessScenarios: []string{},
		FailedScenarios:  failed,
		ManualJob:        req.Manual(),
	}
}

// Health reports liveness
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether every dependency answers
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := map[string]interface{}{"status": "ready", "checks": results}
	if status != http.StatusOK {
		body["status"] = "not ready"
	}
	return c.JSON(status, body)
}

// InvalidateScenario drops the cached thresholds and score buckets of a scenario
func (h *Handler) InvalidateScenario(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "scenario id is required"})
	}
	if err := h.cache.Invalidate(c.Request().Context(), id); err != nil {
		h.log.Error("cache invalidation failed", zap.String("scenario_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "cache invalidation failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
