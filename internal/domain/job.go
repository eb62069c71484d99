package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the job-monitor status code
type JobStatus int

const (
	JobStatusScheduled JobStatus = 77
	JobStatusRunning   JobStatus = 78
	JobStatusCompleted JobStatus = 79
	JobStatusFailed    JobStatus = 80
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusScheduled:
		return "SCHEDULED"
	case JobStatusRunning:
		return "RUNNING"
	case JobStatusCompleted:
		return "COMPLETED"
	case JobStatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// JobRequest represents a request to execute the detection pipeline
type JobRequest struct {
	JobID       string   `json:"jobId" validate:"required"`
	ScenarioIDs []string `json:"scenarioId" validate:"required,min=1,dive,required"`
	TriggeredBy string   `json:"triggeredBy" validate:"required"`
	IsManual    *bool    `json:"isManual" validate:"required"`
}

// Manual returns the manual flag, false when unset
func (r JobRequest) Manual() bool {
	return r.IsManual != nil && *r.IsManual
}

// ScenarioOutcome records how one scenario of a job ended
type ScenarioOutcome struct {
	ScenarioID string `json:"scenario_id"`
	// Alerts is the number of alerts persisted, also when Err is set
	Alerts   int           `json:"alerts"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Succeeded returns true when the scenario completed without error
func (o ScenarioOutcome) Succeeded() bool {
	return o.Err == nil
}

// JobResult summarizes a pipeline execution
type JobResult struct {
	JobID            string    `json:"job_id"`
	RunID            string    `json:"run_id"`
	TotalAlerts      int       `json:"total_alerts"`
	SuccessScenarios []string  `json:"success_scenarios"`
	FailedScenarios  []string  `json:"failed_scenarios"`
	Manual           bool      `json:"manual_job"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Record adds a scenario outcome to the result. Alerts a failed scenario
// persisted before failing still count toward the total.
func (r *JobResult) Record(o ScenarioOutcome) {
	r.TotalAlerts += o.Alerts
	if o.Succeeded() {
		r.SuccessScenarios = append(r.SuccessScenarios, o.ScenarioID)
		return
	}
	r.FailedScenarios = append(r.FailedScenarios, o.ScenarioID)
}

// AllFailed returns true when no scenario succeeded
func (r *JobResult) AllFailed() bool {
	return len(r.SuccessScenarios) == 0 && len(r.FailedScenarios) > 0
}

// Status returns the final job-monitor status
func (r *JobResult) Status() JobStatus {
	if r.AllFailed() {
		return JobStatusFailed
	}
	return JobStatusCompleted
}

// Summary renders the job-monitor description
func (r *JobResult) Summary() string {
	return fmt.Sprintf("%d alerts found! | Successful scenarios - [%s] | Failed scenarios - [%s]",
		r.TotalAlerts, strings.Join(r.SuccessScenarios, ", "), strings.Join(r.FailedScenarios, ", "))
}

// JobResponse is the trigger endpoint's response body
type JobResponse struct {
	Status           string   `json:"status"`
	Message          string   `json:"message"`
	TotalAlerts      int      `json:"total_alerts"`
	SuccessScenarios []string `json:"success_scenarios"`
	FailedScenarios  []string `json:"failed_scenarios"`
	ManualJob        bool     `json:"manual_job"`
}

// ToResponse converts a JobResult into the trigger response
func (r *JobResult) ToResponse() JobResponse {
	success := r.SuccessScenarios
	if success == nil {
		success = []string{}
	}
	failed := r.FailedScenarios
	if failed == nil {
		failed = []string{}
	}
	return JobResponse{
		Status:           "success",
		Message:          r.Summary(),
		TotalAlerts:      r.TotalAlerts,
		SuccessScenarios: success,
		FailedScenarios:  failed,
		ManualJob:        r.Manual,
	}
}
