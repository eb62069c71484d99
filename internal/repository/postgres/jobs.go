package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// JobStore maintains the job-monitor table
type JobStore struct {
	db *pgxpool.Pool
}

// NewJobStore creates a job store
func NewJobStore(db *pgxpool.Pool) *JobStore {
	return &JobStore{db: db}
}

// MarkRunning records a new run of the job and returns the job's name.
// Unknown jobs are registered under their id.
func (s *JobStore) MarkRunning(ctx context.Context, jobID, runID string) (string, error) {
	var name string
	err := s.db.QueryRow(ctx, `
		INSERT INTO ts_job_run (job_id, job_name, run_id, status_id, started_at, updated_at)
		VALUES ($1, $1, $2, $3, NOW(), NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			status_id = EXCLUDED.status_id,
			job_desc = NULL,
			started_at = NOW(),
			updated_at = NOW()
		RETURNING job_name
	`, jobID, runID, int(domain.JobStatusRunning)).Scan(&name)
	if err != nil {
		return "", domain.NewIntegrationError("JOB_MONITOR_FAILED", "failed to mark job running").WithCause(err)
	}
	return name, nil
}

// MarkFinished stores the final status and summary of the job
func (s *JobStore) MarkFinished(ctx context.Context, jobID string, status domain.JobStatus, description string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ts_job_run
		SET status_id = $2, job_desc = $3, updated_at = NOW()
		WHERE job_id = $1
	`, jobID, int(status), description)
	if err != nil {
		return domain.NewIntegrationError("JOB_MONITOR_FAILED", "failed to mark job finished").WithCause(err)
	}
	return nil
}
