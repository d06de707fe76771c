// Package queue implements the durable job pipeline: the job record store
// with its atomic claim semantics, the polling dispatcher, and the handlers
// that translate job payloads into agent invocations.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// Store is the job record store. All job mutation in the system goes through
// its state-transition operations; every operation is a single atomic SQL
// statement so concurrent pollers need no coordination beyond the database.
type Store struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
}

func NewStore(sql infra.SQLExecutor, logger zerolog.Logger) *Store {
	return &Store{sql: sql, logger: logger}
}

// EnqueueParams describes a job to enqueue. ParentJobID links a pack child to
// the pack job that enqueued it; standalone jobs leave it empty.
type EnqueueParams struct {
	Type        domain.JobType
	Payload     any
	OwnerID     string
	ProjectID   string
	ParentJobID string
	MaxRetries  int
}

// Enqueue inserts a pending job and returns its id.
func (s *Store) Enqueue(ctx context.Context, params EnqueueParams) (string, error) {
	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	row := s.sql.QueryRow(ctx, sqlinline.QEnqueueJob, string(params.Type), payload, maxRetries, params.OwnerID, params.ProjectID, params.ParentJobID)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// EnqueueChild enqueues one child job of a pack run with the default retry
// budget, linked to its parent pack job.
func (s *Store) EnqueueChild(ctx context.Context, t domain.JobType, payload any, ownerID, projectID, parentJobID string) (string, error) {
	return s.Enqueue(ctx, EnqueueParams{Type: t, Payload: payload, OwnerID: ownerID, ProjectID: projectID, ParentJobID: parentJobID})
}

// ClaimNext atomically claims the oldest pending job, transitioning it to
// processing and stamping processed_at. Returns domain.ErrNoJob when the
// queue has no eligible job; that is not a failure.
func (s *Store) ClaimNext(ctx context.Context) (*domain.Job, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QClaimNextJob)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJob
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// MarkProcessing re-stamps processed_at for a handler that re-enters a job it
// already holds. Idempotent; a no-op outside the processing state.
func (s *Store) MarkProcessing(ctx context.Context, jobID string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QMarkJobProcessing, jobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	return nil
}

// MarkCompleted transitions processing -> completed, stamping completed_at
// exactly once. A job not currently processing yields ErrInvalidTransition so
// a double completion can never corrupt the timestamp.
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QMarkJobCompleted, jobID)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn().Str("job_id", jobID).Msg("queue: completion of non-processing job ignored")
		return domain.ErrInvalidTransition
	}
	return nil
}

// MarkFailed records a failed attempt. With budget remaining the job is
// re-queued as pending with retry_count incremented; once the budget is
// exhausted it lands in terminal failed. The resulting status is returned so
// the dispatcher can notify terminal observers.
func (s *Store) MarkFailed(ctx context.Context, jobID, reason string) (domain.JobStatus, error) {
	return s.failWith(ctx, sqlinline.QMarkJobFailed, jobID, reason)
}

// MarkFailedFinal terminally fails a job regardless of remaining budget. Used
// for failures classified as permanent (validation, content policy), which
// retrying cannot fix.
func (s *Store) MarkFailedFinal(ctx context.Context, jobID, reason string) (domain.JobStatus, error) {
	return s.failWith(ctx, sqlinline.QMarkJobFailedFinal, jobID, reason)
}

func (s *Store) failWith(ctx context.Context, query, jobID, reason string) (domain.JobStatus, error) {
	row := s.sql.QueryRow(ctx, query, jobID, reason)
	var (
		status     domain.JobStatus
		retryCount int
	)
	if err := row.Scan(&status, &retryCount); err != nil {
		if infra.IsNoRows(err) {
			s.logger.Warn().Str("job_id", jobID).Msg("queue: failure of non-processing job ignored")
			return "", domain.ErrInvalidTransition
		}
		return "", fmt.Errorf("mark job failed: %w", err)
	}
	s.logger.Info().
		Str("job_id", jobID).
		Str("status", string(status)).
		Int("retry_count", retryCount).
		Str("reason", reason).
		Msg("queue: job attempt failed")
	return status, nil
}

// GetByID fetches a job by its identifier.
func (s *Store) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QGetJob, jobID)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// CountActiveForOwner returns the owner's pending and processing job counts,
// the projection the UI polls.
func (s *Store) CountActiveForOwner(ctx context.Context, ownerID string) (pending, processing int, err error) {
	row := s.sql.QueryRow(ctx, sqlinline.QCountActiveJobsForOwner, ownerID)
	if err := row.Scan(&pending, &processing); err != nil {
		return 0, 0, fmt.Errorf("count active jobs: %w", err)
	}
	return pending, processing, nil
}

// CountActiveForProject counts non-terminal jobs tied to a project,
// including pack jobs. This is the API's duplicate-request guard.
func (s *Store) CountActiveForProject(ctx context.Context, projectID string) (int, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QCountActiveJobsForProject, projectID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count project jobs: %w", err)
	}
	return n, nil
}

// CountActiveSiblings counts a project's non-terminal non-pack jobs that do
// not belong to the given pack run. This is the orchestrator's duplicate
// guard: a fresh fanout must not race standalone jobs or an earlier run's
// children, while its own already-enqueued children never block a resume.
func (s *Store) CountActiveSiblings(ctx context.Context, projectID, excludeParentJobID string) (int, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QCountActiveSiblingJobs, projectID, excludeParentJobID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count sibling jobs: %w", err)
	}
	return n, nil
}

// ListChildren returns every child of a pack run, any status, oldest first.
func (s *Store) ListChildren(ctx context.Context, parentJobID string) ([]domain.Job, error) {
	jobs, err := s.listJobs(ctx, sqlinline.QListPackChildren, parentJobID)
	if err != nil {
		return nil, fmt.Errorf("list pack children: %w", err)
	}
	return jobs, nil
}

// ListForProject returns all jobs tied to a project, oldest first.
func (s *Store) ListForProject(ctx context.Context, projectID string) ([]domain.Job, error) {
	jobs, err := s.listJobs(ctx, sqlinline.QListJobsForProject, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) listJobs(ctx context.Context, query, arg string) ([]domain.Job, error) {
	rows, err := s.sql.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ReclaimStuck requeues jobs stranded in processing longer than olderThan
// (worker crash mid-handler), burning one retry attempt each. Returns the
// number of jobs swept.
func (s *Store) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	rows, err := s.sql.Query(ctx, sqlinline.QReclaimStuckJobs, interval)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck jobs: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return count, fmt.Errorf("scan reclaimed job: %w", err)
		}
		s.logger.Warn().Str("job_id", id).Msg("queue: reclaimed stuck job")
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("reclaim stuck jobs: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	if err := row.Scan(
		&j.ID,
		&j.Type,
		&j.Status,
		&j.Payload,
		&j.RetryCount,
		&j.MaxRetries,
		&j.ErrorMessage,
		&j.OwnerID,
		&j.ProjectID,
		&j.ParentJobID,
		&j.CreatedAt,
		&j.ProcessedAt,
		&j.CompletedAt,
	); err != nil {
		return nil, err
	}
	// Ensure payload bytes are not aliased to the driver's buffer.
	j.Payload = append(json.RawMessage(nil), j.Payload...)
	return &j, nil
}
