package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/observability"
)

// Handler executes one claimed job. A returned error marks the attempt
// failed; wrap it with Permanent to bypass the retry budget.
type Handler func(ctx context.Context, job *domain.Job) error

// TerminalObserver is notified when a job reaches a terminal state. The pack
// aggregator uses it to keep parent project status consistent.
type TerminalObserver interface {
	JobCompleted(ctx context.Context, job *domain.Job)
	JobFailed(ctx context.Context, job *domain.Job, reason string)
}

// RunResult reports what a single dispatcher invocation did.
type RunResult struct {
	Processed bool
	JobID     string
	Outcome   string
}

// Outcome values for RunResult.
const (
	OutcomeCompleted = "completed"
	OutcomeRequeued  = "requeued"
	OutcomeFailed    = "failed"
)

// Dispatcher claims at most one job per invocation and routes it to the
// registered handler. It holds no state between invocations; running several
// dispatchers concurrently is safe because claiming is atomic in the store.
type Dispatcher struct {
	store    *Store
	handlers map[domain.JobType]Handler
	observer TerminalObserver
	logger   zerolog.Logger
}

func NewDispatcher(store *Store, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		handlers: make(map[domain.JobType]Handler),
		logger:   logger,
	}
}

// Register routes a job type to its handler. Registration happens once at
// startup, before RunOnce is first called.
func (d *Dispatcher) Register(t domain.JobType, h Handler) {
	d.handlers[t] = h
}

// SetObserver installs the terminal-state observer.
func (d *Dispatcher) SetObserver(o TerminalObserver) {
	d.observer = o
}

// RunOnce claims and processes at most one job. Handler errors never
// propagate to the caller: every claimed job leaves this method completed,
// re-queued, or terminally failed.
func (d *Dispatcher) RunOnce(ctx context.Context) RunResult {
	job, err := d.store.ClaimNext(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoJob) {
			d.logger.Error().Err(err).Msg("dispatcher: claim failed")
		}
		return RunResult{Processed: false}
	}

	d.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("retry_count", job.RetryCount).
		Msg("dispatcher: claimed job")

	start := time.Now()
	outcome := d.process(ctx, job)
	observability.ObserveJob(string(job.Type), outcome, time.Since(start))

	return RunResult{Processed: true, JobID: job.ID, Outcome: outcome}
}

func (d *Dispatcher) process(ctx context.Context, job *domain.Job) string {
	handler, ok := d.handlers[job.Type]
	if !ok {
		reason := fmt.Sprintf("%v: %q", domain.ErrUnroutableJobType, job.Type)
		return d.fail(ctx, job, reason, true)
	}

	err := d.invoke(ctx, handler, job)
	if err != nil {
		return d.fail(ctx, job, err.Error(), IsPermanent(err))
	}

	if err := d.store.MarkCompleted(ctx, job.ID); err != nil {
		d.logger.Error().Err(err).Str("job_id", job.ID).Msg("dispatcher: completion failed")
	}
	if d.observer != nil {
		d.observer.JobCompleted(ctx, job)
	}
	return OutcomeCompleted
}

// invoke is the failure boundary around a handler: panics become errors so a
// claimed job can never stay stuck in processing.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (d *Dispatcher) fail(ctx context.Context, job *domain.Job, reason string, permanent bool) string {
	var (
		status domain.JobStatus
		err    error
	)
	if permanent {
		status, err = d.store.MarkFailedFinal(ctx, job.ID, reason)
	} else {
		status, err = d.store.MarkFailed(ctx, job.ID, reason)
	}
	if err != nil {
		d.logger.Error().Err(err).Str("job_id", job.ID).Msg("dispatcher: failure transition failed")
		return OutcomeFailed
	}
	if status == domain.JobStatusFailed {
		if d.observer != nil {
			d.observer.JobFailed(ctx, job, reason)
		}
		return OutcomeFailed
	}
	return OutcomeRequeued
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so the dispatcher terminally fails the job instead
// of consuming retry budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
