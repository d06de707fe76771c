package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Execute runs one agent invocation through the framework guarantees:
// pre-flight validation, panic containment, and a normalized Result on every
// path. An agent that panics or returns a failure without an error has broken
// the framework contract; both are converted to CodeContract results instead
// of crossing into the caller.
func Execute[I, O any](ctx context.Context, a Agent[I, O], input I, inv *Invocation, logger zerolog.Logger) (res Result[O]) {
	if fields := a.Validate(input); len(fields) > 0 {
		err := ValidationError(a.Name(), fields)
		logger.Warn().
			Str("agent", a.Name()).
			Str("job_id", inv.JobID).
			Str("code", err.Code).
			Msg("agent: input rejected")
		return Failure[O](err)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := NewError(a.Name(), CodeContract, fmt.Sprintf("agent panicked: %v", r), nil, false)
			logger.Error().
				Str("agent", a.Name()).
				Str("job_id", inv.JobID).
				Dur("elapsed", time.Since(start)).
				Msgf("agent: panic recovered: %v", r)
			res = Failure[O](err)
		}
	}()

	res = a.Process(ctx, input, inv)

	if !res.Success && res.Err == nil {
		res.Err = NewError(a.Name(), CodeContract, "failure result without error", nil, false)
	}

	evt := logger.Info()
	outcome := "success"
	if !res.Success {
		evt = logger.Warn()
		outcome = res.Err.Code
	}
	evt.
		Str("agent", a.Name()).
		Str("job_id", inv.JobID).
		Str("project_id", inv.ProjectID).
		Str("outcome", outcome).
		Dur("elapsed", time.Since(start)).
		Msg("agent: processed")
	return res
}
