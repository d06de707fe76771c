// Package agent defines the uniform execution contract implemented by every
// AI generation routine. The indirection lets job handlers and the pack
// orchestrator treat image synthesis and structured content generation
// identically for validation, retry classification and credit accounting.
package agent

import (
	"context"
	"time"
)

// Invocation carries per-call metadata into an agent. It is ephemeral: owned
// by the call that creates it, surfaced only in logs, never persisted.
type Invocation struct {
	UserID    string
	ProjectID string
	JobID     string
	Metadata  map[string]any
	CreatedAt time.Time
}

// NewInvocation builds an invocation context for one agent call.
func NewInvocation(userID, projectID, jobID string) *Invocation {
	return &Invocation{
		UserID:    userID,
		ProjectID: projectID,
		JobID:     jobID,
		Metadata:  map[string]any{},
		CreatedAt: time.Now(),
	}
}

// DefaultRetryCeiling bounds the default retry-eligibility heuristic.
const DefaultRetryCeiling = 3

// Agent is the capability set every generation routine exposes. Process must
// be safe to invoke directly, not only through the queue.
type Agent[I, O any] interface {
	Name() string
	Process(ctx context.Context, input I, inv *Invocation) Result[O]
	Validate(input I) []FieldError
	ShouldRetry(input I, procErr *Error, attempt int) bool
	CreditsRequired(input I) int
}

// Base supplies the default behaviors: tag-driven validation (accept-all when
// untagged), the transient-error retry heuristic, and zero credit cost.
// Concrete agents embed it and implement Process.
type Base[I any] struct {
	AgentName string
}

func (b Base[I]) Name() string { return b.AgentName }

func (b Base[I]) Validate(input I) []FieldError {
	return ValidateStruct(input)
}

// ShouldRetry retries transient failures below the attempt ceiling and never
// retries validation, policy or contract errors.
func (b Base[I]) ShouldRetry(input I, procErr *Error, attempt int) bool {
	if procErr == nil {
		return false
	}
	if !procErr.Retryable {
		return false
	}
	switch procErr.Code {
	case CodeValidation, CodePolicy, CodeContract:
		return false
	}
	return attempt < DefaultRetryCeiling
}

func (b Base[I]) CreditsRequired(input I) int { return 0 }
