package agent

import (
	"fmt"
	"strings"
)

// Error codes shared by every agent. Handlers branch on these, never on
// message text.
const (
	CodeValidation = "VALIDATION_FAILED"
	CodeProvider   = "PROVIDER_ERROR"
	CodePolicy     = "CONTENT_POLICY"
	CodeContract   = "CONTRACT_VIOLATION"
)

// Error is the normalized failure shape every agent produces. No raw error is
// allowed to escape an agent's Process; handlers rely on this structure for
// retry classification and audit.
type Error struct {
	Code      string
	Message   string
	AgentName string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.AgentName, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.AgentName, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Result is the discriminated success/failure union returned by Process.
// Exactly one of Data (Success=true) or Err (Success=false) is meaningful.
type Result[O any] struct {
	Success bool
	Data    O
	Err     *Error
}

// Success builds a successful result.
func Success[O any](data O) Result[O] {
	return Result[O]{Success: true, Data: data}
}

// Failure builds a failed result.
func Failure[O any](err *Error) Result[O] {
	return Result[O]{Err: err}
}

// NewError builds a normalized agent error with an explicit retryability flag.
func NewError(agentName, code, message string, cause error, retryable bool) *Error {
	return &Error{Code: code, Message: message, AgentName: agentName, Retryable: retryable, Cause: cause}
}

// WrapError normalizes a provider error, inferring retryability from its
// transient-failure signature.
func WrapError(agentName, code, message string, cause error) *Error {
	retryable := code != CodeValidation && code != CodePolicy && code != CodeContract && IsTransient(cause)
	return NewError(agentName, code, message, cause, retryable)
}

var transientSignatures = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"service unavailable",
	"too many requests",
	"status 429",
	"status 502",
	"status 503",
	"status 504",
	"unexpected eof",
}

// IsTransient reports whether an error looks like a transient network or
// provider hiccup worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
