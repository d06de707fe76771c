package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrNoJob               = errors.New("no job available")
	ErrInvalidTransition   = errors.New("invalid job state transition")
	ErrUnroutableJobType   = errors.New("no handler registered for job type")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDuplicatePack       = errors.New("pack already in flight for project")
	ErrProviderFailure     = errors.New("provider failure")
)
