package engine

import "errors"

// Sentinel errors returned by Engine operations that act on a single job
// by customerId. The HTTP layer maps each one onto a distinct status code.
var (
	ErrUnknownJob    = errors.New("unknown job")
	ErrCancelled     = errors.New("job cancelled")
	ErrUnauthorized  = errors.New("worker not assigned to job")
	ErrDuplicate     = errors.New("worker already submitted")
	ErrNotReady      = errors.New("job not ready for download")
	ErrValidation    = errors.New("invalid request")
)
