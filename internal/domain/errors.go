package domain

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned when a conversation is unknown or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrSinkClosed is returned by a Sink once its destination is gone.
	ErrSinkClosed = errors.New("sink closed")

	// ErrPolicyDenied is returned when the admission policy rejects a turn.
	ErrPolicyDenied = errors.New("denied by policy")

	// ErrInvalidInput is returned for requests that fail validation.
	ErrInvalidInput = errors.New("invalid input")
)
