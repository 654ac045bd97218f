package entity

import "errors"

// Domain errors for action tokens
var (
	// ErrInvalidActionToken marks a recognized token that cannot be executed.
	// It is recorded per token and never aborts the reply.
	ErrInvalidActionToken = errors.New("invalid action token")
	ErrInvocationNotFound = errors.New("action invocation not found")
)
