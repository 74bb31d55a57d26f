package session

import "errors"

var (
	// ErrInvalidState is returned on programmer misuse, e.g. starting a
	// session that already started.
	ErrInvalidState = errors.New("session not in a valid state for this operation")

	// ErrNotProfessional is returned when a non-professional subject
	// tries to mark arrival manually.
	ErrNotProfessional = errors.New("only the professional can mark arrival")
)
