package storage

import "errors"

// Storage errors for append-only stores.
var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClosed is returned when appending to a store after Close.
	ErrClosed = errors.New("store is closed")
)
