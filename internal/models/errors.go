package models

import "errors"

// Error kinds shared by every stage. Callers wrap them with fmt.Errorf("...: %w")
// and the command line maps them back with errors.Is.
var (
	// ErrInvalidInput is returned for empty volumes or unknown method names
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration covers missing models, invalid parameters and cancelled setup
	ErrConfiguration = errors.New("configuration error")

	// ErrInput covers missing images and unreadable or inconsistent stacks
	ErrInput = errors.New("input error")

	// ErrIO covers failures writing results
	ErrIO = errors.New("i/o error")
)
