// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Chat and entity resolution errors.
var (
	// ErrNotFound indicates a chat or entity could not be resolved.
	ErrNotFound = errors.New("not found")
)

// Rate limiting and throttling errors.
var (
	// ErrRateLimited indicates the upstream asked us to slow down.
	ErrRateLimited = errors.New("rate limited")
)

// Cursor errors.
var (
	// ErrCursorRegression indicates an attempt to move a cursor backwards.
	ErrCursorRegression = errors.New("cursor regression")
)

// Storage errors.
var (
	// ErrUnknownStoreDriver indicates an unsupported STORE_DRIVER value.
	ErrUnknownStoreDriver = errors.New("unknown store driver")

	// ErrStoreWrite indicates a batch could not be persisted.
	ErrStoreWrite = errors.New("store write failed")
)

// Authentication errors.
var (
	// ErrSignupNotSupported indicates that signup is not supported.
	ErrSignupNotSupported = errors.New("signup not supported")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)
