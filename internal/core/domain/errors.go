// Package domain defines the core domain models for TabVault.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes follow the format TV-<AREA>-<NNNN>, where the numeric suffix mirrors
// the HTTP status family the error maps to at the API boundary.
type DomainError struct {
	Code    string // Error code (e.g., "TV-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates the requested session was not found.
	ErrSessionNotFound = NewDomainError("TV-SESS-4040", "session not found")

	// ErrNoActiveSession indicates no session is currently active.
	ErrNoActiveSession = NewDomainError("TV-SESS-4041", "no active session")

	// ErrSessionValidation indicates session data validation failed.
	ErrSessionValidation = NewDomainError("TV-SESS-4001", "session validation failed")
)

// ============================================================================
// Payload and Chunk Errors (DATA)
// ============================================================================

var (
	// ErrCorruptPayload indicates a persisted payload could not be decoded.
	ErrCorruptPayload = NewDomainError("TV-DATA-4220", "corrupt payload")

	// ErrChunkMissing indicates a referenced dataset chunk is absent from
	// the blob store. Warning severity: the chunk walk skips it.
	ErrChunkMissing = NewDomainError("TV-DATA-4041", "dataset chunk missing")

	// ErrNoValidChunks indicates no chunk of a chunked dataset survived the
	// walk, so nothing could be reconstructed.
	ErrNoValidChunks = NewDomainError("TV-DATA-4042", "no valid chunks recovered")

	// ErrDatasetTooLarge indicates a dataset exceeds what the capacity
	// profile allows even after chunking.
	ErrDatasetTooLarge = NewDomainError("TV-DATA-4130", "dataset exceeds capacity limits")
)

// ============================================================================
// Restore Errors (REST)
// ============================================================================

var (
	// ErrInsufficientMemory indicates the memory probe reported pressure
	// during a chunk walk and the restore was aborted.
	ErrInsufficientMemory = NewDomainError("TV-REST-5030", "insufficient memory to restore dataset")

	// ErrApplyFailure indicates an apply hook rejected restored state.
	// Fatal for the dataset hook; filter and chart hook failures are
	// logged and swallowed.
	ErrApplyFailure = NewDomainError("TV-REST-5001", "failed to apply restored state")

	// ErrRestoreInFlight indicates a restore is already running. Enforced
	// at the API surface; the engine assumes single-flight use.
	ErrRestoreInFlight = NewDomainError("TV-REST-4090", "restore already in progress")
)

// ============================================================================
// Archive Errors (ARCH)
// ============================================================================

var (
	// ErrArchiveMalformed indicates an archive file has an unrecognized
	// layout or magic.
	ErrArchiveMalformed = NewDomainError("TV-ARCH-4000", "malformed archive")

	// ErrArchiveChecksum indicates the archive checksum did not match.
	ErrArchiveChecksum = NewDomainError("TV-ARCH-4220", "archive checksum mismatch")
)

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrStorageFailure wraps a backend adapter failure. The adapter cause
	// is always attached; raw adapter errors never cross the engine
	// boundary.
	ErrStorageFailure = NewDomainError("TV-STOR-5000", "storage backend failure")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("TV-SYS-5000", "internal server error")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("TV-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("TV-SYS-4290", "too many requests")

	// ErrPayloadTooLarge indicates a request body exceeded the server cap.
	ErrPayloadTooLarge = NewDomainError("TV-SYS-4130", "request body too large")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("TV-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("TV-ARG-1002", "missing required argument")
)
