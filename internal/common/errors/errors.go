// Package errors provides standardized error handling for the scoring and
// allocation engine.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Configuration errors: fatal, detected before any batch work starts.
	ErrCodeConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"
	ErrCodeWeightsInvalid       ErrorCode = "WEIGHTS_INVALID"
	ErrCodeSectionSpecInvalid   ErrorCode = "SECTION_SPEC_INVALID"
	ErrCodeUnknownStrategy      ErrorCode = "UNKNOWN_STRATEGY"

	// Transient dependency errors: retried per the batch retry policy.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeStoreTimeout     ErrorCode = "STORE_TIMEOUT"
	ErrCodeSearchTimeout    ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeSearchFailed     ErrorCode = "SEARCH_FAILED"

	// Per-subject failures: fail loudly for the subject, batch continues.
	ErrCodeAllocationInvariant ErrorCode = "ALLOCATION_INVARIANT_VIOLATION"
	ErrCodeSubjectNotFound     ErrorCode = "SUBJECT_NOT_FOUND"

	ErrCodePersistFailed    ErrorCode = "PERSIST_FAILED"
	ErrCodeCheckpointFailed ErrorCode = "CHECKPOINT_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewConfigurationError creates a fatal, non-retryable configuration error.
func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigurationInvalid,
		Message:   "Invalid engine configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWeightsInvalidError creates a non-retryable weight configuration error.
func NewWeightsInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWeightsInvalid,
		Message:   "Score weights failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSectionSpecInvalidError creates a non-retryable section spec error.
func NewSectionSpecInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSectionSpecInvalid,
		Message:   "Section spec failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownStrategyError creates a non-retryable aggregation strategy error.
func NewUnknownStrategyError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownStrategy,
		Message:   "Unknown aggregation strategy",
		Details:   fmt.Sprintf("strategy: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable store connection error.
func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Data store unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreTimeoutError creates a retryable store timeout error.
func NewStoreTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreTimeout,
		Message:   "Data store call timed out",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchTimeoutError creates a retryable search timeout error.
func NewSearchTimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchTimeout,
		Message:   "Candidate search timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchFailedError creates a retryable search execution error.
func NewSearchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchFailed,
		Message:   "Candidate search failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAllocationInvariantError flags a broken allocation invariant. This is a
// programming-level bug: the subject's run fails loudly and is recorded for
// manual inspection, but the batch continues.
func NewAllocationInvariantError(details string, metadata map[string]interface{}) *StandardError {
	return &StandardError{
		Code:      ErrCodeAllocationInvariant,
		Message:   "Allocation invariant violated",
		Details:   details,
		Retryable: false,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

// NewSubjectNotFoundError creates a non-retryable missing subject error.
func NewSubjectNotFoundError(userID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubjectNotFound,
		Message:   "Subject not found",
		Details:   fmt.Sprintf("userId: %d", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistFailedError creates a retryable persistence error.
func NewPersistFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistFailed,
		Message:   "Allocation persistence failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCheckpointFailedError creates a retryable checkpoint error.
func NewCheckpointFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCheckpointFailed,
		Message:   "Checkpoint write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// IsRetryable reports whether an error should be retried by the batch
// retry policy. Unknown errors default to non-retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// IsConfiguration reports whether an error is a fatal configuration error.
func IsConfiguration(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		switch stdErr.Code {
		case ErrCodeConfigurationInvalid, ErrCodeWeightsInvalid,
			ErrCodeSectionSpecInvalid, ErrCodeUnknownStrategy:
			return true
		}
	}
	return false
}

// CodeOf extracts the error code, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}
