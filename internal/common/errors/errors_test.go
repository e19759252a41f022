package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
		config    bool
	}{
		{"configuration", NewConfigurationError("x"), ErrCodeConfigurationInvalid, false, true},
		{"weights", NewWeightsInvalidError("x"), ErrCodeWeightsInvalid, false, true},
		{"section spec", NewSectionSpecInvalidError("x"), ErrCodeSectionSpecInvalid, false, true},
		{"unknown strategy", NewUnknownStrategyError("x"), ErrCodeUnknownStrategy, false, true},
		{"store unavailable", NewStoreUnavailableError(errors.New("down")), ErrCodeStoreUnavailable, true, false},
		{"store timeout", NewStoreTimeoutError("op"), ErrCodeStoreTimeout, true, false},
		{"search timeout", NewSearchTimeoutError("x"), ErrCodeSearchTimeout, true, false},
		{"search failed", NewSearchFailedError(errors.New("es")), ErrCodeSearchFailed, true, false},
		{"persist failed", NewPersistFailedError(errors.New("pg")), ErrCodePersistFailed, true, false},
		{"checkpoint failed", NewCheckpointFailedError(errors.New("redis")), ErrCodeCheckpointFailed, true, false},
		{"allocation invariant", NewAllocationInvariantError("x", nil), ErrCodeAllocationInvariant, false, false},
		{"subject not found", NewSubjectNotFoundError(7), ErrCodeSubjectNotFound, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.config, IsConfiguration(tt.err))
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestClassifiersOnWrappedAndForeignErrors(t *testing.T) {
	wrapped := fmt.Errorf("subject 7: %w", NewStoreTimeoutError("postgres"))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrCodeStoreTimeout, CodeOf(wrapped))

	foreign := errors.New("plain")
	assert.False(t, IsRetryable(foreign))
	assert.False(t, IsConfiguration(foreign))
	assert.Equal(t, ErrorCode("INTERNAL_ERROR"), CodeOf(foreign))
}

func TestStandardError_ErrorString(t *testing.T) {
	err := NewStoreTimeoutError("postgres")
	assert.Contains(t, err.Error(), string(ErrCodeStoreTimeout))
}
