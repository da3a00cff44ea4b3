package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError("remote", 403, "forbidden")
	assert.Contains(t, err.Error(), "remote")
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestAPIError_WithWrapped(t *testing.T) {
	inner := errors.New("connection refused")
	err := &APIError{Service: "remote", StatusCode: 500, Message: "fail", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("remote", 429, "rate limit")))
	assert.True(t, IsRetryable(NewAPIError("remote", 502, "bad gateway")))
	assert.True(t, IsRetryable(NewAPIError("remote", 503, "unavailable")))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(ErrUnavailable))

	assert.False(t, IsRetryable(NewAPIError("remote", 401, "unauth")))
	assert.False(t, IsRetryable(NewAPIError("remote", 404, "not found")))
	assert.False(t, IsRetryable(ErrInvalidInput))
	assert.False(t, IsRetryable(ErrDisposed))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewAPIError("remote", 404, "missing")))
	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(NewAPIError("remote", 500, "boom")))
}
