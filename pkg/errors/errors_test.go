package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewJoinFailed(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeJoinFailed, err.Code)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetAppError(t *testing.T) {
	assert.Nil(t, GetAppError(nil))
	assert.Nil(t, GetAppError(stderrors.New("plain")))

	appErr := NewNotFound("room")
	assert.Equal(t, appErr, GetAppError(appErr))

	// Found through a wrapping chain.
	wrapped := fmt.Errorf("handler: %w", appErr)
	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeNotFound, got.Code)
}

func TestIsCode(t *testing.T) {
	err := NewRateLimit()
	assert.True(t, IsCode(err, ErrCodeRateLimit))
	assert.False(t, IsCode(err, ErrCodeNotFound))
	assert.False(t, IsCode(nil, ErrCodeRateLimit))
	assert.False(t, IsCode(stderrors.New("plain"), ErrCodeRateLimit))
}

func TestConstructorStatuses(t *testing.T) {
	tests := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInput("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFound("room"), ErrCodeNotFound, http.StatusNotFound},
		{NewUnauthorized("nope"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewConflict("busy"), ErrCodeConflict, http.StatusConflict},
		{NewRateLimit(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{NewSessionBusy(), ErrCodeSessionBusy, http.StatusConflict},
		{NewInternal("oops"), ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code)
		assert.Equal(t, tt.status, tt.err.HTTPStatus)
	}
}

func TestWithContext(t *testing.T) {
	err := NewInternal("oops").WithContext("room_id", "R1").WithContext("attempt", 2)
	assert.Equal(t, "R1", err.Context["room_id"])
	assert.Equal(t, 2, err.Context["attempt"])
}
