package errors

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("db down")
	err := ErrInternalServer.WithInternal(inner)

	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "db down")
}

func TestFromErrorPreservesAppError(t *testing.T) {
	err := FromError(ErrInvalidCredentials)
	require.Equal(t, ErrInvalidCredentials.Code, err.Code)

	wrapped := FromError(errors.New("boom"))
	require.Equal(t, ErrInternalServer.Code, wrapped.Code)
	require.Equal(t, http.StatusInternalServerError, wrapped.StatusCode)
}

func TestNewAccountLockedHint(t *testing.T) {
	err := NewAccountLocked(5 * time.Minute)
	require.Equal(t, "ACCOUNT_LOCKED", err.Code)
	require.Contains(t, err.Message, "5m0s")

	negative := NewAccountLocked(-time.Second)
	require.Contains(t, negative.Message, "0s")
}
