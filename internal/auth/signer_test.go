package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	current := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	signer, err := NewTokenSigner(SignerConfig{
		Key:   "test-signing-key",
		Clock: func() time.Time { return current },
	})
	require.NoError(t, err)

	wire, err := signer.Sign("token-secret", "password_reset")
	require.NoError(t, err)
	require.NotContains(t, wire, "token-secret")

	secret, err := signer.Verify(wire, "password_reset")
	require.NoError(t, err)
	require.Equal(t, "token-secret", secret)
}

func TestSignerRejectsPurposeMismatch(t *testing.T) {
	signer, err := NewTokenSigner(SignerConfig{Key: "test-signing-key"})
	require.NoError(t, err)

	wire, err := signer.Sign("token-secret", "email_change_old")
	require.NoError(t, err)

	// A token minted for one purpose must not replay as another.
	_, err = signer.Verify(wire, "email_change_new")
	require.ErrorIs(t, err, ErrWireTokenInvalid)
}

func TestSignerVerifyAnyResolvesPurpose(t *testing.T) {
	signer, err := NewTokenSigner(SignerConfig{Key: "test-signing-key"})
	require.NoError(t, err)

	wire, err := signer.Sign("token-secret", "email_change_new")
	require.NoError(t, err)

	secret, purpose, err := signer.VerifyAny(wire, "email_change_old", "email_change_new")
	require.NoError(t, err)
	require.Equal(t, "token-secret", secret)
	require.Equal(t, "email_change_new", purpose)

	_, _, err = signer.VerifyAny(wire, "password_reset", "password_change")
	require.ErrorIs(t, err, ErrWireTokenInvalid)

	_, _, err = signer.VerifyAny(wire)
	require.ErrorIs(t, err, ErrWireTokenInvalid)
}

func TestSignerRejectsAgedToken(t *testing.T) {
	current := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	signer, err := NewTokenSigner(SignerConfig{
		Key:    "test-signing-key",
		MaxAge: 30 * time.Minute,
		Clock:  func() time.Time { return current },
	})
	require.NoError(t, err)

	wire, err := signer.Sign("token-secret", "password_reset")
	require.NoError(t, err)

	current = current.Add(31 * time.Minute)
	_, err = signer.Verify(wire, "password_reset")
	require.ErrorIs(t, err, ErrWireTokenInvalid)
}

func TestSignerRejectsTampering(t *testing.T) {
	signer, err := NewTokenSigner(SignerConfig{Key: "test-signing-key"})
	require.NoError(t, err)

	wire, err := signer.Sign("token-secret", "password_reset")
	require.NoError(t, err)

	_, err = signer.Verify(wire+"x", "password_reset")
	require.ErrorIs(t, err, ErrWireTokenInvalid)

	other, err := NewTokenSigner(SignerConfig{Key: "different-key"})
	require.NoError(t, err)
	_, err = other.Verify(wire, "password_reset")
	require.ErrorIs(t, err, ErrWireTokenInvalid)
}

func TestSignerRequiresKey(t *testing.T) {
	_, err := NewTokenSigner(SignerConfig{})
	require.Error(t, err)
}
