package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	current := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Issuer: "accountd",
		Clock:  func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		AccountID:  "account-1",
		SessionKey: "session-key-1",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "account-1", claims.AccountID)
	require.Equal(t, "session-key-1", claims.SessionKey)
	require.Equal(t, "accountd", claims.Issuer)
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	current := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: 10 * time.Minute,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		AccountID:  "account-1",
		SessionKey: "session-key-1",
	})
	require.NoError(t, err)

	current = current.Add(11 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRejectsWrongSecret(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		AccountID:  "account-1",
		SessionKey: "session-key-1",
	})
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "different-secret"})
	require.NoError(t, err)
	_, err = other.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRejectsWrongIssuer(t *testing.T) {
	issue, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "other"})
	require.NoError(t, err)

	token, err := issue.GenerateAccessToken(AccessTokenInput{
		AccountID:  "account-1",
		SessionKey: "session-key-1",
	})
	require.NoError(t, err)

	verify, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "accountd"})
	require.NoError(t, err)
	_, err = verify.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRequiresConfig(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)

	svc, err := NewJWTService(JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	_, err = svc.GenerateAccessToken(AccessTokenInput{SessionKey: "k"})
	require.Error(t, err)
	_, err = svc.GenerateAccessToken(AccessTokenInput{AccountID: "a"})
	require.Error(t, err)
}
