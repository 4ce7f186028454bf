package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/crypto"
	apperrors "github.com/hartline/accountd/pkg/errors"
)

type passwordFixture struct {
	db      *gorm.DB
	svc     *PasswordService
	tokens  *TokenService
	mailer  *recordingMailer
	sleeper *sleepRecorder
	account *models.Account
	current *time.Time
}

func newPasswordFixture(t *testing.T) *passwordFixture {
	t.Helper()

	db := openServiceTestDB(t)
	current := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	tokens, err := NewTokenService(db, newTestSigner(t, clock), WithTokenClock(clock))
	require.NoError(t, err)

	mailer := &recordingMailer{}
	sleeper := &sleepRecorder{}

	svc, err := NewPasswordService(db, tokens, testPeppers(), mailer, nil,
		WithPasswordSleeper(sleeper.sleep, zeroRand),
	)
	require.NoError(t, err)

	account := createTestAccount(t, db, testPeppers(), "reset@example.com", "Sup3r$ecret!", current.Add(-72*time.Hour))

	return &passwordFixture{
		db:      db,
		svc:     svc,
		tokens:  tokens,
		mailer:  mailer,
		sleeper: sleeper,
		account: account,
		current: &current,
	}
}

func (f *passwordFixture) reload(t *testing.T) *models.Account {
	t.Helper()
	var account models.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	return &account
}

func TestRequestResetUnknownEmailIsSilent(t *testing.T) {
	f := newPasswordFixture(t)

	err := f.svc.RequestReset(context.Background(), RequestPasswordResetInput{
		Email: "nobody@example.com",
	})
	require.NoError(t, err, "unknown addresses answer with the same success")
	require.Equal(t, 1, f.sleeper.count())
	require.Empty(t, f.mailer.sent())
}

func TestRequestResetMailsRecoveryAddress(t *testing.T) {
	f := newPasswordFixture(t)

	require.NoError(t, f.db.Model(f.account).Update("recovery_email", "backup@example.com").Error)

	require.NoError(t, f.svc.RequestReset(context.Background(), RequestPasswordResetInput{
		Email: "reset@example.com",
	}))

	sent := f.mailer.sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"reset@example.com", "backup@example.com"}, sent[0].To)
	require.Zero(t, f.sleeper.count())
}

func TestPasswordResetFlow(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()
	priorKey := f.account.SessionKey

	// Seed some lockout state to prove the reset clears it.
	now := *f.current
	require.NoError(t, f.db.Model(f.account).Updates(map[string]any{
		"failed_attempts": 4,
		"last_failed_at":  now,
		"locked_until":    now.Add(2 * time.Minute),
	}).Error)

	require.NoError(t, f.svc.RequestReset(ctx, RequestPasswordResetInput{
		Email: "reset@example.com",
	}))

	wire := extractWire(t, f.mailer.last().Body)
	*f.current = f.current.Add(time.Second)

	require.NoError(t, f.svc.Complete(ctx, CompletePasswordChangeInput{
		Token:       wire,
		NewPassword: "N3w$ecret!!",
	}))

	account := f.reload(t)
	peppered := testPeppers().ForDate(account.CreatedAt)
	require.True(t, crypto.VerifyCredential(account.PasswordHash, "N3w$ecret!!", account.Salt, peppered))
	require.NotEqual(t, priorKey, account.SessionKey)
	require.Zero(t, account.FailedAttempts)
	require.Nil(t, account.LockedUntil)

	// Change notice went out after the reset request mail.
	sent := f.mailer.sent()
	require.Len(t, sent, 2)
	require.Equal(t, []string{"reset@example.com"}, sent[1].To)

	// The token is single use.
	err := f.svc.Complete(ctx, CompletePasswordChangeInput{
		Token:       wire,
		NewPassword: "An0ther$ecret!",
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestPasswordChangeFlow(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestChange(ctx, f.account.ID, "203.0.113.7", "test-agent"))

	wire := extractWire(t, f.mailer.last().Body)
	*f.current = f.current.Add(time.Second)

	// Complete accepts change-purpose tokens the same as reset-purpose ones.
	require.NoError(t, f.svc.Complete(ctx, CompletePasswordChangeInput{
		Token:       wire,
		NewPassword: "N3w$ecret!!",
	}))

	account := f.reload(t)
	peppered := testPeppers().ForDate(account.CreatedAt)
	require.True(t, crypto.VerifyCredential(account.PasswordHash, "N3w$ecret!!", account.Salt, peppered))
}

func TestPasswordChangeUnknownAccount(t *testing.T) {
	f := newPasswordFixture(t)

	err := f.svc.RequestChange(context.Background(), "no-such-id", "", "")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCompleteRejectsWeakPassword(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, RequestPasswordResetInput{
		Email: "reset@example.com",
	}))
	wire := extractWire(t, f.mailer.last().Body)
	*f.current = f.current.Add(time.Second)

	err := f.svc.Complete(ctx, CompletePasswordChangeInput{
		Token:       wire,
		NewPassword: "aaaaXYZ1",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_INPUT", appErr.Code)

	// The weak attempt must not burn the token.
	require.NoError(t, f.svc.Complete(ctx, CompletePasswordChangeInput{
		Token:       wire,
		NewPassword: "N3w$ecret!!",
	}))
}

func TestCompleteRejectsForeignPurposeToken(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	wire, _, err := f.tokens.Issue(ctx, IssueTokenInput{
		AccountID: f.account.ID,
		Purpose:   models.PurposeEmailVerification,
	})
	require.NoError(t, err)
	*f.current = f.current.Add(time.Second)

	err = f.svc.Complete(ctx, CompletePasswordChangeInput{
		Token:       wire,
		NewPassword: "N3w$ecret!!",
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}
