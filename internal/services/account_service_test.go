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

type accountFixture struct {
	db      *gorm.DB
	svc     *AccountService
	tokens  *TokenService
	mailer  *recordingMailer
	current *time.Time
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()

	db := openServiceTestDB(t)
	current := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	tokens, err := NewTokenService(db, newTestSigner(t, clock), WithTokenClock(clock))
	require.NoError(t, err)

	mailer := &recordingMailer{}
	svc, err := NewAccountService(db, tokens, testPeppers(), mailer, nil, WithAccountClock(clock))
	require.NoError(t, err)

	return &accountFixture{db: db, svc: svc, tokens: tokens, mailer: mailer, current: &current}
}

func TestAccountCreate(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	account, err := f.svc.Create(ctx, CreateAccountInput{
		Name:     "Pat",
		Email:    "Pat@Example.com",
		Password: "Sup3r$ecret!",
	})
	require.NoError(t, err)
	require.Equal(t, "pat@example.com", account.Email)
	require.False(t, account.Verified)
	require.NotEmpty(t, account.Salt)
	require.NotEmpty(t, account.SessionKey)
	require.NotEqual(t, "Sup3r$ecret!", account.PasswordHash)

	// The stored hash verifies against the pepper chosen by the creation
	// date, not the current month.
	peppered := testPeppers().ForDate(account.CreatedAt)
	require.True(t, crypto.VerifyCredential(account.PasswordHash, "Sup3r$ecret!", account.Salt, peppered))

	// Signup mails a verification link and code.
	sent := f.mailer.sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"pat@example.com"}, sent[0].To)
	extractWire(t, sent[0].Body)
	extractOTP(t, sent[0].Body)
}

func TestAccountCreateRejectsWeakPassword(t *testing.T) {
	f := newAccountFixture(t)

	_, err := f.svc.Create(context.Background(), CreateAccountInput{
		Email:    "weak@example.com",
		Password: "aaaaXYZ1",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_INPUT", appErr.Code)
}

func TestAccountCreateDuplicateEmailConflicts(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateAccountInput{
		Email:    "dup@example.com",
		Password: "Sup3r$ecret!",
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, CreateAccountInput{
		Email:    "dup@example.com",
		Password: "Sup3r$ecret!",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_INPUT", appErr.Code)
}

func TestAccountVerifyByToken(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	account, err := f.svc.Create(ctx, CreateAccountInput{
		Email:    "verify@example.com",
		Password: "Sup3r$ecret!",
	})
	require.NoError(t, err)

	wire := extractWire(t, f.mailer.last().Body)
	*f.current = f.current.Add(time.Second)

	require.NoError(t, f.svc.Verify(ctx, VerifyAccountInput{Token: wire}))

	var reloaded models.Account
	require.NoError(t, f.db.First(&reloaded, "id = ?", account.ID).Error)
	require.True(t, reloaded.Verified)

	// The consumed token is gone; replay fails.
	require.Error(t, f.svc.Verify(ctx, VerifyAccountInput{Token: wire}))
}

func TestAccountVerifyByOTP(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	account, err := f.svc.Create(ctx, CreateAccountInput{
		Email:    "code@example.com",
		Password: "Sup3r$ecret!",
	})
	require.NoError(t, err)

	code := extractOTP(t, f.mailer.last().Body)

	require.NoError(t, f.svc.Verify(ctx, VerifyAccountInput{
		Email: "code@example.com",
		OTP:   code,
	}))

	var reloaded models.Account
	require.NoError(t, f.db.First(&reloaded, "id = ?", account.ID).Error)
	require.True(t, reloaded.Verified)
	require.Empty(t, reloaded.OTPHash)
}

func TestSetMFAEnableAndDisable(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	account := createTestAccount(t, f.db, testPeppers(), "mfa@example.com", "Sup3r$ecret!", *f.current)

	result, err := f.svc.SetMFA(ctx, SetMFAInput{AccountID: account.ID, Enable: true})
	require.NoError(t, err)
	require.True(t, result.Enabled)

	// Disabling without a code mails one and stays pending.
	result, err = f.svc.SetMFA(ctx, SetMFAInput{AccountID: account.ID})
	require.NoError(t, err)
	require.True(t, result.Pending)
	require.True(t, result.Enabled)

	code := extractOTP(t, f.mailer.last().Body)

	result, err = f.svc.SetMFA(ctx, SetMFAInput{AccountID: account.ID, OTP: code})
	require.NoError(t, err)
	require.False(t, result.Enabled)
	require.False(t, result.Pending)
}

func TestSetMFADisableRejectsForeignPurposeCode(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	account := createTestAccount(t, f.db, testPeppers(), "scoped@example.com", "Sup3r$ecret!", *f.current)
	require.NoError(t, f.db.Model(account).Update("mfa_enabled", true).Error)

	// A code minted for login must not authorise disabling MFA.
	code, err := setAccountOTP(ctx, f.db, account, OTPPurposeLogin, DefaultOTPDigits, DefaultOTPTTL, *f.current)
	require.NoError(t, err)

	_, err = f.svc.SetMFA(ctx, SetMFAInput{AccountID: account.ID, OTP: code})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	var reloaded models.Account
	require.NoError(t, f.db.First(&reloaded, "id = ?", account.ID).Error)
	require.True(t, reloaded.MFAEnabled)
}

func TestLogoutRotatesSessionKey(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	account := createTestAccount(t, f.db, testPeppers(), "logout@example.com", "Sup3r$ecret!", *f.current)
	priorKey := account.SessionKey

	require.NoError(t, f.svc.Logout(ctx, account.ID))

	var reloaded models.Account
	require.NoError(t, f.db.First(&reloaded, "id = ?", account.ID).Error)
	require.NotEqual(t, priorKey, reloaded.SessionKey)

	require.ErrorIs(t, f.svc.Logout(ctx, "no-such-id"), ErrAccountNotFound)
}

func TestAccountDeleteCascadesTokens(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	account := createTestAccount(t, f.db, testPeppers(), "gone@example.com", "Sup3r$ecret!", *f.current)

	_, _, err := f.tokens.Issue(ctx, IssueTokenInput{
		AccountID: account.ID,
		Purpose:   models.PurposePasswordReset,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, account.ID))

	var accounts int64
	require.NoError(t, f.db.Model(&models.Account{}).Where("id = ?", account.ID).Count(&accounts).Error)
	require.Zero(t, accounts)

	var tokens int64
	require.NoError(t, f.db.Model(&models.CredentialToken{}).Where("account_id = ?", account.ID).Count(&tokens).Error)
	require.Zero(t, tokens)

	require.ErrorIs(t, f.svc.Delete(ctx, account.ID), ErrAccountNotFound)
}
