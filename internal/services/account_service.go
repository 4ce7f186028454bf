package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hartline/accountd/internal/auth/pepper"
	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/crypto"
	apperrors "github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/logger"
	"github.com/hartline/accountd/pkg/mail"
)

const sessionKeyBytes = 32

// CreateAccountInput describes the fields accepted at signup.
type CreateAccountInput struct {
	Name          string
	Email         string
	Password      string
	RecoveryEmail string
	IPAddress     string
	UserAgent     string
}

// VerifyAccountInput accepts either a signed link token or an email plus
// emailed code.
type VerifyAccountInput struct {
	Token string
	Email string
	OTP   string
}

// SetMFAInput toggles multi-factor authentication. Disabling is gated on a
// one-time code scoped to that purpose.
type SetMFAInput struct {
	AccountID string
	Enable    bool
	OTP       string
}

// SetMFAResult reports whether the toggle completed or a confirmation code
// was mailed first.
type SetMFAResult struct {
	Enabled bool
	Pending bool
}

// AccountService manages the account lifecycle: signup, verification, MFA
// toggling, logout, and deletion.
type AccountService struct {
	db      *gorm.DB
	tokens  *TokenService
	peppers pepper.Table
	mailer  mail.Mailer
	audit   *AuditService
	log     *zap.Logger

	now       func() time.Time
	otpDigits int
	otpTTL    time.Duration
}

// AccountOption customises an AccountService.
type AccountOption func(*AccountService)

// WithAccountClock overrides the service clock.
func WithAccountClock(now func() time.Time) AccountOption {
	return func(s *AccountService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAccountOTP overrides the emailed code length and lifetime.
func WithAccountOTP(digits int, ttl time.Duration) AccountOption {
	return func(s *AccountService) {
		if digits > 0 {
			s.otpDigits = digits
		}
		if ttl > 0 {
			s.otpTTL = ttl
		}
	}
}

// NewAccountService constructs an AccountService instance.
func NewAccountService(db *gorm.DB, tokens *TokenService, peppers pepper.Table, mailer mail.Mailer, audit *AuditService, opts ...AccountOption) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("account service: token service is required")
	}

	svc := &AccountService{
		db:        db,
		tokens:    tokens,
		peppers:   peppers,
		mailer:    mailer,
		audit:     audit,
		log:       logger.WithModule("account"),
		now:       time.Now,
		otpDigits: DefaultOTPDigits,
		otpTTL:    DefaultOTPTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create provisions a new account. The password is gated on quality, salted,
// and peppered by the creation date; a verification link and code go to the
// new address.
func (s *AccountService) Create(ctx context.Context, input CreateAccountInput) (*models.Account, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}
	if !crypto.IsGoodPassword(input.Password) {
		return nil, apperrors.NewBadRequest("password is too weak")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("account service: generate salt: %w", err)
	}
	sessionKey, err := crypto.GenerateToken(sessionKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("account service: generate session key: %w", err)
	}

	createdAt := s.now()
	hash, err := crypto.HashCredential(input.Password, salt, s.peppers.ForDate(createdAt))
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	account := &models.Account{
		Name:          strings.TrimSpace(input.Name),
		Email:         email,
		PasswordHash:  hash,
		Salt:          salt,
		SessionKey:    sessionKey,
		AccessLevel:   models.AccessLevelUser,
		RecoveryEmail: strings.ToLower(strings.TrimSpace(input.RecoveryEmail)),
		CreatedAt:     createdAt,
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("an account with this email already exists")
		}
		return nil, fmt.Errorf("account service: create account: %w", err)
	}

	s.sendVerification(ctx, account)

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &account.ID,
		Action:    "account.create",
		Result:    "success",
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Metadata:  map[string]any{"email": account.Email},
	})

	return account, nil
}

// sendVerification mails a signed verification link and an equivalent short
// code. Delivery failure never fails the signup; verification can be
// re-requested.
func (s *AccountService) sendVerification(ctx context.Context, account *models.Account) {
	wire, _, err := s.tokens.Issue(ctx, IssueTokenInput{
		AccountID: account.ID,
		Purpose:   models.PurposeEmailVerification,
	})
	if err != nil {
		s.log.Warn("issue verification token failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}

	code, err := setAccountOTP(ctx, s.db, account, OTPPurposeVerify, s.otpDigits, s.otpTTL, s.now())
	if err != nil {
		s.log.Warn("mint verification code failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}

	if s.mailer == nil {
		return
	}
	err = s.mailer.Send(ctx, mail.Message{
		To:      []string{account.Email},
		Subject: "Verify your account",
		Body: "Welcome!\r\n" +
			"Verify your account with this token: " + wire + "\r\n" +
			"Or enter this code: " + code + "\r\n",
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("verification mail failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

// Verify marks an account as verified via either the signed link token or
// the emailed code.
func (s *AccountService) Verify(ctx context.Context, input VerifyAccountInput) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Token) != "" {
		token, err := s.tokens.VerifyAndConsume(ctx, input.Token, models.PurposeEmailVerification)
		if err != nil {
			return err
		}
		if err := s.markVerified(ctx, token.AccountID); err != nil {
			return err
		}
		return s.tokens.Delete(ctx, token.ID)
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || strings.TrimSpace(input.OTP) == "" {
		return apperrors.NewBadRequest("a verification token or email and code are required")
	}

	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("account service: load account: %w", err)
	}

	if !checkAccountOTP(&account, strings.TrimSpace(input.OTP), OTPPurposeVerify, s.now()) {
		return apperrors.ErrInvalidCredentials
	}
	if err := clearAccountOTP(ctx, s.db, &account); err != nil {
		return fmt.Errorf("account service: %w", err)
	}
	return s.markVerified(ctx, account.ID)
}

func (s *AccountService) markVerified(ctx context.Context, accountID string) error {
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("verified", true).Error
	if err != nil {
		return fmt.Errorf("account service: mark verified: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &accountID,
		Action:    "account.verify",
		Result:    "success",
	})
	return nil
}

// SetMFA toggles multi-factor authentication. Enabling takes effect directly.
// Disabling requires a one-time code scoped to mfa_disable: the first call
// mails the code and reports pending, the second call carries it.
func (s *AccountService) SetMFA(ctx context.Context, input SetMFAInput) (*SetMFAResult, error) {
	ctx = ensureContext(ctx)

	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "id = ?", input.AccountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account service: load account: %w", err)
	}

	if input.Enable {
		if err := s.db.WithContext(ctx).Model(&account).Update("mfa_enabled", true).Error; err != nil {
			return nil, fmt.Errorf("account service: enable mfa: %w", err)
		}
		recordAudit(s.audit, ctx, AuditEntry{
			AccountID: &account.ID,
			Action:    "mfa.enable",
			Result:    "success",
		})
		return &SetMFAResult{Enabled: true}, nil
	}

	code := strings.TrimSpace(input.OTP)
	if code == "" {
		minted, err := setAccountOTP(ctx, s.db, &account, OTPPurposeMFADisable, s.otpDigits, s.otpTTL, s.now())
		if err != nil {
			return nil, fmt.Errorf("account service: %w", err)
		}
		if err := mailOTP(ctx, s.mailer, account.Email, minted, "Confirm disabling two-factor sign-in"); err != nil {
			s.log.Warn("mfa disable mail failed", zap.String("account_id", account.ID), zap.Error(err))
		}
		return &SetMFAResult{Enabled: account.MFAEnabled, Pending: true}, nil
	}

	// A code minted for login or verification must not authorise this.
	if !checkAccountOTP(&account, code, OTPPurposeMFADisable, s.now()) {
		recordAudit(s.audit, ctx, AuditEntry{
			AccountID: &account.ID,
			Action:    "mfa.disable",
			Result:    "failure",
			Reason:    "invalid code",
		})
		return nil, apperrors.ErrInvalidCredentials
	}

	err = s.db.WithContext(ctx).Model(&account).Updates(map[string]any{
		"mfa_enabled":    false,
		"otp_hash":       "",
		"otp_purpose":    "",
		"otp_expires_at": nil,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("account service: disable mfa: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &account.ID,
		Action:    "mfa.disable",
		Result:    "success",
	})
	return &SetMFAResult{Enabled: false}, nil
}

// Logout rotates the account's session key, invalidating every outstanding
// access token at once.
func (s *AccountService) Logout(ctx context.Context, accountID string) error {
	ctx = ensureContext(ctx)

	sessionKey, err := crypto.GenerateToken(sessionKeyBytes)
	if err != nil {
		return fmt.Errorf("account service: generate session key: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("session_key", sessionKey)
	if result.Error != nil {
		return fmt.Errorf("account service: rotate session key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &accountID,
		Action:    "account.logout",
		Result:    "success",
	})
	return nil
}

// Get loads a single account by id.
func (s *AccountService) Get(ctx context.Context, accountID string) (*models.Account, error) {
	ctx = ensureContext(ctx)

	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account service: load account: %w", err)
	}
	return &account, nil
}

// Delete removes an account. Credential tokens cascade with the row.
func (s *AccountService) Delete(ctx context.Context, accountID string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.CredentialToken{}, "account_id = ?", accountID).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Account{}, "id = ?", accountID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return fmt.Errorf("account service: delete account: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &accountID,
		Action:    "account.delete",
		Result:    "success",
	})
	return nil
}
