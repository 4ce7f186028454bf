package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hartline/accountd/internal/auth/pepper"
	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/crypto"
	apperrors "github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/logger"
	"github.com/hartline/accountd/pkg/mail"
)

// RequestPasswordResetInput starts the forgotten-password flow.
type RequestPasswordResetInput struct {
	Email     string
	IPAddress string
	UserAgent string
}

// CompletePasswordChangeInput finishes a reset or change with the mailed
// token and the replacement password.
type CompletePasswordChangeInput struct {
	Token       string
	NewPassword string
	IPAddress   string
	UserAgent   string
}

// PasswordService manages the password reset and change workflows.
type PasswordService struct {
	db      *gorm.DB
	tokens  *TokenService
	peppers pepper.Table
	mailer  mail.Mailer
	audit   *AuditService
	log     *zap.Logger

	sleep   Sleeper
	randInt func(int) int
}

// PasswordOption customises a PasswordService.
type PasswordOption func(*PasswordService)

// WithPasswordSleeper replaces the failure-path delay machinery.
func WithPasswordSleeper(sleep Sleeper, randInt func(int) int) PasswordOption {
	return func(s *PasswordService) {
		if sleep != nil {
			s.sleep = sleep
		}
		if randInt != nil {
			s.randInt = randInt
		}
	}
}

// NewPasswordService constructs a PasswordService instance.
func NewPasswordService(db *gorm.DB, tokens *TokenService, peppers pepper.Table, mailer mail.Mailer, audit *AuditService, opts ...PasswordOption) (*PasswordService, error) {
	if db == nil {
		return nil, errors.New("password service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("password service: token service is required")
	}

	svc := &PasswordService{
		db:      db,
		tokens:  tokens,
		peppers: peppers,
		mailer:  mailer,
		audit:   audit,
		log:     logger.WithModule("password"),
		sleep:   defaultSleeper,
		randInt: rand.Intn,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RequestReset mails a password-reset token. An unknown address answers with
// the same silent success as a known one, after the randomised failure delay,
// so responses cannot be used to enumerate accounts.
func (s *PasswordService) RequestReset(ctx context.Context, input RequestPasswordResetInput) error {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return apperrors.NewBadRequest("email is required")
	}

	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		recordAudit(s.audit, ctx, AuditEntry{
			Action:    "password.reset_request",
			Result:    "failure",
			Reason:    "unknown account",
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
		})
		s.sleep(ctx, failureDelay(s.randInt))
		return nil
	}
	if err != nil {
		return fmt.Errorf("password service: load account: %w", err)
	}

	wire, _, err := s.tokens.Issue(ctx, IssueTokenInput{
		AccountID: account.ID,
		Purpose:   models.PurposePasswordReset,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return err
	}

	s.sendResetMail(ctx, resetRecipients(&account), wire)

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &account.ID,
		Action:    "password.reset_request",
		Result:    "success",
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	return nil
}

// RequestChange mails a password-change token to an authenticated account.
func (s *PasswordService) RequestChange(ctx context.Context, accountID, ipAddress, userAgent string) error {
	ctx = ensureContext(ctx)

	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("password service: load account: %w", err)
	}

	wire, _, err := s.tokens.Issue(ctx, IssueTokenInput{
		AccountID: account.ID,
		Purpose:   models.PurposePasswordChange,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		return err
	}

	s.sendResetMail(ctx, []string{account.Email}, wire)

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &account.ID,
		Action:    "password.change_request",
		Result:    "success",
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

// Complete sets the new password. The token may come from either the reset or
// the change flow; both complete identically: rehash with the account's
// creation-date pepper, rotate the session key, reset the lockout governor,
// and retire the token.
func (s *PasswordService) Complete(ctx context.Context, input CompletePasswordChangeInput) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.NewPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}
	if !crypto.IsGoodPassword(input.NewPassword) {
		return apperrors.NewBadRequest("password is too weak")
	}

	token, err := s.tokens.VerifyAndConsumeAny(ctx, input.Token,
		models.PurposePasswordReset, models.PurposePasswordChange)
	if err != nil {
		return err
	}

	sessionKey, err := crypto.GenerateToken(sessionKeyBytes)
	if err != nil {
		return fmt.Errorf("password service: generate session key: %w", err)
	}

	var accountEmail string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.First(&account, "id = ?", token.AccountID).Error; err != nil {
			return fmt.Errorf("password service: load account: %w", err)
		}
		accountEmail = account.Email

		hash, err := crypto.HashCredential(input.NewPassword, account.Salt, s.peppers.ForDate(account.CreatedAt))
		if err != nil {
			return fmt.Errorf("password service: hash password: %w", err)
		}

		if err := tx.Model(&account).Updates(map[string]any{
			"password_hash":   hash,
			"session_key":     sessionKey,
			"failed_attempts": 0,
			"last_failed_at":  nil,
			"locked_until":    nil,
		}).Error; err != nil {
			return fmt.Errorf("password service: update password: %w", err)
		}

		return tx.Delete(&models.CredentialToken{}, "id = ?", token.ID).Error
	})
	if err != nil {
		return err
	}

	s.sendChangedMail(ctx, accountEmail)

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &token.AccountID,
		Action:    "password.complete",
		Result:    "success",
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Metadata:  map[string]any{"purpose": string(token.Purpose)},
	})
	return nil
}

func resetRecipients(account *models.Account) []string {
	recipients := []string{account.Email}
	if account.RecoveryEmail != "" && !strings.EqualFold(account.RecoveryEmail, account.Email) {
		recipients = append(recipients, account.RecoveryEmail)
	}
	return recipients
}

func (s *PasswordService) sendResetMail(ctx context.Context, to []string, wire string) {
	if s.mailer == nil {
		return
	}
	err := s.mailer.Send(ctx, mail.Message{
		To:      to,
		Subject: "Password change requested",
		Body: "A password change was requested for your account.\r\n" +
			"Set a new password with this token: " + wire + "\r\n" +
			"If you did not request this, you can ignore this message.\r\n",
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("password mail failed", zap.Error(err))
	}
}

func (s *PasswordService) sendChangedMail(ctx context.Context, to string) {
	if s.mailer == nil {
		return
	}
	err := s.mailer.Send(ctx, mail.Message{
		To:      []string{to},
		Subject: "Your password was changed",
		Body:    "The password on your account was just changed.\r\nIf this was not you, reset it immediately.\r\n",
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("password notice failed", zap.Error(err))
	}
}
