package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hartline/accountd/internal/auth"
	"github.com/hartline/accountd/internal/auth/pepper"
	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/crypto"
	apperrors "github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/logger"
	"github.com/hartline/accountd/pkg/mail"
	"github.com/hartline/accountd/pkg/metrics"
)

// DefaultMFAPendingWindow bounds how long a recorded first factor stays
// valid. Past it, the pending state counts as expired even though the flag is
// still set.
const DefaultMFAPendingWindow = 10 * time.Minute

// AuthenticateInput carries one factor of a login attempt. Exactly one of
// Password or OTP must be set.
type AuthenticateInput struct {
	Email     string
	Password  string
	OTP       string
	IPAddress string
	UserAgent string
}

// AuthResult is the outcome of an authentication step. Pending means a first
// factor was accepted and a second, different factor is still required.
type AuthResult struct {
	Pending     bool
	AccessToken string
	Account     *models.Account
}

// LoginService drives the login state machine: lockout governance, credential
// verification, the two-step MFA flow, and session issuance.
type LoginService struct {
	db      *gorm.DB
	jwt     *auth.JWTService
	peppers pepper.Table
	mailer  mail.Mailer
	audit   *AuditService
	log     *zap.Logger

	now           func() time.Time
	sleep         Sleeper
	randInt       func(int) int
	otpDigits     int
	otpTTL        time.Duration
	pendingWindow time.Duration
}

// LoginOption customises a LoginService.
type LoginOption func(*LoginService)

// WithLoginClock overrides the service clock.
func WithLoginClock(now func() time.Time) LoginOption {
	return func(s *LoginService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLoginSleeper replaces the failure-path delay machinery, primarily so
// tests never actually sleep.
func WithLoginSleeper(sleep Sleeper, randInt func(int) int) LoginOption {
	return func(s *LoginService) {
		if sleep != nil {
			s.sleep = sleep
		}
		if randInt != nil {
			s.randInt = randInt
		}
	}
}

// WithOTPValidity overrides the emailed code lifetime.
func WithOTPValidity(ttl time.Duration) LoginOption {
	return func(s *LoginService) {
		if ttl > 0 {
			s.otpTTL = ttl
		}
	}
}

// WithOTPDigits overrides the emailed code length.
func WithOTPDigits(digits int) LoginOption {
	return func(s *LoginService) {
		if digits > 0 {
			s.otpDigits = digits
		}
	}
}

// WithMFAPendingWindow overrides the first-factor validity window.
func WithMFAPendingWindow(window time.Duration) LoginOption {
	return func(s *LoginService) {
		if window > 0 {
			s.pendingWindow = window
		}
	}
}

// NewLoginService constructs a LoginService instance.
func NewLoginService(db *gorm.DB, jwt *auth.JWTService, peppers pepper.Table, mailer mail.Mailer, audit *AuditService, opts ...LoginOption) (*LoginService, error) {
	if db == nil {
		return nil, errors.New("login service: db is required")
	}
	if jwt == nil {
		return nil, errors.New("login service: jwt service is required")
	}

	svc := &LoginService{
		db:            db,
		jwt:           jwt,
		peppers:       peppers,
		mailer:        mailer,
		audit:         audit,
		log:           logger.WithModule("login"),
		now:           time.Now,
		sleep:         defaultSleeper,
		randInt:       rand.Intn,
		otpDigits:     DefaultOTPDigits,
		otpTTL:        DefaultOTPTTL,
		pendingWindow: DefaultMFAPendingWindow,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Authenticate processes one factor of a login attempt. The lockout check
// precedes any hash comparison, and wrong-credential and unknown-account
// paths answer identically after a randomised per-request delay.
func (s *LoginService) Authenticate(ctx context.Context, input AuthenticateInput) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	factor, secret, err := submittedFactor(input)
	if err != nil {
		return nil, err
	}

	var account models.Account
	err = s.db.WithContext(ctx).First(&account, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		recordAudit(s.audit, ctx, AuditEntry{
			Action:    "login",
			Result:    "failure",
			Reason:    "unknown account",
			IPAddress: auth.AnonymizeIP(input.IPAddress),
			UserAgent: input.UserAgent,
		})
		s.sleep(ctx, failureDelay(s.randInt))
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login service: load account: %w", err)
	}

	now := s.now()
	state := lockStateOf(&account)

	// A locked account rejects before any hash comparison, but the attempt
	// still feeds the governor so the lock keeps escalating under pressure.
	if auth.Locked(state, now) {
		state = s.registerFailure(ctx, account.ID, input, "attempt while locked", "locked")
		return nil, apperrors.NewAccountLocked(auth.Remaining(state, now))
	}

	if account.Blocked {
		recordAudit(s.audit, ctx, AuditEntry{
			AccountID: &account.ID,
			Action:    "login",
			Result:    "blocked",
			IPAddress: s.auditIP(state, input.IPAddress),
			UserAgent: input.UserAgent,
		})
		return nil, apperrors.ErrAccountBlocked
	}

	if !s.verifyFactor(&account, factor, secret, now) {
		s.registerFailure(ctx, account.ID, input, "invalid "+factor, "failure")
		s.sleep(ctx, failureDelay(s.randInt))
		return nil, apperrors.ErrInvalidCredentials
	}

	if !account.MFAEnabled {
		return s.finishLogin(ctx, &account, input)
	}

	if account.FirstFactor == "" {
		return s.acceptFirstFactor(ctx, &account, factor, input, now)
	}

	if expired := account.FirstFactorAt == nil || now.Sub(*account.FirstFactorAt) > s.pendingWindow; expired {
		if err := s.clearPending(ctx, &account); err != nil {
			return nil, err
		}
		recordAudit(s.audit, ctx, AuditEntry{
			AccountID: &account.ID,
			Action:    "login",
			Result:    "failure",
			Reason:    "first factor expired",
			IPAddress: s.auditIP(state, input.IPAddress),
			UserAgent: input.UserAgent,
		})
		return nil, apperrors.ErrOutOfSequence
	}

	// Second factor must differ in kind from the first. Repeating the same
	// kind never authenticates, even with a valid credential.
	if factor == account.FirstFactor {
		recordAudit(s.audit, ctx, AuditEntry{
			AccountID: &account.ID,
			Action:    "login",
			Result:    "failure",
			Reason:    "same factor kind repeated",
			IPAddress: s.auditIP(state, input.IPAddress),
			UserAgent: input.UserAgent,
		})
		return nil, apperrors.ErrOutOfSequence
	}

	return s.finishLogin(ctx, &account, input)
}

func submittedFactor(input AuthenticateInput) (kind, secret string, err error) {
	hasPassword := strings.TrimSpace(input.Password) != ""
	hasOTP := strings.TrimSpace(input.OTP) != ""

	switch {
	case hasPassword && hasOTP:
		return "", "", apperrors.NewBadRequest("submit either a password or a one-time code, not both")
	case hasPassword:
		return models.FirstFactorPassword, input.Password, nil
	case hasOTP:
		return models.FirstFactorOTP, strings.TrimSpace(input.OTP), nil
	default:
		return "", "", apperrors.NewBadRequest("a password or one-time code is required")
	}
}

func (s *LoginService) verifyFactor(account *models.Account, factor, secret string, now time.Time) bool {
	switch factor {
	case models.FirstFactorPassword:
		// The pepper derives from the account's creation date, never from
		// the current month.
		return crypto.VerifyCredential(account.PasswordHash, secret, account.Salt, s.peppers.ForDate(account.CreatedAt))
	case models.FirstFactorOTP:
		return checkAccountOTP(account, secret, OTPPurposeLogin, now)
	default:
		return false
	}
}

func (s *LoginService) acceptFirstFactor(ctx context.Context, account *models.Account, factor string, input AuthenticateInput, now time.Time) (*AuthResult, error) {
	updates := map[string]any{
		"first_factor":    factor,
		"first_factor_at": now,
	}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("login service: record first factor: %w", err)
	}
	account.FirstFactor = factor
	account.FirstFactorAt = &now

	// Password first means the second factor is an emailed code. An OTP
	// first factor flips it: the password becomes the second factor and no
	// extra code is minted.
	if factor == models.FirstFactorPassword {
		code, err := setAccountOTP(ctx, s.db, account, OTPPurposeLogin, s.otpDigits, s.otpTTL, now)
		if err != nil {
			return nil, fmt.Errorf("login service: %w", err)
		}
		if err := mailOTP(ctx, s.mailer, account.Email, code, "Your sign-in code"); err != nil {
			s.log.Warn("otp mail failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	metrics.AuthAttempts.WithLabelValues("pending").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &account.ID,
		Action:    "login",
		Result:    "pending",
		Reason:    "first factor accepted: " + factor,
		IPAddress: s.auditIP(lockStateOf(account), input.IPAddress),
		UserAgent: input.UserAgent,
	})

	return &AuthResult{Pending: true, Account: account}, nil
}

func (s *LoginService) finishLogin(ctx context.Context, account *models.Account, input AuthenticateInput) (*AuthResult, error) {
	now := s.now()

	updates := map[string]any{
		"failed_attempts": 0,
		"last_failed_at":  nil,
		"locked_until":    nil,
		"first_factor":    "",
		"first_factor_at": nil,
		"otp_hash":        "",
		"otp_purpose":     "",
		"otp_expires_at":  nil,
		"last_login_at":   now,
		"last_login_ip":   auth.AnonymizeIP(input.IPAddress),
	}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("login service: finalise login: %w", err)
	}
	account.FailedAttempts = 0
	account.LastFailedAt = nil
	account.LockedUntil = nil
	account.FirstFactor = ""
	account.FirstFactorAt = nil
	account.OTPHash = ""
	account.LastLoginAt = &now

	token, err := s.jwt.GenerateAccessToken(auth.AccessTokenInput{
		AccountID:  account.ID,
		SessionKey: account.SessionKey,
	})
	if err != nil {
		return nil, fmt.Errorf("login service: issue access token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &account.ID,
		Action:    "login",
		Result:    "success",
		IPAddress: auth.AnonymizeIP(input.IPAddress),
		UserAgent: input.UserAgent,
	})

	return &AuthResult{AccessToken: token, Account: account}, nil
}

// registerFailure advances the lockout governor inside a row-locked
// transaction so concurrent failures against one account cannot both read the
// same counter. It returns the new governor state.
func (s *LoginService) registerFailure(ctx context.Context, accountID string, input AuthenticateInput, reason, result string) auth.LockState {
	now := s.now()
	var state auth.LockState

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&account, "id = ?", accountID).Error; err != nil {
			return err
		}

		state = auth.Fail(lockStateOf(&account), now)
		return tx.Model(&account).Updates(map[string]any{
			"failed_attempts": state.FailedAttempts,
			"last_failed_at":  state.LastFailedAt,
			"locked_until":    state.LockedUntil,
		}).Error
	})
	if err != nil {
		s.log.Error("failed to record login failure",
			zap.String("account_id", accountID), zap.Error(err))
		return state
	}

	if auth.Locked(state, now) {
		metrics.AccountLockouts.Inc()
	}
	metrics.AuthAttempts.WithLabelValues(result).Inc()

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &accountID,
		Action:    "login",
		Result:    result,
		Reason:    reason,
		IPAddress: s.auditIP(state, input.IPAddress),
		UserAgent: input.UserAgent,
		Metadata:  map[string]any{"failed_attempts": state.FailedAttempts},
	})

	return state
}

func (s *LoginService) clearPending(ctx context.Context, account *models.Account) error {
	updates := map[string]any{
		"first_factor":    "",
		"first_factor_at": nil,
	}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return fmt.Errorf("login service: clear pending state: %w", err)
	}
	account.FirstFactor = ""
	account.FirstFactorAt = nil
	return nil
}

// auditIP applies the disclosure rule: the full client address is recorded
// only once the failure count reaches the disclosure threshold.
func (s *LoginService) auditIP(state auth.LockState, ip string) string {
	if auth.DiscloseIP(state) {
		return ip
	}
	return auth.AnonymizeIP(ip)
}

func lockStateOf(account *models.Account) auth.LockState {
	return auth.LockState{
		FailedAttempts: account.FailedAttempts,
		LastFailedAt:   account.LastFailedAt,
		LockedUntil:    account.LockedUntil,
	}
}
