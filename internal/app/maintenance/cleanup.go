package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/internal/services"
	"github.com/hartline/accountd/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultTokenSpec          = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultAccountSpec        = "@hourly"
)

// Cleaner coordinates background maintenance: purging expired credential
// tokens, pruning old audit logs, and scrubbing stale OTP and two-step login
// state off accounts.
type Cleaner struct {
	db        *gorm.DB
	tokens    *services.TokenService
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int

	pendingWindow time.Duration

	tokenSchedule   string
	auditSchedule   string
	accountSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithPendingWindow aligns the scrub of stale first factors with the login
// service's pending window.
func WithPendingWindow(window time.Duration) Option {
	return func(cleaner *Cleaner) {
		if window > 0 {
			cleaner.pendingWindow = window
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithAccountSchedule overrides the cron specification for account scrubbing.
func WithAccountSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.accountSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, tokens *services.TokenService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		tokens:          tokens,
		audit:           audit,
		now:             time.Now,
		retention:       defaultAuditRetentionDays,
		pendingWindow:   services.DefaultMFAPendingWindow,
		tokenSchedule:   defaultTokenSpec,
		auditSchedule:   defaultAuditSpec,
		accountSchedule: defaultAccountSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.tokens != nil || cleaner.audit != nil || cleaner.db != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.tokens != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			if _, err := c.tokens.CleanupExpired(context.Background()); err != nil {
				c.log.Warn("token cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.accountSchedule, func() {
			if _, err := ScrubAccounts(context.Background(), c.db, c.now(), c.pendingWindow); err != nil {
				c.log.Warn("account scrub failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.tokens != nil {
		if _, err := c.tokens.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := ScrubAccounts(ctx, c.db, c.now(), c.pendingWindow); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// ScrubAccounts clears expired one-time codes and abandoned first factors so
// stale state never lingers on account rows. Returns the number of accounts
// touched.
func ScrubAccounts(ctx context.Context, db *gorm.DB, now time.Time, pendingWindow time.Duration) (int64, error) {
	if db == nil {
		return 0, errors.New("scrub accounts: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if pendingWindow <= 0 {
		pendingWindow = services.DefaultMFAPendingWindow
	}

	var touched int64

	result := db.WithContext(ctx).Model(&models.Account{}).
		Where("otp_hash <> '' AND otp_expires_at IS NOT NULL AND otp_expires_at < ?", now).
		Updates(map[string]any{
			"otp_hash":       "",
			"otp_purpose":    "",
			"otp_expires_at": nil,
		})
	if result.Error != nil {
		return touched, fmt.Errorf("scrub accounts: expired codes: %w", result.Error)
	}
	touched += result.RowsAffected

	cutoff := now.Add(-pendingWindow)
	result = db.WithContext(ctx).Model(&models.Account{}).
		Where("first_factor <> '' AND first_factor_at IS NOT NULL AND first_factor_at < ?", cutoff).
		Updates(map[string]any{
			"first_factor":    "",
			"first_factor_at": nil,
		})
	if result.Error != nil {
		return touched, fmt.Errorf("scrub accounts: stale first factors: %w", result.Error)
	}
	touched += result.RowsAffected

	return touched, nil
}
