package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hartline/accountd/internal/api"
	"github.com/hartline/accountd/internal/app"
	"github.com/hartline/accountd/internal/app/maintenance"
	iauth "github.com/hartline/accountd/internal/auth"
	"github.com/hartline/accountd/internal/cache"
	"github.com/hartline/accountd/internal/database"
	"github.com/hartline/accountd/internal/middleware"
	"github.com/hartline/accountd/internal/monitoring"
	"github.com/hartline/accountd/internal/services"
	"github.com/hartline/accountd/pkg/logger"
	"github.com/hartline/accountd/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     cache.Store
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	signer, err := iauth.NewTokenSigner(cfg.Auth.SignerServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token signer: %w", err)
	}

	peppers := cfg.Auth.PepperTable(log)

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	tokenSvc, err := services.NewTokenService(stack.DB, signer)
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	accountSvc, err := services.NewAccountService(stack.DB, tokenSvc, peppers, mailer, auditSvc,
		services.WithAccountOTP(cfg.Auth.OTP.Digits, cfg.Auth.OTP.TTL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise account service: %w", err)
	}

	loginSvc, err := services.NewLoginService(stack.DB, jwtSvc, peppers, mailer, auditSvc,
		services.WithOTPDigits(cfg.Auth.OTP.Digits),
		services.WithOTPValidity(cfg.Auth.OTP.TTL),
		services.WithMFAPendingWindow(cfg.Auth.MFA.PendingWindow),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise login service: %w", err)
	}

	passwordSvc, err := services.NewPasswordService(stack.DB, tokenSvc, peppers, mailer, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise password service: %w", err)
	}

	emailSvc, err := services.NewEmailChangeService(stack.DB, tokenSvc, mailer, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise email change service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, tokenSvc, auditSvc,
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithPendingWindow(cfg.Auth.MFA.PendingWindow),
		maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
		maintenance.WithAccountSchedule(cfg.Maintenance.AccountSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	switch {
	case stack.Redis != nil:
		stack.RateStore = middleware.NewCacheRateStore(stack.Redis)
	case dbStore != nil:
		stack.RateStore = middleware.NewCacheRateStore(dbStore)
	}

	var redisPinger monitoring.RedisPinger
	if rc, ok := stack.Redis.(*cache.RedisClient); ok && rc != nil {
		redisPinger = rc
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:         stack.DB,
		JWT:        jwtSvc,
		Accounts:   accountSvc,
		Login:      loginSvc,
		Passwords:  passwordSvc,
		Emails:     emailSvc,
		Audit:      auditSvc,
		RateStore:  stack.RateStore,
		RateLimit:  cfg.Server.RateLimit.Requests,
		RateWindow: cfg.Server.RateLimit.Window,
		HealthChecks: []monitoring.Check{
			monitoring.Database(stack.DB, 0),
			monitoring.Redis(redisPinger, cfg.Cache.Redis.Enabled, cfg.Cache.Redis.Timeout),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
