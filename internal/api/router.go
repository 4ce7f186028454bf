package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/hartline/accountd/internal/auth"
	"github.com/hartline/accountd/internal/handlers"
	"github.com/hartline/accountd/internal/middleware"
	"github.com/hartline/accountd/internal/monitoring"
	"github.com/hartline/accountd/internal/services"
)

// Deps carries everything the router needs. RateStore may be nil, which
// disables rate limiting (useful in tests).
type Deps struct {
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Accounts  *services.AccountService
	Login     *services.LoginService
	Passwords *services.PasswordService
	Emails    *services.EmailChangeService
	Audit     *services.AuditService

	RateStore  middleware.RateStore
	RateLimit  int
	RateWindow time.Duration

	HealthChecks []monitoring.Check
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Accounts == nil || deps.Login == nil || deps.Passwords == nil || deps.Emails == nil {
		return nil, fmt.Errorf("account, login, password and email services must be provided")
	}

	rateLimit := deps.RateLimit
	if rateLimit <= 0 {
		rateLimit = 100
	}
	rateWindow := deps.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit(deps.RateStore, rateLimit, rateWindow))

	r.GET("/health", handlers.Health(deps.HealthChecks...))

	accountHandler := handlers.NewAccountHandler(deps.Accounts)
	authHandler := handlers.NewAuthHandler(deps.Login, deps.Accounts)
	passwordHandler := handlers.NewPasswordHandler(deps.Passwords)
	emailHandler := handlers.NewEmailHandler(deps.Emails)

	requireAuth := middleware.Auth(deps.JWT, deps.DB)

	// Public routes. Everything here is reachable without credentials, so
	// anti-enumeration behaviour lives in the services behind them.
	public := r.Group("/api")
	{
		public.POST("/accounts", accountHandler.Create)
		public.POST("/accounts/verify", accountHandler.Verify)
		public.POST("/accounts/email/confirm", emailHandler.Confirm)
		public.POST("/auth/login", authHandler.Login)
		public.POST("/auth/password/forgot", passwordHandler.Forgot)
		public.POST("/auth/password/complete", passwordHandler.Complete)
	}

	// Authenticated routes.
	authed := r.Group("/api")
	authed.Use(requireAuth)
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.POST("/auth/logout", authHandler.Logout)
		authed.POST("/auth/password/change", passwordHandler.RequestChange)
		authed.POST("/accounts/me/email", emailHandler.Request)
		authed.POST("/accounts/me/mfa", accountHandler.SetMFA)
		authed.DELETE("/accounts/me", accountHandler.DeleteMe)
	}

	// Admin routes.
	if deps.Audit != nil {
		auditHandler := handlers.NewAuditHandler(deps.Audit)
		admin := r.Group("/api")
		admin.Use(requireAuth, middleware.RequireAdmin())
		admin.GET("/audit", auditHandler.List)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
