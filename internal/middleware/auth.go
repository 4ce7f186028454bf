package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/hartline/accountd/internal/auth"
	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxAccountIDKey = "accountID"
	CtxAccountKey   = "account"
)

// Auth enforces bearer authentication. Beyond signature and expiry checks, the
// session key inside the token must still match the one held by the account:
// logout, password change, and email change all rotate that key, which retires
// every token minted before the rotation.
func Auth(jwt *iauth.JWTService, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		var account models.Account
		if err := db.WithContext(c.Request.Context()).
			Take(&account, "id = ?", claims.AccountID).Error; err != nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if account.SessionKey == "" || account.SessionKey != claims.SessionKey {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if account.Blocked {
			response.Error(c, errors.ErrAccountBlocked)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxAccountIDKey, account.ID)
		c.Set(CtxAccountKey, &account)

		c.Next()
	}
}

// RequireAdmin allows only admin and superadmin accounts through. It must run
// after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxAccountKey)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		account, ok := v.(*models.Account)
		if !ok || !account.IsAdmin() {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
