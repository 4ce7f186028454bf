package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hartline/accountd/internal/services"
	"github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/response"
)

// AuthHandler exposes the login state machine and session teardown.
type AuthHandler struct {
	login    *services.LoginService
	accounts *services.AccountService
}

func NewAuthHandler(login *services.LoginService, accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{login: login, accounts: accounts}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"omitempty,max=256"`
	OTP      string `json:"otp" validate:"omitempty,numeric,max=10"`
}

// POST /api/auth/login
//
// Exactly one of password or otp must be present. A "pending" payload means
// the first factor was accepted and the other kind is now required.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.login.Authenticate(requestContext(c), services.AuthenticateInput{
		Email:     req.Email,
		Password:  req.Password,
		OTP:       req.OTP,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Pending {
		response.Success(c, http.StatusOK, gin.H{"pending": true})
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"access_token": result.AccessToken,
		"account":      result.Account,
	})
}

// POST /api/auth/logout
//
// Rotates the account's session key, which invalidates every outstanding
// access token at once.
func (h *AuthHandler) Logout(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.accounts.Logout(requestContext(c), accountID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	account, err := h.accounts.Get(requestContext(c), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, account)
}
