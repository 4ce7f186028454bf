package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hartline/accountd/internal/services"
	"github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/response"
)

// AccountHandler covers signup, verification, MFA toggling, and deletion.
type AccountHandler struct {
	accounts *services.AccountService
}

func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type createAccountRequest struct {
	Name          string `json:"name" validate:"omitempty,max=128"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=8,max=256"`
	RecoveryEmail string `json:"recovery_email" validate:"omitempty,email"`
}

// POST /api/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req createAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.accounts.Create(requestContext(c), services.CreateAccountInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		RecoveryEmail: req.RecoveryEmail,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, account)
}

type verifyAccountRequest struct {
	Token string `json:"token" validate:"omitempty,max=2048"`
	Email string `json:"email" validate:"omitempty,email"`
	OTP   string `json:"otp" validate:"omitempty,numeric,max=10"`
}

// POST /api/accounts/verify
//
// Accepts either the mailed link token or the email plus the mailed code.
func (h *AccountHandler) Verify(c *gin.Context) {
	var req verifyAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.accounts.Verify(requestContext(c), services.VerifyAccountInput{
		Token: req.Token,
		Email: req.Email,
		OTP:   req.OTP,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

type setMFARequest struct {
	Enable bool   `json:"enable"`
	OTP    string `json:"otp" validate:"omitempty,numeric,max=10"`
}

// POST /api/accounts/me/mfa
func (h *AccountHandler) SetMFA(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req setMFARequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.accounts.SetMFA(requestContext(c), services.SetMFAInput{
		AccountID: accountID,
		Enable:    req.Enable,
		OTP:       req.OTP,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"mfa_enabled": result.Enabled,
		"pending":     result.Pending,
	})
}

// DELETE /api/accounts/me
func (h *AccountHandler) DeleteMe(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.accounts.Delete(requestContext(c), accountID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
