package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hartline/accountd/internal/services"
	"github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/response"
)

// PasswordHandler exposes the reset and change workflows.
type PasswordHandler struct {
	passwords *services.PasswordService
}

func NewPasswordHandler(passwords *services.PasswordService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/password/forgot
//
// Always answers 200: the response must not reveal whether the address has
// an account behind it.
func (h *PasswordHandler) Forgot(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.passwords.RequestReset(requestContext(c), services.RequestPasswordResetInput{
		Email:     req.Email,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

// POST /api/auth/password/change
func (h *PasswordHandler) RequestChange(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	err := h.passwords.RequestChange(requestContext(c), accountID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type completePasswordRequest struct {
	Token       string `json:"token" validate:"required,max=2048"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=256"`
}

// POST /api/auth/password/complete
func (h *PasswordHandler) Complete(c *gin.Context) {
	var req completePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.passwords.Complete(requestContext(c), services.CompletePasswordChangeInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"changed": true})
}
