package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hartline/accountd/internal/services"
	"github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/response"
)

// EmailHandler drives the dual-token email change protocol.
type EmailHandler struct {
	emails *services.EmailChangeService
}

func NewEmailHandler(emails *services.EmailChangeService) *EmailHandler {
	return &EmailHandler{emails: emails}
}

type emailChangeRequest struct {
	NewEmail string `json:"new_email" validate:"required,email"`
}

// POST /api/accounts/me/email
func (h *EmailHandler) Request(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req emailChangeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.emails.Request(requestContext(c), services.RequestEmailChangeInput{
		AccountID: accountID,
		NewEmail:  req.NewEmail,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"requested": true})
}

type emailConfirmRequest struct {
	Token string `json:"token" validate:"required,max=2048"`
}

// POST /api/accounts/email/confirm
//
// Each of the two mailed tokens lands here. The change commits only once
// both have arrived.
func (h *EmailHandler) Confirm(c *gin.Context) {
	var req emailConfirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	status, err := h.emails.Confirm(requestContext(c), req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": status})
}
