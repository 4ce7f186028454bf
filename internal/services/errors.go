package services

import (
	"net/http"

	apperrors "github.com/hartline/accountd/pkg/errors"
)

// ErrAccountNotFound indicates the requested account does not exist. It is
// only returned from authed profile operations; credential flows collapse the
// same condition into ErrInvalidCredentials.
var ErrAccountNotFound = apperrors.New("ACCOUNT_NOT_FOUND", "Account not found", http.StatusNotFound)

// OTP purposes. An OTP minted for one purpose never satisfies a check for
// another.
const (
	OTPPurposeLogin      = "login"
	OTPPurposeVerify     = "verify"
	OTPPurposeMFADisable = "mfa_disable"
)
