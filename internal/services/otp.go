package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/crypto"
	"github.com/hartline/accountd/pkg/mail"
)

// DefaultOTPDigits is the length of emailed one-time codes.
const DefaultOTPDigits = 6

// DefaultOTPTTL bounds how long an emailed code stays usable.
const DefaultOTPTTL = 10 * time.Minute

// setAccountOTP mints a fresh one-time code, stores its hash in the account's
// single OTP slot (overwriting any previous code), and returns the clear code
// for mailing. The clear code is never persisted.
func setAccountOTP(ctx context.Context, db *gorm.DB, account *models.Account, purpose string, digits int, ttl time.Duration, now time.Time) (string, error) {
	if digits <= 0 {
		digits = DefaultOTPDigits
	}
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}

	code, err := crypto.GenerateOTP(digits)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	expiresAt := now.Add(ttl)
	updates := map[string]any{
		"otp_hash":       crypto.HashSecret(code),
		"otp_purpose":    purpose,
		"otp_expires_at": expiresAt,
	}
	if err := db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}

	account.OTPHash = updates["otp_hash"].(string)
	account.OTPPurpose = purpose
	account.OTPExpiresAt = &expiresAt

	return code, nil
}

// checkAccountOTP reports whether the submitted code matches the account's
// pending OTP slot for the given purpose and has not expired. Expiry is
// checked lazily here; no background eviction is required for correctness.
func checkAccountOTP(account *models.Account, code, purpose string, now time.Time) bool {
	if code == "" || account.OTPHash == "" {
		return false
	}
	if account.OTPPurpose != purpose {
		return false
	}
	if account.OTPExpiresAt == nil || !account.OTPExpiresAt.After(now) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(crypto.HashSecret(code)), []byte(account.OTPHash)) == 1
}

// clearAccountOTP empties the account's OTP slot so a consumed code can never
// be replayed.
func clearAccountOTP(ctx context.Context, db *gorm.DB, account *models.Account) error {
	updates := map[string]any{
		"otp_hash":       "",
		"otp_purpose":    "",
		"otp_expires_at": nil,
	}
	if err := db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return fmt.Errorf("clear otp: %w", err)
	}
	account.OTPHash = ""
	account.OTPPurpose = ""
	account.OTPExpiresAt = nil
	return nil
}

// mailOTP delivers a one-time code. A disabled mailer is tolerated so
// development setups still work; the code then only lands in the OTP slot.
func mailOTP(ctx context.Context, mailer mail.Mailer, to, code, subject string) error {
	if mailer == nil {
		return nil
	}
	err := mailer.Send(ctx, mail.Message{
		To:      []string{to},
		Subject: subject,
		Body:    "Your confirmation code is: " + code + "\r\nIt expires shortly.\r\n",
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		return err
	}
	return nil
}
