package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Access levels an account can hold.
const (
	AccessLevelUser       = "user"
	AccessLevelAdmin      = "admin"
	AccessLevelSuperadmin = "superadmin"
)

// First factors accepted during a two-step login.
const (
	FirstFactorPassword = "password"
	FirstFactorOTP      = "otp"
)

// Account is the central user record. The password hash binds the per-account
// Salt and the pepper chosen by CreatedAt, so neither column is usable alone.
// SessionKey is the alternate session identifier embedded in every access
// token: rotating it cuts off all outstanding sessions at once.
type Account struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `json:"name"`

	PasswordHash string `gorm:"not null" json:"-"`
	Salt         string `gorm:"not null" json:"-"`
	SessionKey   string `gorm:"not null" json:"-"`

	AccessLevel string `gorm:"default:user" json:"access_level"`
	Verified    bool   `gorm:"default:false" json:"verified"`
	Blocked     bool   `gorm:"default:false" json:"-"`

	RecoveryEmail string `json:"recovery_email,omitempty"`
	PendingEmail  string `json:"-"`

	MFAEnabled bool `gorm:"default:false" json:"mfa_enabled"`

	// Pending OTP challenge. A single slot per account: issuing a new code
	// overwrites the previous one.
	OTPHash      string     `json:"-"`
	OTPPurpose   string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`

	// Two-step login progress. FirstFactor names the kind already presented
	// so the second step can insist on a different one.
	FirstFactor   string     `json:"-"`
	FirstFactorAt *time.Time `json:"-"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LastFailedAt   *time.Time `json:"-"`
	LockedUntil    *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// IsAdmin reports whether the account holds an administrative access level.
func (a *Account) IsAdmin() bool {
	return a.AccessLevel == AccessLevelAdmin || a.AccessLevel == AccessLevelSuperadmin
}
