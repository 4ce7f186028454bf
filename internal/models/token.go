package models

import "time"

// TokenPurpose scopes a credential token to the single operation it may
// complete. A token never verifies under a purpose other than its own.
type TokenPurpose string

const (
	PurposePasswordReset     TokenPurpose = "password_reset"
	PurposePasswordChange    TokenPurpose = "password_change"
	PurposeEmailChangeOld    TokenPurpose = "email_change_old"
	PurposeEmailChangeNew    TokenPurpose = "email_change_new"
	PurposeEmailVerification TokenPurpose = "email_verification"
)

// Valid reports whether the purpose is one the system issues.
func (p TokenPurpose) Valid() bool {
	switch p {
	case PurposePasswordReset, PurposePasswordChange,
		PurposeEmailChangeOld, PurposeEmailChangeNew,
		PurposeEmailVerification:
		return true
	}
	return false
}

// RequiresGroup reports whether tokens of this purpose are only ever issued
// as half of a linked pair.
func (p TokenPurpose) RequiresGroup() bool {
	return p == PurposeEmailChangeOld || p == PurposeEmailChangeNew
}

// CredentialToken is the stored side of a single-use token. Only the SHA-256
// of the secret is persisted; the cleartext leaves the system inside the
// signed wire form and is never recoverable from the database.
//
// GroupID links the two halves of an email-change pair. Payload carries the
// purpose-specific data the completion step needs (the candidate address for
// email changes).
type CredentialToken struct {
	BaseModel

	AccountID string   `gorm:"type:uuid;not null;index" json:"account_id"`
	Account   *Account `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`

	Purpose    TokenPurpose `gorm:"not null;index" json:"purpose"`
	SecretHash string       `gorm:"uniqueIndex;not null" json:"-"`
	GroupID    *string      `gorm:"type:uuid;index" json:"-"`
	Payload    string       `json:"-"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`

	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	VerifiedAt *time.Time `json:"-"`
}

// Expired reports whether the token's storage-side lifetime has passed.
func (t *CredentialToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
