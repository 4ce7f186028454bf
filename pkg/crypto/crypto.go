package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// SaltBytes is the number of random bytes in a freshly generated account salt.
const SaltBytes = 16

// HashCredential derives a bcrypt digest from the salt, the submitted secret,
// and the server-side pepper, concatenated in that fixed order. The pepper is
// never stored alongside the digest; callers re-derive it from the account's
// creation date on verification.
func HashCredential(secret, salt, pepper string) (string, error) {
	if secret == "" {
		return "", errors.New("crypto: secret is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(salt+secret+pepper), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyCredential reports whether the digest matches the (secret, salt, pepper) triple.
func VerifyCredential(digest, secret, salt, pepper string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(salt+secret+pepper)) == nil
}

// GenerateSalt returns a hex-encoded per-account salt. Salts are fixed at
// account creation and never rotate.
func GenerateSalt() (string, error) {
	buf := make([]byte, SaltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateOTP returns a uniformly random numeric one-time code of the given
// number of digits.
func GenerateOTP(digits int) (string, error) {
	if digits <= 0 {
		return "", errors.New("crypto: otp digits must be positive")
	}

	code := make([]byte, digits)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

// HashSecret returns the hex-encoded SHA-256 of a token or OTP secret. Only
// this digest is ever persisted; the clear value goes to the client and is
// discarded.
func HashSecret(secret string) string {
	digest := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(digest[:])
}
