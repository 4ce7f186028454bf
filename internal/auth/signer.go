package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultWireTokenMaxAge bounds how long a signed wire token stays valid,
// independent of the storage-side expiry of the record it references.
const DefaultWireTokenMaxAge = time.Hour

// ErrWireTokenInvalid covers every signature, age, and purpose failure. The
// reasons are deliberately not distinguishable by callers.
var ErrWireTokenInvalid = errors.New("signer: invalid or expired token")

// SignerConfig bundles the configuration required to build a TokenSigner.
type SignerConfig struct {
	Key    string
	MaxAge time.Duration
	Clock  func() time.Time
}

// wireClaims is the payload carried by a signed wire token. The purpose acts
// as a domain separator: a token signed for one purpose never verifies as
// another.
type wireClaims struct {
	Secret  string `json:"tks"`
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

// TokenSigner produces and checks the tamper-evident wire representation of
// credential-token secrets.
type TokenSigner struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenSigner constructs a signer from the provided configuration.
func NewTokenSigner(cfg SignerConfig) (*TokenSigner, error) {
	if cfg.Key == "" {
		return nil, errors.New("signer: key must be provided")
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultWireTokenMaxAge
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenSigner{
		key:    []byte(cfg.Key),
		maxAge: maxAge,
		now:    now,
	}, nil
}

// Sign wraps a token secret into a signed, self-expiring wire string.
func (s *TokenSigner) Sign(secret, purpose string) (string, error) {
	if secret == "" {
		return "", errors.New("signer: secret is required")
	}
	if purpose == "" {
		return "", errors.New("signer: purpose is required")
	}

	now := s.now()
	claims := &wireClaims{
		Secret:  secret,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signer: sign token: %w", err)
	}

	return signed, nil
}

// Verify checks signature, age, and purpose, returning the embedded secret.
// The age check against issued-at is independent of the exp claim so a forged
// or re-signed expiry cannot stretch a token's life.
func (s *TokenSigner) Verify(wire, purpose string) (string, error) {
	secret, _, err := s.VerifyAny(wire, purpose)
	return secret, err
}

// VerifyAny is Verify for flows that accept more than one purpose. The signed
// purpose claim must match one of the candidates; it is returned alongside
// the secret so callers learn which purpose the token was minted for.
func (s *TokenSigner) VerifyAny(wire string, purposes ...string) (string, string, error) {
	if wire == "" || len(purposes) == 0 {
		return "", "", ErrWireTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims wireClaims
	if _, err := parser.ParseWithClaims(wire, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	}); err != nil {
		return "", "", ErrWireTokenInvalid
	}

	matched := false
	for _, purpose := range purposes {
		if purpose != "" && claims.Purpose == purpose {
			matched = true
			break
		}
	}
	if !matched || claims.Secret == "" {
		return "", "", ErrWireTokenInvalid
	}

	if claims.IssuedAt == nil {
		return "", "", ErrWireTokenInvalid
	}
	if s.now().Sub(claims.IssuedAt.Time) > s.maxAge {
		return "", "", ErrWireTokenInvalid
	}

	return claims.Secret, claims.Purpose, nil
}
