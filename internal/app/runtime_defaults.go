package app

import (
	"fmt"
	"strings"

	"github.com/hartline/accountd/pkg/crypto"
)

const (
	jwtSecretBytes     = 48
	signingSecretBytes = 32
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no
// configuration file is supplied. It returns a map describing which keys were
// generated so callers can log the event without exposing values. Generated
// secrets do not survive a restart, which retires every outstanding token.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.Auth.Tokens.SigningKey) == "" {
		secret, err := crypto.GenerateToken(signingSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate token signing key: %w", err)
		}
		cfg.Auth.Tokens.SigningKey = secret
		generated["auth.tokens.signing_key"] = true
	}

	return generated, nil
}
