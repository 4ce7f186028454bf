package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hartline/accountd/internal/auth"
	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/crypto"
	apperrors "github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/metrics"
)

// DefaultTokenTTL is the storage-side lifetime of a credential token.
const DefaultTokenTTL = time.Hour

const tokenSecretBytes = 32

// IssueTokenInput describes a token to mint.
type IssueTokenInput struct {
	AccountID string
	Purpose   models.TokenPurpose
	GroupID   *string
	Payload   string
	TTL       time.Duration
	IPAddress string
	UserAgent string
}

// TokenService persists purpose-scoped single-use tokens and produces their
// signed wire representation.
type TokenService struct {
	db     *gorm.DB
	signer *auth.TokenSigner
	now    func() time.Time
}

// TokenServiceOption customises a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides the service clock, primarily for tests.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(db *gorm.DB, signer *auth.TokenSigner, opts ...TokenServiceOption) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}
	if signer == nil {
		return nil, errors.New("token service: signer is required")
	}

	svc := &TokenService{db: db, signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue persists a new token and returns its signed wire form. Re-issuing a
// purpose supersedes any prior unverified token of the same purpose for the
// account. Only the SHA-256 of the secret is stored.
func (s *TokenService) Issue(ctx context.Context, input IssueTokenInput) (string, *models.CredentialToken, error) {
	ctx = ensureContext(ctx)

	accountID := strings.TrimSpace(input.AccountID)
	if accountID == "" {
		return "", nil, apperrors.NewBadRequest("account id is required")
	}
	if !input.Purpose.Valid() {
		return "", nil, apperrors.NewBadRequest("unknown token purpose")
	}
	if input.Purpose.RequiresGroup() {
		if input.GroupID == nil || strings.TrimSpace(*input.GroupID) == "" {
			return "", nil, fmt.Errorf("token service: purpose %s requires a group id", input.Purpose)
		}
	} else if input.GroupID != nil {
		return "", nil, fmt.Errorf("token service: purpose %s must not carry a group id", input.Purpose)
	}

	secret, err := crypto.GenerateToken(tokenSecretBytes)
	if err != nil {
		return "", nil, fmt.Errorf("token service: generate secret: %w", err)
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	token := &models.CredentialToken{
		BaseModel:  models.BaseModel{CreatedAt: s.now()},
		AccountID:  accountID,
		Purpose:    input.Purpose,
		SecretHash: crypto.HashSecret(secret),
		GroupID:    input.GroupID,
		Payload:    input.Payload,
		IPAddress:  input.IPAddress,
		UserAgent:  input.UserAgent,
		ExpiresAt:  s.now().Add(ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("account_id = ? AND purpose = ? AND verified_at IS NULL", accountID, input.Purpose).
			Delete(&models.CredentialToken{}).Error; err != nil {
			return fmt.Errorf("token service: supersede prior tokens: %w", err)
		}
		return tx.Create(token).Error
	})
	if err != nil {
		return "", nil, fmt.Errorf("token service: create token: %w", err)
	}

	wire, err := s.signer.Sign(secret, string(input.Purpose))
	if err != nil {
		return "", nil, fmt.Errorf("token service: sign token: %w", err)
	}

	metrics.TokensIssued.WithLabelValues(string(input.Purpose)).Inc()

	return wire, token, nil
}

// VerifyAndConsume validates a wire token's signature and age, cross-checks
// the stored record, and flips it to verified. The lookup and flip run inside
// one row-locked transaction so two concurrent presentations of the same
// token cannot both win. Every failure collapses to ErrInvalidCredentials.
func (s *TokenService) VerifyAndConsume(ctx context.Context, wire string, purpose models.TokenPurpose) (*models.CredentialToken, error) {
	return s.VerifyAndConsumeAny(ctx, wire, purpose)
}

// VerifyAndConsumeAny is VerifyAndConsume for flows that accept more than one
// purpose. The purpose is resolved once from the signed claims instead of
// probing each candidate, so consuming under a later candidate never records
// a rejection for the earlier ones.
func (s *TokenService) VerifyAndConsumeAny(ctx context.Context, wire string, purposes ...models.TokenPurpose) (*models.CredentialToken, error) {
	ctx = ensureContext(ctx)

	candidates := make([]string, len(purposes))
	for i, p := range purposes {
		candidates[i] = string(p)
	}

	secret, resolved, err := s.signer.VerifyAny(wire, candidates...)
	if err != nil {
		label := "unknown"
		if len(candidates) == 1 {
			label = candidates[0]
		}
		metrics.TokensConsumed.WithLabelValues(label, "rejected").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	purpose := models.TokenPurpose(resolved)

	secretHash := crypto.HashSecret(secret)
	now := s.now()

	var token models.CredentialToken
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&token, "secret_hash = ?", secretHash).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrInvalidCredentials
		}
		if err != nil {
			return fmt.Errorf("token service: load token: %w", err)
		}

		if token.Purpose != purpose {
			return apperrors.ErrInvalidCredentials
		}
		if token.VerifiedAt != nil {
			return apperrors.ErrInvalidCredentials
		}
		if !token.CreatedAt.Before(now) || token.Expired(now) {
			return apperrors.ErrInvalidCredentials
		}

		token.VerifiedAt = &now
		return tx.Save(&token).Error
	})
	if err != nil {
		metrics.TokensConsumed.WithLabelValues(string(purpose), "rejected").Inc()
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("token service: consume token: %w", err)
	}

	metrics.TokensConsumed.WithLabelValues(string(purpose), "accepted").Inc()

	return &token, nil
}

// Delete removes a single token by id.
func (s *TokenService) Delete(ctx context.Context, tokenID string) error {
	ctx = ensureContext(ctx)
	return s.db.WithContext(ctx).Delete(&models.CredentialToken{}, "id = ?", tokenID).Error
}

// DeleteGroup removes every token sharing the supplied correlation id.
func (s *TokenService) DeleteGroup(ctx context.Context, groupID string) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(groupID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Delete(&models.CredentialToken{}, "group_id = ?", groupID).Error
}

// DeleteForAccount removes tokens held by an account, optionally narrowed to
// specific purposes.
func (s *TokenService) DeleteForAccount(ctx context.Context, accountID string, purposes ...models.TokenPurpose) error {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("account_id = ?", accountID)
	if len(purposes) > 0 {
		query = query.Where("purpose IN ?", purposes)
	}
	return query.Delete(&models.CredentialToken{}).Error
}

// CleanupExpired deletes tokens past their storage-side expiry. Correctness
// never depends on this; expiry is also checked lazily on consumption.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&models.CredentialToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("token service: cleanup expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}
