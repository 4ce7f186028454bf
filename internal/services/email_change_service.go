package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/crypto"
	apperrors "github.com/hartline/accountd/pkg/errors"
	"github.com/hartline/accountd/pkg/logger"
	"github.com/hartline/accountd/pkg/mail"
)

// Email-change confirmation outcomes.
const (
	EmailChangeCommitted = "committed"
	EmailChangePending   = "pending"
)

// RequestEmailChangeInput describes an email-change request.
type RequestEmailChangeInput struct {
	AccountID string
	NewEmail  string
	IPAddress string
	UserAgent string
}

// EmailChangeService coordinates the dual-token protocol for changing a
// verified account's email address.
type EmailChangeService struct {
	db     *gorm.DB
	tokens *TokenService
	mailer mail.Mailer
	audit  *AuditService
	log    *zap.Logger
}

// NewEmailChangeService constructs an EmailChangeService instance.
func NewEmailChangeService(db *gorm.DB, tokens *TokenService, mailer mail.Mailer, audit *AuditService) (*EmailChangeService, error) {
	if db == nil {
		return nil, errors.New("email change service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("email change service: token service is required")
	}

	return &EmailChangeService{
		db:     db,
		tokens: tokens,
		mailer: mailer,
		audit:  audit,
		log:    logger.WithModule("email_change"),
	}, nil
}

// Request stages an email change. Verified accounts get the dual-token
// workflow: one token mailed to the current address, one to the candidate,
// linked by a shared correlation id. Unverified accounts cannot prove receipt
// of email yet, so the change applies immediately.
func (s *EmailChangeService) Request(ctx context.Context, input RequestEmailChangeInput) error {
	ctx = ensureContext(ctx)

	newEmail := strings.ToLower(strings.TrimSpace(input.NewEmail))
	if newEmail == "" {
		return apperrors.NewBadRequest("new email is required")
	}

	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "id = ?", input.AccountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("email change service: load account: %w", err)
	}

	if strings.EqualFold(account.Email, newEmail) {
		return apperrors.NewBadRequest("new email matches the current address")
	}

	var holders int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("email = ? AND id <> ?", newEmail, account.ID).
		Count(&holders).Error; err != nil {
		return fmt.Errorf("email change service: check email: %w", err)
	}
	if holders > 0 {
		return apperrors.NewBadRequest("email address is not available")
	}

	if !account.Verified {
		return s.commitImmediately(ctx, &account, newEmail, input)
	}

	groupID := uuid.NewString()

	err = s.db.WithContext(ctx).Model(&account).Update("pending_email", newEmail).Error
	if err != nil {
		return fmt.Errorf("email change service: stage pending email: %w", err)
	}

	oldWire, _, err := s.tokens.Issue(ctx, IssueTokenInput{
		AccountID: account.ID,
		Purpose:   models.PurposeEmailChangeOld,
		GroupID:   &groupID,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return err
	}

	newWire, _, err := s.tokens.Issue(ctx, IssueTokenInput{
		AccountID: account.ID,
		Purpose:   models.PurposeEmailChangeNew,
		GroupID:   &groupID,
		Payload:   newEmail,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return err
	}

	s.sendConfirmMail(ctx, account.Email, oldWire)
	s.sendConfirmMail(ctx, newEmail, newWire)

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &account.ID,
		Action:    "email_change.request",
		Result:    "pending",
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Metadata:  map[string]any{"group_id": groupID},
	})

	return nil
}

// Confirm consumes one side of an email-change pair. If the sibling is still
// unverified the result is pending; once both sides are verified the staged
// address is committed, the pair deleted, and every outstanding session
// invalidated by rotating the account's session key.
func (s *EmailChangeService) Confirm(ctx context.Context, wire string) (string, error) {
	ctx = ensureContext(ctx)

	token, err := s.tokens.VerifyAndConsumeAny(ctx, wire,
		models.PurposeEmailChangeOld, models.PurposeEmailChangeNew)
	if err != nil {
		return "", err
	}

	return s.resolve(ctx, token)
}

// resolve decides the outcome for a freshly consumed pair token. The sibling
// read, the pair delete, and the account update share one transaction so two
// concurrent confirmations cannot both commit: the loser observes the pair
// already retired and reports committed without mutating anything.
func (s *EmailChangeService) resolve(ctx context.Context, token *models.CredentialToken) (string, error) {
	if token.GroupID == nil || strings.TrimSpace(*token.GroupID) == "" {
		s.log.Error("email change token missing group id", zap.String("token_id", token.ID))
		return "", apperrors.ErrTokenGroupInconsistent
	}

	var (
		status    string
		committed bool
		oldEmail  string
		newEmail  string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var siblings []models.CredentialToken
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("group_id = ? AND id <> ?", *token.GroupID, token.ID).
			Find(&siblings).Error
		if err != nil {
			return fmt.Errorf("email change service: load sibling: %w", err)
		}

		if len(siblings) == 0 {
			// A concurrent confirmation of the other side may have committed
			// and retired the whole pair between our consume and this read.
			var remaining int64
			if err := tx.Model(&models.CredentialToken{}).
				Where("id = ?", token.ID).Count(&remaining).Error; err != nil {
				return fmt.Errorf("email change service: recheck token: %w", err)
			}
			if remaining == 0 {
				status = EmailChangeCommitted
				return nil
			}
		}

		// Exactly one sibling must exist. Anything else is a storage bug,
		// never user-caused.
		if len(siblings) != 1 {
			s.log.Error("inconsistent email change token group",
				zap.String("group_id", *token.GroupID),
				zap.Int("siblings", len(siblings)),
			)
			return apperrors.ErrTokenGroupInconsistent
		}

		sibling := siblings[0]
		if sibling.VerifiedAt == nil {
			status = EmailChangePending
			return nil
		}

		newEmail = token.Payload
		if token.Purpose == models.PurposeEmailChangeOld {
			newEmail = sibling.Payload
		}
		if strings.TrimSpace(newEmail) == "" {
			s.log.Error("email change pair carries no candidate address",
				zap.String("group_id", *token.GroupID))
			return apperrors.ErrTokenGroupInconsistent
		}

		// Retire the pair before touching the account. Exactly two rows gone
		// means this confirmation owns the commit; anything else means a
		// concurrent one already did.
		res := tx.Delete(&models.CredentialToken{}, "group_id = ?", *token.GroupID)
		if res.Error != nil {
			return fmt.Errorf("email change service: retire pair: %w", res.Error)
		}
		if res.RowsAffected != 2 {
			status = EmailChangeCommitted
			return nil
		}

		sessionKey, err := crypto.GenerateToken(sessionKeyBytes)
		if err != nil {
			return fmt.Errorf("email change service: rotate session key: %w", err)
		}

		var account models.Account
		if err := tx.First(&account, "id = ?", token.AccountID).Error; err != nil {
			return fmt.Errorf("email change service: load account: %w", err)
		}
		oldEmail = account.Email

		updates := map[string]any{
			"email":         newEmail,
			"pending_email": "",
			"session_key":   sessionKey,
		}
		if err := tx.Model(&account).Updates(updates).Error; err != nil {
			return fmt.Errorf("email change service: commit email: %w", err)
		}

		status = EmailChangeCommitted
		committed = true
		return nil
	})
	if err != nil {
		return "", err
	}

	switch {
	case committed:
		s.sendCommittedMail(ctx, oldEmail, newEmail)
		s.sendCommittedMail(ctx, newEmail, newEmail)

		recordAudit(s.audit, ctx, AuditEntry{
			AccountID: &token.AccountID,
			Action:    "email_change.confirm",
			Result:    "success",
			Metadata:  map[string]any{"group_id": *token.GroupID},
		})
	case status == EmailChangePending:
		recordAudit(s.audit, ctx, AuditEntry{
			AccountID: &token.AccountID,
			Action:    "email_change.confirm",
			Result:    "pending",
			Reason:    "sibling unverified",
		})
	}

	return status, nil
}

func (s *EmailChangeService) commitImmediately(ctx context.Context, account *models.Account, newEmail string, input RequestEmailChangeInput) error {
	// Even the direct path invalidates outstanding sessions: the session key
	// rotates on every successful email change.
	sessionKey, err := crypto.GenerateToken(sessionKeyBytes)
	if err != nil {
		return fmt.Errorf("email change service: rotate session key: %w", err)
	}

	err = s.db.WithContext(ctx).Model(account).Updates(map[string]any{
		"email":       newEmail,
		"session_key": sessionKey,
	}).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.NewBadRequest("email address is not available")
		}
		return fmt.Errorf("email change service: update email: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		AccountID: &account.ID,
		Action:    "email_change.request",
		Result:    "success",
		Reason:    "account unverified, change applied directly",
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})

	return nil
}

func (s *EmailChangeService) sendConfirmMail(ctx context.Context, to, wire string) {
	if s.mailer == nil {
		return
	}
	err := s.mailer.Send(ctx, mail.Message{
		To:      []string{to},
		Subject: "Confirm your email change",
		Body: "A change of the email address on your account was requested.\r\n" +
			"Confirm with this token: " + wire + "\r\n" +
			"If you did not request this, you can ignore this message.\r\n",
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("email change mail failed", zap.String("to", to), zap.Error(err))
	}
}

func (s *EmailChangeService) sendCommittedMail(ctx context.Context, to, newEmail string) {
	if s.mailer == nil {
		return
	}
	err := s.mailer.Send(ctx, mail.Message{
		To:      []string{to},
		Subject: "Your email address was changed",
		Body:    "The email address on your account is now " + newEmail + ".\r\n",
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("email change notice failed", zap.String("to", to), zap.Error(err))
	}
}
