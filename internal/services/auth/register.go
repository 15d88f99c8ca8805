// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/grant"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/verification"
)

// RegisterParams holds the parameters for a self-service registration.
type RegisterParams struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
	Meta                 models.RequestMeta
}

// Registration is the result of Register. The visitor gets a grant to
// finish email verification, not a session.
type Registration struct {
	Principal *models.Principal
	Grant     string
}

// Register creates a pending principal together with its first
// verification code and mails the code.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Registration, error) {
	name, err := validateName(params.Name)
	if err != nil {
		return nil, err
	}
	email, err := validateEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if params.Password != params.PasswordConfirmation {
		return nil, ErrPasswordMismatch
	}
	if err := s.creds.ValidatePassword(params.Password, name, email); err != nil {
		return nil, err
	}

	hash, err := s.creds.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	until := s.now().UTC().Add(s.pendingTTL)
	p := &models.Principal{
		Name:         name,
		Email:        email,
		PasswordHash: &hash,
		Status:       models.StatusPending,
		PendingUntil: &until,
	}

	var code string
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.CreatePrincipal(ctx, p); err != nil {
			return err
		}
		var err error
		code, err = s.codes.WithRepository(tx).Generate(ctx, p.ID)
		return err
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrPrincipalExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create principal: %w", err)
	}

	ticket, err := s.grants.Issue(p.ID)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "register_success", "principal_id", p.ID)
	s.deliver(ctx, p, code)

	fresh, err := s.load(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &Registration{Principal: fresh, Grant: ticket}, nil
}

// deliver mails a verification code. Delivery failures are logged; the
// principal can request a new code.
func (s *Service) deliver(ctx context.Context, p *models.Principal, code string) {
	if err := s.mailer.SendVerificationCode(ctx, p.Email, p.Name, code); err != nil {
		slog.ErrorContext(ctx, "verification_email_failed", "principal_id", p.ID, "error", err)
	}
}

// VerifyEmail checks code and activates the principal. An already
// verified principal is returned together with verification.ErrAlreadyVerified.
func (s *Service) VerifyEmail(ctx context.Context, principalID int64, code string, meta models.RequestMeta) (*models.Principal, error) {
	p, err := s.load(ctx, principalID)
	if err != nil {
		return nil, err
	}

	if err := s.codes.Check(p, code); err != nil {
		if errors.Is(err, verification.ErrAlreadyVerified) {
			return p, err
		}
		reason := "code_invalid"
		if errors.Is(err, verification.ErrCodeExpired) {
			reason = "code_expired"
		}
		slog.WarnContext(ctx, "email_verification_failed", "principal_id", p.ID, "reason", reason)
		s.audit(ctx, p, p.Email, models.AuthMethodEmailVerification, reason, meta)
		return nil, err
	}

	// The update only applies to the code that was checked; a resend in
	// between invalidates it.
	ok, err := s.repo.MarkEmailVerifiedWithCode(ctx, p.ID, *p.VerificationCode, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to verify email: %w", err)
	}
	if !ok {
		slog.WarnContext(ctx, "email_verification_failed", "principal_id", p.ID, "reason", "code_replaced")
		s.audit(ctx, p, p.Email, models.AuthMethodEmailVerification, "code_invalid", meta)
		return nil, verification.ErrCodeInvalid
	}

	slog.InfoContext(ctx, "email_verified", "principal_id", p.ID)
	s.audit(ctx, p, p.Email, models.AuthMethodEmailVerification, "", meta)
	return s.load(ctx, p.ID)
}

// VerifyEmailWithGrant is VerifyEmail for a visitor holding a grant
// ticket instead of a session.
func (s *Service) VerifyEmailWithGrant(ctx context.Context, ticket, code string, meta models.RequestMeta) (*models.Principal, error) {
	id, err := s.grants.Verify(ticket)
	if err != nil {
		return nil, err
	}
	p, err := s.VerifyEmail(ctx, id, code, meta)
	if errors.Is(err, ErrPrincipalNotFound) {
		// The registration expired and was cleaned up.
		return nil, grant.ErrInvalidGrant
	}
	return p, err
}

// ResendVerification issues and mails a new code, subject to the resend
// cool-down.
func (s *Service) ResendVerification(ctx context.Context, principalID int64) error {
	code, err := s.codes.Generate(ctx, principalID)
	if errors.Is(err, verification.ErrNotFound) {
		return ErrPrincipalNotFound
	}
	if err != nil {
		return err
	}
	p, err := s.load(ctx, principalID)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "verification_code_resent", "principal_id", p.ID)
	s.deliver(ctx, p, code)
	return nil
}

// ResendVerificationWithGrant is ResendVerification for a grant holder.
func (s *Service) ResendVerificationWithGrant(ctx context.Context, ticket string) error {
	id, err := s.grants.Verify(ticket)
	if err != nil {
		return err
	}
	err = s.ResendVerification(ctx, id)
	if errors.Is(err, ErrPrincipalNotFound) {
		return grant.ErrInvalidGrant
	}
	return err
}

// SecondsUntilResendAllowed reports the remaining resend cool-down.
func (s *Service) SecondsUntilResendAllowed(ctx context.Context, principalID int64) (int, error) {
	return s.codes.SecondsUntilResendAllowed(ctx, principalID)
}
