// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/recovery"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
)

// LoginParams holds a password login attempt. PreviousToken is the session
// cookie the client presented, if any; it is destroyed on success.
type LoginParams struct {
	Email         string
	Password      string
	PreviousToken string
	Meta          models.RequestMeta
}

// Login checks email and password and starts a session that has not passed
// the MFA gate. Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, params LoginParams) (*Outcome, error) {
	email := repository.NormalizeEmail(params.Email)

	p, err := s.repo.GetPrincipalByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	if p == nil {
		s.creds.CheckUnknown(params.Password)
	}
	if p == nil || !s.creds.CheckPassword(p, params.Password) {
		slog.WarnContext(ctx, "login_failed", "email", email, "reason", "invalid_credentials")
		s.audit(ctx, p, email, models.AuthMethodPassword, "invalid_credentials", params.Meta)
		return nil, ErrInvalidCredentials
	}

	out, err := s.startSession(ctx, p, params.PreviousToken, params.Meta)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "login_success", "principal_id", p.ID, "state", out.State)
	s.audit(ctx, p, email, models.AuthMethodPassword, "", params.Meta)
	return out, nil
}

// SocialLoginParams carries the profile a provider vouched for.
type SocialLoginParams struct {
	Provider      string
	ProviderID    string
	Email         string
	Name          string
	PreviousToken string
	Meta          models.RequestMeta
}

// SocialLogin signs in through a provider identity. A known identity wins;
// otherwise an account with the same email is linked. A verified account
// keeps its password; an unverified one is claimed by the provider and
// loses it. Otherwise a new active principal is created. The MFA gate
// still applies.
func (s *Service) SocialLogin(ctx context.Context, params SocialLoginParams) (*Outcome, error) {
	if !models.ValidProvider(params.Provider) || params.ProviderID == "" {
		return nil, ErrUnknownProvider
	}
	email, err := validateEmail(params.Email)
	if err != nil {
		return nil, err
	}

	var p *models.Principal
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		p, err = tx.GetPrincipalByIdentity(ctx, params.Provider, params.ProviderID)
		if err == nil || !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		p, err = tx.GetPrincipalByEmail(ctx, email)
		switch {
		case err == nil:
			if err := tx.CreateIdentity(ctx, p.ID, params.Provider, params.ProviderID); err != nil {
				return err
			}
			if !p.IsEmailVerified() {
				if err := s.claimUnverified(ctx, tx, p.ID, params); err != nil {
					return err
				}
			}
			slog.InfoContext(ctx, "social_account_linked", "principal_id", p.ID, "provider", params.Provider, "claimed", !p.IsEmailVerified())
			p, err = tx.GetPrincipalByID(ctx, p.ID)
			return err
		case errors.Is(err, repository.ErrNotFound):
			p, err = s.createSocialPrincipal(ctx, tx, params, email)
			return err
		default:
			return err
		}
	})
	if err != nil {
		slog.ErrorContext(ctx, "social_login_failed", "provider", params.Provider, "error", err)
		return nil, fmt.Errorf("failed to resolve social principal: %w", err)
	}

	out, err := s.startSession(ctx, p, params.PreviousToken, params.Meta)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "login_success", "principal_id", p.ID, "provider", params.Provider, "state", out.State)
	s.audit(ctx, p, email, models.AuthMethodSocial, "", params.Meta)
	return out, nil
}

// claimUnverified gives an unverified account to the provider identity
// that proved the address. Whoever registered it never did, so their
// password, MFA enrollment and sessions go.
func (s *Service) claimUnverified(ctx context.Context, tx *repository.Repository, id int64, params SocialLoginParams) error {
	if err := tx.ClaimForProvider(ctx, id, params.Provider, params.ProviderID, s.now()); err != nil {
		return err
	}
	if err := tx.ClearMFA(ctx, id); err != nil {
		return err
	}
	if err := tx.DeleteRecoveryCodes(ctx, id); err != nil {
		return err
	}
	return tx.DeletePrincipalSessions(ctx, id, "")
}

func (s *Service) createSocialPrincipal(ctx context.Context, tx *repository.Repository, params SocialLoginParams, email string) (*models.Principal, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	provider, providerID := params.Provider, params.ProviderID
	verified := s.now().UTC()
	p := &models.Principal{
		Name:             name,
		Email:            email,
		OriginProvider:   &provider,
		OriginProviderID: &providerID,
		Status:           models.StatusActive,
		EmailVerifiedAt:  &verified,
	}
	if err := tx.CreatePrincipal(ctx, p); err != nil {
		return nil, err
	}
	if err := tx.CreateIdentity(ctx, p.ID, provider, providerID); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "social_register_success", "principal_id", p.ID, "provider", provider)
	return p, nil
}

// startSession replaces previousToken with a fresh session whose MFA gate
// is closed.
func (s *Service) startSession(ctx context.Context, p *models.Principal, previousToken string, meta models.RequestMeta) (*Outcome, error) {
	var (
		token string
		sess  *models.Session
	)
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		store := s.sessions.WithRepository(tx)
		if err := store.Destroy(ctx, previousToken); err != nil {
			return err
		}
		var err error
		token, sess, err = store.Create(ctx, p.ID, false, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Principal: p, Session: sess, State: Resolve(p, sess), Token: token}, nil
}

// MfaOutcome is an Outcome plus the factor that passed the challenge.
type MfaOutcome struct {
	Outcome
	Method                 string
	RecoveryCodesRemaining int
}

// CompleteMfa runs the second-factor challenge for a session in
// AwaitingMfa. On success the session is replaced by a new one with the
// MFA gate open; on failure it stays as it is.
func (s *Service) CompleteMfa(ctx context.Context, sess *models.Session, code string, meta models.RequestMeta) (*MfaOutcome, error) {
	p, err := s.load(ctx, sess.PrincipalID)
	if err != nil {
		return nil, err
	}
	if !p.MFAEnabled {
		return nil, mfa.ErrMfaNotConfigured
	}
	if Resolve(p, sess) != AwaitingMfa {
		return nil, ErrNotAwaitingMfa
	}

	result, err := s.mfa.Verify(ctx, p, code)
	if err != nil {
		method := models.AuthMethodMFA
		if recovery.LooksLikeCode(code) {
			method = models.AuthMethodRecoveryCode
		}
		slog.WarnContext(ctx, "mfa_verify_failed", "principal_id", p.ID, "error", err)
		s.audit(ctx, p, p.Email, method, "invalid_code", meta)
		return nil, err
	}

	token, fresh, err := s.sessions.Regenerate(ctx, sess, true)
	if err != nil {
		return nil, err
	}

	method := models.AuthMethodMFA
	if result.Method == mfa.MethodRecoveryCode {
		method = models.AuthMethodRecoveryCode
	}
	slog.InfoContext(ctx, "mfa_verify_success", "principal_id", p.ID, "method", result.Method)
	s.audit(ctx, p, p.Email, method, "", meta)

	return &MfaOutcome{
		Outcome:                Outcome{Principal: p, Session: fresh, State: Resolve(p, fresh), Token: token},
		Method:                 result.Method,
		RecoveryCodesRemaining: result.RecoveryCodesRemaining,
	}, nil
}

// Logout destroys the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string, meta models.RequestMeta) error {
	sess, err := s.sessions.Lookup(ctx, token)
	if errors.Is(err, session.ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return err
	}

	p, err := s.repo.GetPrincipalByID(ctx, sess.PrincipalID)
	if err == nil {
		slog.InfoContext(ctx, "logout", "principal_id", p.ID)
		s.audit(ctx, p, p.Email, models.AuthMethodLogout, "", meta)
	}
	return nil
}
