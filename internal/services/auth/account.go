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
)

// ChangePasswordParams holds a password change. CurrentPassword is ignored
// for principals without a password, who re-prove through a fresh session.
type ChangePasswordParams struct {
	CurrentPassword      string
	Password             string
	PasswordConfirmation string
}

// ChangePassword sets a new password after re-proof and ends all other
// sessions of p in the same transaction. A social principal gains a local
// credential.
func (s *Service) ChangePassword(ctx context.Context, p *models.Principal, sess *models.Session, params ChangePasswordParams) error {
	if err := s.creds.VerifyProof(p, sess, params.CurrentPassword); err != nil {
		return err
	}
	if params.Password != params.PasswordConfirmation {
		return ErrPasswordMismatch
	}
	if err := s.creds.ValidatePassword(params.Password, p.Name, p.Email); err != nil {
		return err
	}

	hash, err := s.creds.Hash(params.Password)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdatePassword(ctx, p.ID, hash); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if err := s.sessions.WithRepository(tx).DestroyOthers(ctx, p.ID, sess); err != nil {
			return fmt.Errorf("failed to end other sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "password_changed", "principal_id", p.ID)
	return nil
}

// UpdateProfileParams holds a profile change. Nil fields stay as they are.
// CurrentPassword is the re-proof required for an email change.
type UpdateProfileParams struct {
	Name            *string
	Email           *string
	CurrentPassword string
}

// ProfileUpdate is the result of UpdateProfile.
type ProfileUpdate struct {
	Principal    *models.Principal
	EmailChanged bool
}

// UpdateProfile changes name and email of p. A new email address must be
// verified again: the principal drops back to AwaitingEmailVerification and
// a code is mailed to the new address.
func (s *Service) UpdateProfile(ctx context.Context, p *models.Principal, sess *models.Session, params UpdateProfileParams) (*ProfileUpdate, error) {
	var name, email string
	var err error
	if params.Name != nil {
		if name, err = validateName(*params.Name); err != nil {
			return nil, err
		}
	}
	if params.Email != nil {
		if email, err = validateEmail(*params.Email); err != nil {
			return nil, err
		}
	}
	emailChanged := email != "" && email != p.Email
	if emailChanged {
		if err := s.creds.VerifyProof(p, sess, params.CurrentPassword); err != nil {
			return nil, err
		}
	}

	var code string
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if name != "" && name != p.Name {
			if err := tx.UpdatePrincipalName(ctx, p.ID, name); err != nil {
				return err
			}
		}
		if !emailChanged {
			return nil
		}
		if err := tx.ChangePrincipalEmail(ctx, p.ID, email); err != nil {
			return err
		}
		var err error
		code, err = s.codes.WithRepository(tx).Generate(ctx, p.ID)
		return err
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrPrincipalExists
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	fresh, err := s.load(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "profile_updated", "principal_id", p.ID, "email_changed", emailChanged)
	if emailChanged {
		s.deliver(ctx, fresh, code)
	}
	return &ProfileUpdate{Principal: fresh, EmailChanged: emailChanged}, nil
}

// DeleteAccount removes p after re-proof. Sessions, recovery codes and
// identities go with it.
func (s *Service) DeleteAccount(ctx context.Context, p *models.Principal, sess *models.Session, proof string) error {
	if err := s.creds.VerifyProof(p, sess, proof); err != nil {
		return err
	}
	if err := s.repo.DeletePrincipal(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	slog.InfoContext(ctx, "account_deleted", "principal_id", p.ID)
	return nil
}

// CleanupExpiredPending deletes registrations that were never verified
// within the pending window.
func (s *Service) CleanupExpiredPending(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredPending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired registrations: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "pending_principals_deleted", "count", n)
	}
	return n, nil
}

// AdminParams holds the data for an administrator account.
type AdminParams struct {
	Name     string
	Email    string
	Password string
}

// CreateAdmin creates an active, verified administrator.
func (s *Service) CreateAdmin(ctx context.Context, params AdminParams) (*models.Principal, error) {
	name, err := validateName(params.Name)
	if err != nil {
		return nil, err
	}
	email, err := validateEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if err := s.creds.ValidatePassword(params.Password, name, email); err != nil {
		return nil, err
	}
	hash, err := s.creds.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	verified := s.now().UTC()
	p := &models.Principal{
		Name:            name,
		Email:           email,
		PasswordHash:    &hash,
		Role:            models.RoleAdmin,
		Status:          models.StatusActive,
		EmailVerifiedAt: &verified,
	}
	if err := s.repo.CreatePrincipal(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPrincipalExists
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	slog.InfoContext(ctx, "admin_created", "principal_id", p.ID)
	return p, nil
}

// EnsureAdmin makes email an administrator, creating the account when it
// does not exist. It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, params AdminParams) (*models.Principal, bool, error) {
	p, err := s.CreateAdmin(ctx, params)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, ErrPrincipalExists) {
		return nil, false, err
	}

	existing, err := s.repo.GetPrincipalByEmail(ctx, params.Email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load principal: %w", err)
	}
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdatePrincipalRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return err
		}
		if existing.IsEmailVerified() {
			return nil
		}
		return tx.MarkEmailVerified(ctx, existing.ID, s.now())
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to promote admin: %w", err)
	}
	slog.InfoContext(ctx, "admin_promoted", "principal_id", existing.ID)

	p, err = s.load(ctx, existing.ID)
	return p, false, err
}

// ListPrincipals returns all principals, newest first.
func (s *Service) ListPrincipals(ctx context.Context) ([]models.Principal, error) {
	return s.repo.ListPrincipals(ctx)
}

// SetRole changes the role of principal id.
func (s *Service) SetRole(ctx context.Context, id int64, role models.Role) (*models.Principal, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	err := s.repo.UpdatePrincipalRole(ctx, id, role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	slog.InfoContext(ctx, "role_changed", "principal_id", id, "role", role)
	return s.load(ctx, id)
}

// DeletePrincipal removes principal id on behalf of actor. Administrators
// cannot delete themselves this way.
func (s *Service) DeletePrincipal(ctx context.Context, actor *models.Principal, id int64) error {
	if actor.ID == id {
		return ErrSelfDelete
	}
	err := s.repo.DeletePrincipal(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPrincipalNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}
	slog.InfoContext(ctx, "principal_deleted", "principal_id", id, "by", actor.ID)
	return nil
}
