// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
)

const principalColumns = `id, name, email, password_hash, origin_provider, origin_provider_id,
	role, status, email_verified_at, pending_until,
	verification_code, verification_code_expires_at, verification_code_sent_at,
	mfa_secret, mfa_enabled, mfa_confirmed_at, created_at, updated_at`

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreatePrincipal inserts p and fills in its ID and timestamps.
func (r *Repository) CreatePrincipal(ctx context.Context, p *models.Principal) error {
	now := utcNow()
	p.Email = NormalizeEmail(p.Email)
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	if p.Status == "" {
		p.Status = models.StatusPending
	}

	res, err := r.q.ExecContext(ctx,
		`INSERT INTO principals (name, email, password_hash, origin_provider, origin_provider_id,
			role, status, email_verified_at, pending_until, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Email, p.PasswordHash, p.OriginProvider, p.OriginProviderID,
		p.Role, p.Status, p.EmailVerifiedAt, p.PendingUntil, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return wrapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// GetPrincipalByID retrieves a principal by ID.
func (r *Repository) GetPrincipalByID(ctx context.Context, id int64) (*models.Principal, error) {
	var p models.Principal
	err := r.q.GetContext(ctx, &p, `SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &p, nil
}

// GetPrincipalByEmail retrieves a principal by email, case-insensitively.
func (r *Repository) GetPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	var p models.Principal
	err := r.q.GetContext(ctx, &p, `SELECT `+principalColumns+` FROM principals WHERE email = ?`, NormalizeEmail(email))
	if err != nil {
		return nil, wrapError(err)
	}
	return &p, nil
}

// ListPrincipals returns all principals ordered by creation date (newest first).
func (r *Repository) ListPrincipals(ctx context.Context) ([]models.Principal, error) {
	var principals []models.Principal
	err := r.q.SelectContext(ctx, &principals, `SELECT `+principalColumns+` FROM principals ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return principals, nil
}

// CountAdmins returns the number of admin principals.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM principals WHERE role = ?`, models.RoleAdmin)
	return count, err
}

// DeletePrincipal deletes a principal and, through cascades, everything it owns.
func (r *Repository) DeletePrincipal(ctx context.Context, id int64) error {
	ok, err := affected(r.q.ExecContext(ctx, `DELETE FROM principals WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// UpdatePrincipalRole sets the role of a principal.
func (r *Repository) UpdatePrincipalRole(ctx context.Context, id int64, role models.Role) error {
	ok, err := affected(r.q.ExecContext(ctx,
		`UPDATE principals SET role = ?, updated_at = ? WHERE id = ?`, role, utcNow(), id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// UpdatePrincipalName sets the display name of a principal.
func (r *Repository) UpdatePrincipalName(ctx context.Context, id int64, name string) error {
	ok, err := affected(r.q.ExecContext(ctx,
		`UPDATE principals SET name = ?, updated_at = ? WHERE id = ?`, name, utcNow(), id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ChangePrincipalEmail moves a principal to a new address. The address is
// unverified afterwards and any code for the old one is dropped.
func (r *Repository) ChangePrincipalEmail(ctx context.Context, id int64, email string) error {
	ok, err := affected(r.q.ExecContext(ctx,
		`UPDATE principals SET
			email = ?,
			email_verified_at = NULL,
			verification_code = NULL,
			verification_code_expires_at = NULL,
			verification_code_sent_at = NULL,
			updated_at = ?
		WHERE id = ?`, NormalizeEmail(email), utcNow(), id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword stores a new password hash. A social principal becomes a
// local one; its provider link must already exist in principal_identities.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	ok, err := affected(r.q.ExecContext(ctx,
		`UPDATE principals SET password_hash = ?, origin_provider = NULL, origin_provider_id = NULL, updated_at = ?
		WHERE id = ?`, hash, utcNow(), id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerified activates a principal and clears its verification code.
func (r *Repository) MarkEmailVerified(ctx context.Context, id int64, at time.Time) error {
	ok, err := affected(r.q.ExecContext(ctx,
		`UPDATE principals SET
			email_verified_at = COALESCE(email_verified_at, ?),
			status = ?,
			pending_until = NULL,
			verification_code = NULL,
			verification_code_expires_at = NULL,
			updated_at = ?
		WHERE id = ?`, at.UTC(), models.StatusActive, utcNow(), id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerifiedWithCode is MarkEmailVerified conditional on the stored
// verification code still being code. It reports false when the code was
// replaced or consumed in the meantime.
func (r *Repository) MarkEmailVerifiedWithCode(ctx context.Context, id int64, code string, at time.Time) (bool, error) {
	return affected(r.q.ExecContext(ctx,
		`UPDATE principals SET
			email_verified_at = COALESCE(email_verified_at, ?),
			status = ?,
			pending_until = NULL,
			verification_code = NULL,
			verification_code_expires_at = NULL,
			updated_at = ?
		WHERE id = ? AND verification_code = ?`, at.UTC(), models.StatusActive, utcNow(), id, code))
}

// ClaimForProvider hands an unverified principal over to a provider
// identity: the password is dropped, the provider becomes the credential
// origin and the email counts as verified. Verified principals are left
// alone and reported as ErrNotFound.
func (r *Repository) ClaimForProvider(ctx context.Context, id int64, provider, providerID string, at time.Time) error {
	ok, err := affected(r.q.ExecContext(ctx,
		`UPDATE principals SET
			password_hash = NULL,
			origin_provider = ?,
			origin_provider_id = ?,
			email_verified_at = ?,
			status = ?,
			pending_until = NULL,
			verification_code = NULL,
			verification_code_expires_at = NULL,
			verification_code_sent_at = NULL,
			updated_at = ?
		WHERE id = ? AND email_verified_at IS NULL`,
		provider, providerID, at.UTC(), models.StatusActive, utcNow(), id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredPending removes unverified pending principals whose
// pending_until lies before now. It returns the number of deleted rows.
func (r *Repository) DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM principals
		WHERE status = ? AND email_verified_at IS NULL AND pending_until IS NOT NULL AND pending_until < ?`,
		models.StatusPending, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
