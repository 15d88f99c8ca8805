// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"
)

// SetMFASecret stores a pending (unconfirmed) TOTP secret.
func (r *Repository) SetMFASecret(ctx context.Context, id int64, secret string) error {
	ok, err := affected(r.q.ExecContext(ctx,
		`UPDATE principals SET mfa_secret = ?, mfa_enabled = 0, mfa_confirmed_at = NULL, updated_at = ?
		WHERE id = ?`, secret, utcNow(), id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// EnableMFA flips a pending secret to enabled. It reports false when there
// is no pending secret or MFA is already enabled.
func (r *Repository) EnableMFA(ctx context.Context, id int64, at time.Time) (bool, error) {
	return affected(r.q.ExecContext(ctx,
		`UPDATE principals SET mfa_enabled = 1, mfa_confirmed_at = ?, updated_at = ?
		WHERE id = ? AND mfa_secret IS NOT NULL AND mfa_enabled = 0`, at.UTC(), utcNow(), id))
}

// ClearMFA removes secret, flag and confirmation timestamp.
func (r *Repository) ClearMFA(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE principals SET mfa_secret = NULL, mfa_enabled = 0, mfa_confirmed_at = NULL, updated_at = ?
		WHERE id = ?`, utcNow(), id)
	return err
}
