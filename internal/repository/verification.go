// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"
)

// SetVerificationCode stores a new verification code for an unverified
// principal, unless a code was sent after notAfter. The check and the write
// are one statement, so concurrent callers cannot both pass the cool-down.
// It reports whether the code was stored.
func (r *Repository) SetVerificationCode(ctx context.Context, id int64, code string, expiresAt, sentAt, notAfter time.Time) (bool, error) {
	return affected(r.q.ExecContext(ctx,
		`UPDATE principals SET
			verification_code = ?,
			verification_code_expires_at = ?,
			verification_code_sent_at = ?,
			updated_at = ?
		WHERE id = ?
			AND email_verified_at IS NULL
			AND (verification_code_sent_at IS NULL OR verification_code_sent_at <= ?)`,
		code, expiresAt.UTC(), sentAt.UTC(), utcNow(), id, notAfter.UTC()))
}

// ClearVerificationCode removes the live code of a principal. Clearing an
// absent code is not an error.
func (r *Repository) ClearVerificationCode(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE principals SET verification_code = NULL, verification_code_expires_at = NULL WHERE id = ?`, id)
	return err
}
