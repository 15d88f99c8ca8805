// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
)

// ReplaceRecoveryCodes atomically swaps the whole recovery code set of a principal.
func (r *Repository) ReplaceRecoveryCodes(ctx context.Context, principalID int64, codeHashes []string) error {
	return r.WithTx(ctx, func(tx *Repository) error {
		if err := tx.DeleteRecoveryCodes(ctx, principalID); err != nil {
			return err
		}
		now := utcNow()
		for _, hash := range codeHashes {
			_, err := tx.q.ExecContext(ctx,
				`INSERT INTO recovery_codes (principal_id, code_hash, created_at) VALUES (?, ?, ?)`,
				principalID, hash, now)
			if err != nil {
				return wrapError(err)
			}
		}
		return nil
	})
}

// ListRecoveryCodes retrieves the remaining recovery codes of a principal.
func (r *Repository) ListRecoveryCodes(ctx context.Context, principalID int64) ([]models.RecoveryCode, error) {
	var codes []models.RecoveryCode
	err := r.q.SelectContext(ctx, &codes,
		`SELECT id, principal_id, code_hash, created_at FROM recovery_codes WHERE principal_id = ? ORDER BY id`, principalID)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// CountRecoveryCodes returns the number of remaining recovery codes.
func (r *Repository) CountRecoveryCodes(ctx context.Context, principalID int64) (int64, error) {
	var count int64
	err := r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM recovery_codes WHERE principal_id = ?`, principalID)
	return count, err
}

// ConsumeRecoveryCode deletes a single code. It reports false when the row
// was already gone, i.e. another request used the code first.
func (r *Repository) ConsumeRecoveryCode(ctx context.Context, codeID int64) (bool, error) {
	return affected(r.q.ExecContext(ctx, `DELETE FROM recovery_codes WHERE id = ?`, codeID))
}

// DeleteRecoveryCodes deletes all recovery codes of a principal.
func (r *Repository) DeleteRecoveryCodes(ctx context.Context, principalID int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM recovery_codes WHERE principal_id = ?`, principalID)
	return err
}
