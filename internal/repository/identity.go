// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
)

// CreateIdentity links a provider account to a principal.
func (r *Repository) CreateIdentity(ctx context.Context, principalID int64, provider, providerID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO principal_identities (provider, provider_id, principal_id, created_at) VALUES (?, ?, ?, ?)`,
		provider, providerID, principalID, utcNow())
	return wrapError(err)
}

// GetPrincipalByIdentity resolves a provider account to its principal.
func (r *Repository) GetPrincipalByIdentity(ctx context.Context, provider, providerID string) (*models.Principal, error) {
	var p models.Principal
	err := r.q.GetContext(ctx, &p,
		`SELECT `+principalColumns+` FROM principals
		WHERE id = (SELECT principal_id FROM principal_identities WHERE provider = ? AND provider_id = ?)`,
		provider, providerID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &p, nil
}

// ListIdentities returns the provider links of a principal.
func (r *Repository) ListIdentities(ctx context.Context, principalID int64) ([]models.Identity, error) {
	var ids []models.Identity
	err := r.q.SelectContext(ctx, &ids,
		`SELECT provider, provider_id, principal_id, created_at FROM principal_identities
		WHERE principal_id = ? ORDER BY created_at`, principalID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
