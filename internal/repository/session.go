// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
)

// CreateSession inserts a session row.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (id_hash, principal_id, mfa_satisfied, created_at, last_seen_at, expires_at, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.IDHash, s.PrincipalID, s.MFASatisfied, s.CreatedAt.UTC(), s.LastSeenAt.UTC(), s.ExpiresAt.UTC(),
		s.IPAddress, s.UserAgent)
	return wrapError(err)
}

// GetSession retrieves a session by the hash of its id.
func (r *Repository) GetSession(ctx context.Context, idHash string) (*models.Session, error) {
	var s models.Session
	err := r.q.GetContext(ctx, &s,
		`SELECT id_hash, principal_id, mfa_satisfied, created_at, last_seen_at, expires_at, ip_address, user_agent
		FROM sessions WHERE id_hash = ?`, idHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &s, nil
}

// TouchSession records activity on a session.
func (r *Repository) TouchSession(ctx context.Context, idHash string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sessions SET last_seen_at = ? WHERE id_hash = ?`, at.UTC(), idHash)
	return err
}

// DeleteSession deletes a session and reports whether the row existed.
func (r *Repository) DeleteSession(ctx context.Context, idHash string) (bool, error) {
	return affected(r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id_hash = ?`, idHash))
}

// DeletePrincipalSessions deletes all sessions of a principal except keep.
func (r *Repository) DeletePrincipalSessions(ctx context.Context, principalID int64, keep string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM sessions WHERE principal_id = ? AND id_hash <> ?`, principalID, keep)
	return err
}

// DeleteExpiredSessions removes sessions that expired before now.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
