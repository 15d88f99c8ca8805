// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
)

// CreateAuthLog appends an authentication log entry.
func (r *Repository) CreateAuthLog(ctx context.Context, e *models.AuthenticationLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utcNow()
	}
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO authentication_logs (principal_id, email, method, successful, failure_reason, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PrincipalID, e.Email, e.Method, e.Successful, e.FailureReason, e.IPAddress, e.UserAgent, e.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListAuthLogsByEmail returns the most recent entries for an email address.
func (r *Repository) ListAuthLogsByEmail(ctx context.Context, email string, limit int) ([]models.AuthenticationLogEntry, error) {
	var entries []models.AuthenticationLogEntry
	err := r.q.SelectContext(ctx, &entries,
		`SELECT id, principal_id, email, method, successful, failure_reason, ip_address, user_agent, created_at
		FROM authentication_logs WHERE email = ? ORDER BY id DESC LIMIT ?`, NormalizeEmail(email), limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}
