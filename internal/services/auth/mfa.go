// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"log/slog"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
)

// EnableMfa confirms the pending TOTP enrollment of p and returns the
// recovery codes. The confirming code is a passed challenge, so sess is
// replaced by a session with the MFA gate open.
func (s *Service) EnableMfa(ctx context.Context, p *models.Principal, sess *models.Session, code string, meta models.RequestMeta) ([]string, *Outcome, error) {
	codes, err := s.mfa.ConfirmSetup(ctx, p, code)
	if err != nil {
		slog.WarnContext(ctx, "mfa_enable_failed", "principal_id", p.ID, "error", err)
		return nil, nil, err
	}

	token, fresh, err := s.sessions.Regenerate(ctx, sess, true)
	if err != nil {
		return nil, nil, err
	}
	current, err := s.load(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.InfoContext(ctx, "mfa_enabled", "principal_id", p.ID)
	s.audit(ctx, current, current.Email, models.AuthMethodMFA, "", meta)
	return codes, &Outcome{Principal: current, Session: fresh, State: Resolve(current, fresh), Token: token}, nil
}
