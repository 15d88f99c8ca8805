// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package mfa

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/recovery"
)

// ChallengeResult tells which factor passed the challenge.
type ChallengeResult struct {
	Method                 string
	RecoveryCodesRemaining int
}

// Verify checks code as a TOTP code first and then as a recovery code.
// A matching recovery code is deleted; if a concurrent request deleted it
// first, the code counts as invalid. Verify does not touch sessions.
func (s *Service) Verify(ctx context.Context, p *models.Principal, code string) (*ChallengeResult, error) {
	fresh, err := s.reload(ctx, p)
	if err != nil {
		return nil, err
	}
	if !fresh.MFAEnabled || fresh.MFASecret == nil {
		return nil, ErrMfaNotConfigured
	}

	code = strings.TrimSpace(code)
	if s.validTOTP(*fresh.MFASecret, code) {
		return &ChallengeResult{Method: MethodTOTP}, nil
	}

	if !recovery.LooksLikeCode(code) {
		return nil, ErrMfaCodeInvalid
	}

	stored, err := s.repo.ListRecoveryCodes(ctx, fresh.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery codes: %w", err)
	}
	for _, rc := range stored {
		if !s.recovery.Matches(rc.CodeHash, code) {
			continue
		}
		consumed, err := s.repo.ConsumeRecoveryCode(ctx, rc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to consume recovery code: %w", err)
		}
		if !consumed {
			return nil, ErrMfaCodeInvalid
		}
		remaining, err := s.repo.CountRecoveryCodes(ctx, fresh.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count recovery codes: %w", err)
		}
		return &ChallengeResult{Method: MethodRecoveryCode, RecoveryCodesRemaining: int(remaining)}, nil
	}

	return nil, ErrMfaCodeInvalid
}
