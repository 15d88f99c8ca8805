// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package mfa implements TOTP enrollment and the second-factor challenge,
// including single-use recovery codes.
package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/credential"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/recovery"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrMfaNotConfigured  = errors.New("mfa not configured")
	ErrMfaCodeInvalid    = errors.New("mfa code invalid")
	ErrMfaAlreadyEnabled = errors.New("mfa already enabled")
)

// Challenge methods reported by Verify.
const (
	MethodTOTP         = "totp"
	MethodRecoveryCode = "recovery-code"
)

const (
	period     = 30
	skew       = 1
	secretSize = 20 // 160 bits
	qrSize     = 200
)

var validateOpts = totp.ValidateOpts{
	Period:    period,
	Skew:      skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type Service struct {
	repo        *repository.Repository
	credentials *credential.Service
	recovery    *recovery.Service
	now         func() time.Time
	issuer      string
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo *repository.Repository, creds *credential.Service, rec *recovery.Service, issuer string, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		credentials: creds,
		recovery:    rec,
		now:         time.Now,
		issuer:      issuer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithRepository returns a copy of s bound to repo, typically a transaction.
func (s *Service) WithRepository(repo *repository.Repository) *Service {
	cp := *s
	cp.repo = repo
	return &cp
}

// Status summarizes an enrollment for display.
type Status struct {
	Enabled                bool `json:"mfa_enabled"`
	Confirmed              bool `json:"mfa_confirmed"`
	RecoveryCodesRemaining int  `json:"recovery_codes_remaining"`
}

// Status reports the enrollment state of p.
func (s *Service) Status(ctx context.Context, p *models.Principal) (*Status, error) {
	fresh, err := s.reload(ctx, p)
	if err != nil {
		return nil, err
	}
	st := &Status{Enabled: fresh.MFAEnabled, Confirmed: fresh.MFAConfirmedAt != nil}
	if fresh.MFAEnabled {
		n, err := s.repo.CountRecoveryCodes(ctx, fresh.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count recovery codes: %w", err)
		}
		st.RecoveryCodesRemaining = int(n)
	}
	return st, nil
}

func (s *Service) reload(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	fresh, err := s.repo.GetPrincipalByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	return fresh, nil
}

func (s *Service) validTOTP(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), validateOpts)
	return err == nil && ok
}
