// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification manages the six digit email verification codes kept
// on principal rows.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
)

var (
	ErrCodeInvalid     = errors.New("verification code invalid")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrNotFound        = errors.New("principal not found")
	ErrAlreadyVerified = errors.New("email already verified")
)

// CodeResendTooSoonError is returned by Generate inside the cool-down window.
type CodeResendTooSoonError struct {
	RetryAfter time.Duration
}

func (e *CodeResendTooSoonError) Error() string {
	return fmt.Sprintf("verification code resend too soon, retry after %s", e.RetryAfter)
}

// Seconds returns RetryAfter rounded up to whole seconds, at least one.
func (e *CodeResendTooSoonError) Seconds() int {
	return max(1, int(math.Ceil(e.RetryAfter.Seconds())))
}

const (
	// DefaultTTL is how long a code stays valid.
	DefaultTTL = 24 * time.Hour
	// DefaultCooldown is the minimum interval between two codes.
	DefaultCooldown = 60 * time.Second

	codeSpace = 1_000_000
)

type Manager struct {
	repo     *repository.Repository
	now      func() time.Time
	ttl      time.Duration
	cooldown time.Duration
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager. Zero durations select the defaults.
func NewManager(repo *repository.Repository, ttl, cooldown time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	m := &Manager{repo: repo, now: time.Now, ttl: ttl, cooldown: cooldown}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithRepository returns a copy of m bound to repo, typically a transaction.
func (m *Manager) WithRepository(repo *repository.Repository) *Manager {
	cp := *m
	cp.repo = repo
	return &cp
}

// Generate issues a fresh code for an unverified principal, replacing any
// previous one. Inside the cool-down window it returns
// *CodeResendTooSoonError and leaves the live code untouched.
func (m *Manager) Generate(ctx context.Context, principalID int64) (string, error) {
	p, err := m.load(ctx, principalID)
	if err != nil {
		return "", err
	}
	if p.IsEmailVerified() {
		return "", ErrAlreadyVerified
	}

	code, err := newCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := m.now().UTC()
	stored, err := m.repo.SetVerificationCode(ctx, principalID, code, now.Add(m.ttl), now, now.Add(-m.cooldown))
	if err != nil {
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}
	if stored {
		return code, nil
	}

	// The conditional update refused: either verified meanwhile or a code
	// was sent within the cool-down.
	p, err = m.load(ctx, principalID)
	if err != nil {
		return "", err
	}
	if p.IsEmailVerified() {
		return "", ErrAlreadyVerified
	}
	return "", &CodeResendTooSoonError{RetryAfter: m.retryAfter(p, now)}
}

// Validate checks code against the live code without consuming it.
func (m *Manager) Validate(ctx context.Context, principalID int64, code string) error {
	p, err := m.load(ctx, principalID)
	if err != nil {
		return err
	}
	return m.check(p, code)
}

// Check is Validate for an already loaded principal.
func (m *Manager) Check(p *models.Principal, code string) error {
	return m.check(p, code)
}

func (m *Manager) check(p *models.Principal, code string) error {
	if p.IsEmailVerified() {
		return ErrAlreadyVerified
	}
	if p.VerificationCode == nil || p.VerificationCodeExpiresAt == nil {
		return ErrCodeInvalid
	}
	if subtle.ConstantTimeCompare([]byte(*p.VerificationCode), []byte(code)) != 1 {
		return ErrCodeInvalid
	}
	if !m.now().Before(*p.VerificationCodeExpiresAt) {
		return ErrCodeExpired
	}
	return nil
}

// Consume clears the live code. Consuming twice is a no-op.
func (m *Manager) Consume(ctx context.Context, principalID int64) error {
	if err := m.repo.ClearVerificationCode(ctx, principalID); err != nil {
		return fmt.Errorf("failed to consume verification code: %w", err)
	}
	return nil
}

// SecondsUntilResendAllowed returns 0 when Generate would succeed now.
func (m *Manager) SecondsUntilResendAllowed(ctx context.Context, principalID int64) (int, error) {
	p, err := m.load(ctx, principalID)
	if err != nil {
		return 0, err
	}
	wait := m.retryAfter(p, m.now().UTC())
	if wait <= 0 {
		return 0, nil
	}
	return int(math.Ceil(wait.Seconds())), nil
}

// Cooldown returns the configured resend interval.
func (m *Manager) Cooldown() time.Duration {
	return m.cooldown
}

func (m *Manager) retryAfter(p *models.Principal, now time.Time) time.Duration {
	if p.VerificationCodeSentAt == nil {
		return 0
	}
	wait := p.VerificationCodeSentAt.Add(m.cooldown).Sub(now)
	return min(max(wait, 0), m.cooldown)
}

func (m *Manager) load(ctx context.Context, principalID int64) (*models.Principal, error) {
	p, err := m.repo.GetPrincipalByID(ctx, principalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	return p, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
