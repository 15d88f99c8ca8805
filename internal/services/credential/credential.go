// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package credential hashes and checks first-factor credentials and decides
// whether a caller has re-proven possession of them.
package credential

import (
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidProof is returned when a re-proof does not match the credential.
	ErrInvalidProof = errors.New("credential proof rejected")
	// ErrReauthRequired is returned when a principal without a password holds
	// a session older than the re-auth window.
	ErrReauthRequired = errors.New("recent sign-in required")
)

// dummyHash is compared against when no local credential exists, so that
// unknown accounts cost the same as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

type Service struct {
	policy       PasswordPolicy
	now          func() time.Time
	cost         int
	reauthWindow time.Duration
}

type Option func(*Service)

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(reauthWindow time.Duration, opts ...Option) *Service {
	s := &Service{
		policy:       DefaultPasswordPolicy(),
		now:          time.Now,
		cost:         bcrypt.DefaultCost,
		reauthWindow: reauthWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidatePassword checks password against the policy. The attributes
// (name, email) feed the similarity check.
func (s *Service) ValidatePassword(password string, attributes ...string) error {
	return s.policy.Check(password, attributes...)
}

// Hash returns the bcrypt hash of password.
func (s *Service) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the local credential of p.
// Principals without a password always fail, after the same bcrypt work.
func (s *Service) CheckPassword(p *models.Principal, password string) bool {
	local, ok := p.Credential().(models.LocalCredential)
	if !ok {
		s.CheckUnknown(password)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(local.Hash), []byte(password)) == nil
}

// CheckUnknown burns one bcrypt comparison for a login against an unknown
// account.
func (s *Service) CheckUnknown(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// VerifyProof decides whether the holder of session may perform a
// sensitive change on p. Local principals must supply their password.
// Principals without one qualify when the session is younger than the
// re-auth window.
func (s *Service) VerifyProof(p *models.Principal, session *models.Session, password string) error {
	switch p.Credential().(type) {
	case models.LocalCredential:
		if !s.CheckPassword(p, password) {
			return ErrInvalidProof
		}
		return nil
	case models.SocialCredential:
		if session == nil || session.PrincipalID != p.ID || session.Age(s.now()) > s.reauthWindow {
			return ErrReauthRequired
		}
		return nil
	default:
		return ErrInvalidProof
	}
}
