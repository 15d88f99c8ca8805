// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth drives a principal through login, the MFA gate and email
// verification. Every operation returns the resulting State, derived from
// server data only.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/credential"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/grant"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/verification"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidName        = errors.New("invalid name")
	ErrPasswordMismatch   = errors.New("password confirmation does not match")
	ErrPrincipalExists    = errors.New("principal already exists")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrNotAwaitingMfa     = errors.New("session is not awaiting mfa")
	ErrUnknownProvider    = errors.New("unknown social provider")
	ErrInvalidRole        = errors.New("invalid role")
	ErrSelfDelete         = errors.New("cannot delete own account")
)

const maxFieldLength = 255

// Mailer delivers verification codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
}

// Deps are the collaborators of the state machine.
type Deps struct {
	Repo        *repository.Repository
	Credentials *credential.Service
	Codes       *verification.Manager
	MFA         *mfa.Service
	Sessions    *session.Store
	Grants      *grant.Issuer
	Mailer      Mailer
}

type Service struct {
	repo       *repository.Repository
	creds      *credential.Service
	codes      *verification.Manager
	mfa        *mfa.Service
	sessions   *session.Store
	grants     *grant.Issuer
	mailer     Mailer
	now        func() time.Time
	pendingTTL time.Duration
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the state machine. pendingTTL is how long an unverified
// registration survives before the cleanup job removes it.
func NewService(deps Deps, pendingTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:       deps.Repo,
		creds:      deps.Credentials,
		codes:      deps.Codes,
		mfa:        deps.MFA,
		sessions:   deps.Sessions,
		grants:     deps.Grants,
		mailer:     deps.Mailer,
		now:        time.Now,
		pendingTTL: pendingTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credentials returns the credential service used for re-proofs.
func (s *Service) Credentials() *credential.Service {
	return s.creds
}

// Authenticate resolves a session token to its principal and session and
// records activity on the session.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Principal, *models.Session, error) {
	sess, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.repo.GetPrincipalByID(ctx, sess.PrincipalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, session.ErrNoSession
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load principal: %w", err)
	}
	if err := s.sessions.Touch(ctx, sess); err != nil {
		slog.WarnContext(ctx, "session_touch_failed", "error", err)
	}
	return p, sess, nil
}

// audit appends an authentication log entry. reason is empty for
// successful attempts. Audit failures are logged, never returned.
func (s *Service) audit(ctx context.Context, p *models.Principal, email string, method models.AuthMethod, reason string, meta models.RequestMeta) {
	entry := &models.AuthenticationLogEntry{
		Email:      email,
		Method:     method,
		Successful: reason == "",
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
		CreatedAt:  s.now().UTC(),
	}
	if p != nil {
		entry.PrincipalID = &p.ID
		entry.Email = p.Email
	}
	if reason != "" {
		entry.FailureReason = &reason
	}
	if err := s.repo.CreateAuthLog(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "auth_log_failed", "method", method, "error", err)
	}
}

func (s *Service) load(ctx context.Context, id int64) (*models.Principal, error) {
	p, err := s.repo.GetPrincipalByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	return p, nil
}

func validateEmail(email string) (string, error) {
	email = repository.NormalizeEmail(email)
	if email == "" || len(email) > maxFieldLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxFieldLength {
		return "", ErrInvalidName
	}
	return name, nil
}
