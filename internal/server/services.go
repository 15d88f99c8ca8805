// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"

	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/credential"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/email"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/grant"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/oauth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/ratelimit"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/recovery"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/verification"
	"github.com/vinovest/sqlx"
)

// Services holds the wired application services.
type Services struct {
	Config   *config.Config
	Repo     *repository.Repository
	Auth     *auth.Service
	MFA      *mfa.Service
	Sessions *session.Store
	Cookies  *session.Manager
	OAuth    *oauth.Service

	// LoginLimiter throttles password logins per ip and email, Limiter
	// the other auth endpoints per ip.
	LoginLimiter *ratelimit.Limiter
	Limiter      *ratelimit.Limiter
}

// NewServices builds all services on top of db.
func NewServices(cfg *config.Config, db *sqlx.DB) (*Services, error) {
	repo := repository.New(db)

	cookies, err := session.NewManager(&cfg.Session, cfg.SecureCookies())
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	mailer, err := email.NewService(&cfg.SMTP, cfg.Auth.VerificationCodeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	grants, err := grant.NewIssuer(cfg.Auth.GrantSecret, cfg.Auth.VerificationCodeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant issuer: %w", err)
	}

	creds := credential.NewService(cfg.Auth.ReauthWindow)
	mfaSvc := mfa.NewService(repo, creds, recovery.NewService(), cfg.MFA.Issuer)
	sessions := session.NewStore(repo, cookies.MaxAge())

	authSvc := auth.NewService(auth.Deps{
		Repo:        repo,
		Credentials: creds,
		Codes:       verification.NewManager(repo, cfg.Auth.VerificationCodeTTL, cfg.Auth.ResendCooldown),
		MFA:         mfaSvc,
		Sessions:    sessions,
		Grants:      grants,
		Mailer:      mailer,
	}, cfg.Auth.PendingTTL)

	return &Services{
		Config:       cfg,
		Repo:         repo,
		Auth:         authSvc,
		MFA:          mfaSvc,
		Sessions:     sessions,
		Cookies:      cookies,
		OAuth:        oauth.NewService(&cfg.OAuth, cfg.Server.BaseURL),
		LoginLimiter: ratelimit.New(cfg.Auth.RateLimitAttempts, cfg.Auth.RateLimitDecay),
		Limiter:      ratelimit.New(cfg.Auth.RateLimitAttempts, cfg.Auth.RateLimitDecay),
	}, nil
}

// Close stops background work of the services.
func (s *Services) Close() {
	s.LoginLimiter.Close()
	s.Limiter.Close()
}
