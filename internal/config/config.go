// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var (
	configPath = "config.toml"
	configFile = altsrc.NewStringPtrSourcer(&configPath)
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Session  SessionConfig
	SMTP     SMTPConfig
	Auth     AuthConfig
	MFA      MFAConfig
	OAuth    OAuthConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

// SMTPConfig configures outgoing mail. An empty host disables delivery.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// AuthConfig holds the timing and throttling knobs of the auth state machine.
type AuthConfig struct { //nolint:govet // fieldalignment not critical
	VerificationCodeTTL time.Duration
	ResendCooldown      time.Duration
	PendingTTL          time.Duration // how long an unverified principal survives
	ReauthWindow        time.Duration // social-only principals: max session age for re-proof
	RateLimitAttempts   int
	RateLimitDecay      time.Duration
	GrantSecret         string // HMAC secret for verification grants (hex, auto-generated if empty)
}

type MFAConfig struct {
	Issuer string
}

// OAuthProvider holds the client registration for one social provider.
type OAuthProvider struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether the provider has client credentials.
func (p OAuthProvider) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type OAuthConfig struct {
	Google   OAuthProvider
	Facebook OAuthProvider
}

// SecureCookies reports whether cookies must carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Auth: AuthConfig{
			VerificationCodeTTL: cmd.Duration("verification-code-ttl"),
			ResendCooldown:      cmd.Duration("verification-resend-cooldown"),
			PendingTTL:          cmd.Duration("pending-ttl"),
			ReauthWindow:        cmd.Duration("reauth-window"),
			RateLimitAttempts:   int(cmd.Int("rate-limit-attempts")),
			RateLimitDecay:      cmd.Duration("rate-limit-decay"),
			GrantSecret:         cmd.String("grant-secret"),
		},
		MFA: MFAConfig{
			Issuer: cmd.String("mfa-issuer"),
		},
		OAuth: OAuthConfig{
			Google: OAuthProvider{
				ClientID:     cmd.String("google-client-id"),
				ClientSecret: cmd.String("google-client-secret"),
			},
			Facebook: OAuthProvider{
				ClientID:     cmd.String("facebook-client-id"),
				ClientSecret: cmd.String("facebook-client-secret"),
			},
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "http"
	if !IsLocalhost(host) {
		scheme = "https"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/auth.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: source("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: source("SESSION_MAX_AGE", "session.max_age"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: source("SESSION_BLOCK_KEY", "session.block_key"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (empty disables email delivery)",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		// Auth flags
		&cli.DurationFlag{
			Name:    "verification-code-ttl",
			Value:   24 * time.Hour,
			Usage:   "Lifetime of email verification codes",
			Sources: source("VERIFICATION_CODE_TTL", "auth.verification_code_ttl"),
		},
		&cli.DurationFlag{
			Name:    "verification-resend-cooldown",
			Value:   60 * time.Second,
			Usage:   "Minimum interval between verification code emails",
			Sources: source("VERIFICATION_RESEND_COOLDOWN", "auth.verification_resend_cooldown"),
		},
		&cli.DurationFlag{
			Name:    "pending-ttl",
			Value:   24 * time.Hour,
			Usage:   "How long unverified registrations are kept",
			Sources: source("PENDING_TTL", "auth.pending_ttl"),
		},
		&cli.DurationFlag{
			Name:    "reauth-window",
			Value:   10 * time.Minute,
			Usage:   "Maximum session age accepted as re-proof for accounts without a password",
			Sources: source("REAUTH_WINDOW", "auth.reauth_window"),
		},
		&cli.IntFlag{
			Name:    "rate-limit-attempts",
			Value:   5,
			Usage:   "Authentication attempts allowed per decay window",
			Sources: source("RATE_LIMIT_ATTEMPTS", "auth.rate_limit_attempts"),
		},
		&cli.DurationFlag{
			Name:    "rate-limit-decay",
			Value:   15 * time.Minute,
			Usage:   "Rate limit decay window",
			Sources: source("RATE_LIMIT_DECAY", "auth.rate_limit_decay"),
		},
		&cli.StringFlag{
			Name:    "grant-secret",
			Usage:   "Secret for email verification grants (32-byte hex, auto-generated if empty in dev)",
			Sources: source("GRANT_SECRET", "auth.grant_secret"),
		},
		// MFA flags
		&cli.StringFlag{
			Name:    "mfa-issuer",
			Value:   "Go Auth Service",
			Usage:   "Issuer shown in authenticator apps",
			Sources: source("MFA_ISSUER", "mfa.issuer"),
		},
		// OAuth flags
		&cli.StringFlag{
			Name:    "google-client-id",
			Usage:   "Google OAuth client ID",
			Sources: source("GOOGLE_CLIENT_ID", "oauth.google.client_id"),
		},
		&cli.StringFlag{
			Name:    "google-client-secret",
			Usage:   "Google OAuth client secret",
			Sources: source("GOOGLE_CLIENT_SECRET", "oauth.google.client_secret"),
		},
		&cli.StringFlag{
			Name:    "facebook-client-id",
			Usage:   "Facebook OAuth client ID",
			Sources: source("FACEBOOK_CLIENT_ID", "oauth.facebook.client_id"),
		},
		&cli.StringFlag{
			Name:    "facebook-client-secret",
			Usage:   "Facebook OAuth client secret",
			Sources: source("FACEBOOK_CLIENT_SECRET", "oauth.facebook.client_secret"),
		},
	}
}
