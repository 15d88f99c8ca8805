// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers verification codes over SMTP.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Service builds and sends verification emails.
type Service struct {
	cfg     *config.SMTPConfig
	codeTTL time.Duration
}

// NewService creates a new email service. An empty SMTP host yields a
// service that logs instead of sending.
func NewService(cfg *config.SMTPConfig, codeTTL time.Duration) (*Service, error) {
	if cfg.Host != "" && cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &Service{cfg: cfg, codeTTL: codeTTL}, nil
}

// Enabled reports whether mail is actually delivered.
func (s *Service) Enabled() bool {
	return s.cfg.Host != ""
}

// SendVerificationCode mails code to the principal. The locale of ctx
// selects the language.
func (s *Service) SendVerificationCode(ctx context.Context, to, name, code string) error {
	if !s.Enabled() {
		slog.InfoContext(ctx, "email_delivery_disabled", "to", to)
		slog.DebugContext(ctx, "verification_code", "to", to, "code", code)
		return nil
	}

	msg, err := s.VerificationMessage(ctx, to, name, code)
	if err != nil {
		return err
	}
	return s.send(ctx, msg)
}

// VerificationMessage renders the verification email without sending it.
func (s *Service) VerificationMessage(ctx context.Context, to, name, code string) (*mail.Msg, error) {
	subject := i18n.T(ctx, "email_verification_subject")
	body := i18n.TData(ctx, "email_verification_body", map[string]any{
		"Name":  name,
		"Code":  code,
		"Hours": int(math.Ceil(s.codeTTL.Hours())),
	})

	msg := mail.NewMsg()
	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (s *Service) send(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Implicit TLS on 465, STARTTLS elsewhere
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}
