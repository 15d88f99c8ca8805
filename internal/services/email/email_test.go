// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"golang.org/x/text/language"
)

func validSMTPConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "testuser",
		Password: "testpass",
		From:     "noreply@example.com",
		FromName: "Test App",
		TLS:      true,
	}
}

func TestNewService(t *testing.T) {
	svc, err := email.NewService(validSMTPConfig(), 24*time.Hour)

	require.NoError(t, err)
	assert.True(t, svc.Enabled())
}

func TestNewService_MissingFrom(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.From = ""

	_, err := email.NewService(cfg, 24*time.Hour)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP from address is required")
}

func TestNewService_NoHostDisablesDelivery(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = ""
	cfg.From = ""

	svc, err := email.NewService(cfg, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	// Nothing is dialed when delivery is disabled.
	assert.NoError(t, svc.SendVerificationCode(context.Background(), "alice@example.com", "Alice", "123456"))
}

func TestVerificationMessage(t *testing.T) {
	svc, err := email.NewService(validSMTPConfig(), 24*time.Hour)
	require.NoError(t, err)
	ctx := i18n.WithLocale(context.Background(), language.English)

	msg, err := svc.VerificationMessage(ctx, "alice@example.com", "Alice", "042133")
	require.NoError(t, err)

	assert.Equal(t, []string{"Your verification code"}, msg.GetGenHeader(mail.HeaderSubject))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "alice@example.com")
	assert.Contains(t, raw, "noreply@example.com")
	assert.Contains(t, raw, "042133")
	assert.Contains(t, raw, "24 hours")
}

func TestVerificationMessage_German(t *testing.T) {
	svc, err := email.NewService(validSMTPConfig(), 24*time.Hour)
	require.NoError(t, err)
	ctx := i18n.WithLocale(context.Background(), language.German)

	msg, err := svc.VerificationMessage(ctx, "bob@example.com", "Bob", "000001")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Hallo Bob,")
	assert.Contains(t, buf.String(), "000001")
	assert.NotContains(t, buf.String(), "Your verification code")
}

func TestVerificationMessage_InvalidRecipient(t *testing.T) {
	svc, err := email.NewService(validSMTPConfig(), 24*time.Hour)
	require.NoError(t, err)

	_, err = svc.VerificationMessage(context.Background(), "not an address", "X", "123456")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "setting to address")
}
