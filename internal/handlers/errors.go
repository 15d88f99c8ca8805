// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"codeberg.org/oliverandrich/go-auth-service/internal/policy"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/credential"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/grant"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/oauth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/ratelimit"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error       string              `json:"error"`
	Message     string              `json:"message"`
	Field       string              `json:"field,omitempty"`
	Errors      map[string][]string `json:"errors,omitempty"`
	RetryAfter  int                 `json:"retry_after,omitempty"`
	RequiresMfa bool                `json:"requires_mfa,omitempty"`
}

type errorMapping struct {
	err       error
	status    int
	code      string
	messageID string
	field     string
}

var errorMappings = []errorMapping{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "error_invalid_credentials", ""},
	{verification.ErrCodeExpired, http.StatusUnprocessableEntity, "code_expired", "error_code_expired", "code"},
	{verification.ErrCodeInvalid, http.StatusUnprocessableEntity, "code_invalid", "error_code_invalid", "code"},
	{mfa.ErrMfaNotConfigured, http.StatusBadRequest, "mfa_not_configured", "error_mfa_not_configured", ""},
	{mfa.ErrMfaCodeInvalid, http.StatusUnprocessableEntity, "mfa_code_invalid", "error_mfa_code_invalid", "code"},
	{mfa.ErrMfaAlreadyEnabled, http.StatusConflict, "mfa_already_enabled", "error_mfa_already_enabled", ""},
	{session.ErrNoSession, http.StatusUnauthorized, string(policy.TargetLogin), "error_unauthenticated", ""},
	{auth.ErrNotAwaitingMfa, http.StatusConflict, "mfa_not_required", "error_mfa_not_required", ""},
	{credential.ErrInvalidProof, http.StatusUnprocessableEntity, "invalid_proof", "error_invalid_proof", "password"},
	{credential.ErrReauthRequired, http.StatusForbidden, "reauth_required", "error_reauth_required", ""},
	{grant.ErrInvalidGrant, http.StatusUnprocessableEntity, "invalid_grant", "error_invalid_grant", "verification_grant"},
	{auth.ErrInvalidEmail, http.StatusUnprocessableEntity, "validation_failed", "error_validation_failed", "email"},
	{auth.ErrInvalidName, http.StatusUnprocessableEntity, "validation_failed", "error_validation_failed", "name"},
	{auth.ErrPasswordMismatch, http.StatusUnprocessableEntity, "validation_failed", "error_validation_failed", "password_confirmation"},
	{auth.ErrPrincipalExists, http.StatusUnprocessableEntity, "validation_failed", "error_email_taken", "email"},
	{auth.ErrInvalidRole, http.StatusUnprocessableEntity, "validation_failed", "error_validation_failed", "role"},
	{auth.ErrPrincipalNotFound, http.StatusNotFound, "not_found", "error_not_found", ""},
	{auth.ErrSelfDelete, http.StatusForbidden, "self_delete", "error_self_delete", ""},
	{auth.ErrUnknownProvider, http.StatusNotFound, "provider_unknown", "error_provider_unknown", ""},
	{oauth.ErrUnknownProvider, http.StatusNotFound, "provider_unknown", "error_provider_unknown", ""},
	{oauth.ErrMissingEmail, http.StatusUnprocessableEntity, "social_login_failed", "error_social_login_failed", "email"},
	{errSocialLoginFailed, http.StatusBadRequest, "social_login_failed", "error_social_login_failed", ""},
	{errInvalidRequest, http.StatusBadRequest, "invalid_request", "error_invalid_request", ""},
}

// WriteError writes the JSON error response for err. Errors without a
// mapping are logged and answered with a generic 500.
func WriteError(c echo.Context, err error) error {
	ctx := c.Request().Context()

	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) {
		return writeRetry(c, "rate_limited", "error_rate_limited", limited.Seconds())
	}
	var tooSoon *verification.CodeResendTooSoonError
	if errors.As(err, &tooSoon) {
		return writeRetry(c, "code_resend_too_soon", "error_code_resend_too_soon", tooSoon.Seconds())
	}
	var weak *credential.WeakPasswordError
	if errors.As(err, &weak) {
		messages := make([]string, len(weak.Rules))
		for i, rule := range weak.Rules {
			messages[i] = i18n.TData(ctx, "error_password_"+rule, map[string]any{"Min": weak.MinLength})
		}
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation_failed",
			Message: i18n.T(ctx, "error_validation_failed"),
			Field:   "password",
			Errors:  map[string][]string{"password": messages},
		})
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, ErrorResponse{
				Error:   m.code,
				Message: i18n.T(ctx, m.messageID),
				Field:   m.field,
			})
		}
	}

	slog.ErrorContext(ctx, "request_failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: i18n.T(ctx, "error_internal"),
	})
}

func writeRetry(c echo.Context, code, messageID string, seconds int) error {
	c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
	return c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error:      code,
		Message:    i18n.TPlural(c.Request().Context(), messageID, seconds),
		RetryAfter: seconds,
	})
}

var denialMessages = map[policy.Target]string{
	policy.TargetLogin:             "error_unauthenticated",
	policy.TargetMfaChallenge:      "error_mfa_required",
	policy.TargetEmailVerification: "error_email_unverified",
	policy.TargetForbidden:         "error_forbidden",
}

// WriteDenial writes the response for a policy decision that did not allow
// the request. The error code names where the client has to go next.
func WriteDenial(c echo.Context, d policy.Decision) error {
	return c.JSON(d.Status(), ErrorResponse{
		Error:       string(d.Target),
		Message:     i18n.T(c.Request().Context(), denialMessages[d.Target]),
		RequiresMfa: d.Target == policy.TargetMfaChallenge,
	})
}
