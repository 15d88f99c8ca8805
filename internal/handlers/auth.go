// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/go-auth-service/internal/appcontext"
	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/policy"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/ratelimit"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// RegisterRequest is the request body for a registration.
type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Register creates a pending principal. The visitor gets a verification
// grant instead of a session.
func (h *Handlers) Register(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	reg, err := h.auth.Register(ctx, auth.RegisterParams{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		Meta:                 cc.Meta(),
	})
	if err != nil {
		return WriteError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"principal":          reg.Principal,
		"verification_grant": reg.Grant,
		"message":            i18n.T(ctx, "msg_verification_sent"),
	})
}

// LoginRequest is the request body for a password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks the password and sets a fresh session cookie. Attempts are
// throttled per ip and email; a success clears the counter.
func (h *Handlers) Login(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	key := ratelimit.Key("login", c.RealIP(), repository.NormalizeEmail(req.Email))
	if err := h.limiter.Hit(key); err != nil {
		return WriteError(c, err)
	}

	out, err := h.auth.Login(ctx, auth.LoginParams{
		Email:         req.Email,
		Password:      req.Password,
		PreviousToken: h.cookies.Token(c.Request()),
		Meta:          cc.Meta(),
	})
	if err != nil {
		return WriteError(c, err)
	}
	h.limiter.Reset(key)

	if err := h.setSession(c, out.Token); err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, newOutcomeResponse(out))
}

// Logout ends the current session.
func (h *Handlers) Logout(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	if err := h.auth.Logout(ctx, cc.Token, cc.Meta()); err != nil {
		return WriteError(c, err)
	}
	h.clearSession(c)

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "msg_logged_out"),
	})
}

// Me returns the caller and the state of their session.
func (h *Handlers) Me(c echo.Context) error {
	cc := appcontext.From(c)
	state := auth.Resolve(cc.Principal, cc.Session)

	resp := map[string]any{
		"state":        state,
		"requires_mfa": state == auth.AwaitingMfa,
	}
	if state != auth.AwaitingMfa {
		resp["principal"] = cc.Principal
	}
	return c.JSON(http.StatusOK, resp)
}

// VerifyEmailRequest is the request body for email verification. The grant
// is only read when the request carries no session.
type VerifyEmailRequest struct {
	Code  string `json:"code"`
	Grant string `json:"verification_grant"`
}

// VerifyEmail activates the principal behind the session or grant.
func (h *Handlers) VerifyEmail(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	var req VerifyEmailRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	var (
		p   *models.Principal
		err error
	)
	switch {
	case cc.IsAuthenticated():
		if d := policy.Evaluate(cc.Subject(), policy.Authenticated, policy.MfaSatisfied); !d.Allowed {
			return WriteDenial(c, d)
		}
		p, err = h.auth.VerifyEmail(ctx, cc.Principal.ID, req.Code, cc.Meta())
	case req.Grant != "":
		p, err = h.auth.VerifyEmailWithGrant(ctx, req.Grant, req.Code, cc.Meta())
	default:
		return WriteDenial(c, policy.Evaluate(cc.Subject(), policy.Authenticated))
	}

	if errors.Is(err, verification.ErrAlreadyVerified) {
		return c.JSON(http.StatusOK, map[string]any{
			"principal": p,
			"message":   i18n.T(ctx, "msg_already_verified"),
		})
	}
	if err != nil {
		return WriteError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"principal": p,
		"message":   i18n.T(ctx, "msg_email_verified"),
	})
}

// ResendVerificationRequest is the request body for a new code.
type ResendVerificationRequest struct {
	Grant string `json:"verification_grant"`
}

// ResendVerification mails a new code, subject to the resend cool-down.
func (h *Handlers) ResendVerification(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	var req ResendVerificationRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	var err error
	switch {
	case cc.IsAuthenticated():
		if d := policy.Evaluate(cc.Subject(), policy.Authenticated, policy.MfaSatisfied); !d.Allowed {
			return WriteDenial(c, d)
		}
		err = h.auth.ResendVerification(ctx, cc.Principal.ID)
	case req.Grant != "":
		err = h.auth.ResendVerificationWithGrant(ctx, req.Grant)
	default:
		return WriteDenial(c, policy.Evaluate(cc.Subject(), policy.Authenticated))
	}

	if errors.Is(err, verification.ErrAlreadyVerified) {
		return c.JSON(http.StatusOK, map[string]string{
			"message": i18n.T(ctx, "msg_already_verified"),
		})
	}
	if err != nil {
		return WriteError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": i18n.T(ctx, "msg_verification_sent"),
	})
}
