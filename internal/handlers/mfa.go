// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/go-auth-service/internal/appcontext"
	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"github.com/labstack/echo/v4"
)

// PasswordRequest carries a re-proof of the current credential.
type PasswordRequest struct {
	Password string `json:"password"`
}

// CodeRequest carries a TOTP or recovery code.
type CodeRequest struct {
	Code string `json:"code"`
}

// MfaStatus reports the caller's enrollment.
func (h *Handlers) MfaStatus(c echo.Context) error {
	cc := appcontext.From(c)

	status, err := h.mfa.Status(c.Request().Context(), cc.Principal)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// MfaSetup starts a TOTP enrollment.
func (h *Handlers) MfaSetup(c echo.Context) error {
	cc := appcontext.From(c)

	var req PasswordRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	setup, err := h.mfa.BeginSetup(c.Request().Context(), cc.Principal, cc.Session, req.Password)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, setup)
}

// MfaEnable confirms the enrollment and returns the recovery codes. They
// are shown once.
func (h *Handlers) MfaEnable(c echo.Context) error {
	cc := appcontext.From(c)

	var req CodeRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	codes, out, err := h.auth.EnableMfa(c.Request().Context(), cc.Principal, cc.Session, req.Code, cc.Meta())
	if err != nil {
		return h.failSession(c, err)
	}
	if err := h.setSession(c, out.Token); err != nil {
		return WriteError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"recovery_codes": codes,
		"state":          out.State,
	})
}

// MfaVerifyResponse is the body of a passed challenge. The remaining
// recovery codes are only reported when one was used.
type MfaVerifyResponse struct {
	State                  string `json:"state"`
	Method                 string `json:"method"`
	RecoveryCodesRemaining *int   `json:"recovery_codes_remaining,omitempty"`
}

// MfaVerify runs the second-factor challenge and upgrades the session.
func (h *Handlers) MfaVerify(c echo.Context) error {
	cc := appcontext.From(c)

	var req CodeRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	out, err := h.auth.CompleteMfa(c.Request().Context(), cc.Session, req.Code, cc.Meta())
	if err != nil {
		return h.failSession(c, err)
	}
	if err := h.setSession(c, out.Token); err != nil {
		return WriteError(c, err)
	}

	resp := MfaVerifyResponse{State: string(out.State), Method: out.Method}
	if out.Method == mfa.MethodRecoveryCode {
		remaining := out.RecoveryCodesRemaining
		resp.RecoveryCodesRemaining = &remaining
	}
	return c.JSON(http.StatusOK, resp)
}

// MfaDisable turns MFA off after re-proof.
func (h *Handlers) MfaDisable(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	var req PasswordRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	if err := h.mfa.Disable(ctx, cc.Principal, cc.Session, req.Password); err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "msg_mfa_disabled"),
	})
}

// MfaRecoveryCodes replaces all recovery codes.
func (h *Handlers) MfaRecoveryCodes(c echo.Context) error {
	cc := appcontext.From(c)

	codes, err := h.mfa.RegenerateRecoveryCodes(c.Request().Context(), cc.Principal)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"recovery_codes": codes,
	})
}
