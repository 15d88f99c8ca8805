// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/go-auth-service/internal/appcontext"
	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// Profile shows the caller's account.
func (h *Handlers) Profile(c echo.Context) error {
	cc := appcontext.From(c)
	return c.JSON(http.StatusOK, map[string]any{
		"principal":      cc.Principal,
		"email_verified": cc.Principal.IsEmailVerified(),
		"social_auth":    cc.Principal.IsSocial(),
	})
}

// UpdateProfileRequest is the request body for a profile change. Omitted
// fields stay unchanged.
type UpdateProfileRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	CurrentPassword string  `json:"current_password"`
}

// UpdateProfile changes name or email. A new email address has to be
// verified before the policy lets the caller through again.
func (h *Handlers) UpdateProfile(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	var req UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	res, err := h.auth.UpdateProfile(ctx, cc.Principal, cc.Session, auth.UpdateProfileParams{
		Name:            req.Name,
		Email:           req.Email,
		CurrentPassword: req.CurrentPassword,
	})
	if err != nil {
		return WriteError(c, err)
	}

	msg := i18n.T(ctx, "msg_profile_updated")
	if res.EmailChanged {
		msg = i18n.T(ctx, "msg_email_changed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"principal":      res.Principal,
		"email_verified": res.Principal.IsEmailVerified(),
		"message":        msg,
	})
}

// ChangePasswordRequest is the request body for a password change.
type ChangePasswordRequest struct {
	CurrentPassword      string `json:"current_password"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ChangePassword sets a new password and signs out all other sessions.
func (h *Handlers) ChangePassword(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	var req ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	err := h.auth.ChangePassword(ctx, cc.Principal, cc.Session, auth.ChangePasswordParams{
		CurrentPassword:      req.CurrentPassword,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "msg_password_changed"),
	})
}

// DeleteProfile removes the caller's account and ends the session.
func (h *Handlers) DeleteProfile(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	var req PasswordRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	if err := h.auth.DeleteAccount(ctx, cc.Principal, cc.Session, req.Password); err != nil {
		return WriteError(c, err)
	}
	h.clearSession(c)

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "msg_account_deleted"),
	})
}
