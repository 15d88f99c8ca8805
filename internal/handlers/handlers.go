// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers implements the JSON API.
package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/oauth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/ratelimit"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
	"github.com/labstack/echo/v4"
)

var errInvalidRequest = errors.New("invalid request")

// Deps are the services behind the handlers.
type Deps struct {
	Auth    *auth.Service
	MFA     *mfa.Service
	Cookies *session.Manager
	OAuth   *oauth.Service
	Limiter *ratelimit.Limiter // login attempts, keyed by ip and email
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	auth    *auth.Service
	mfa     *mfa.Service
	cookies *session.Manager
	oauth   *oauth.Service
	limiter *ratelimit.Limiter
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	return &Handlers{
		auth:    d.Auth,
		mfa:     d.MFA,
		cookies: d.Cookies,
		oauth:   d.OAuth,
		limiter: d.Limiter,
	}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// CSRFToken hands the CSRF token to script clients, which send it back in
// the X-CSRF-Token header.
func (h *Handlers) CSRFToken(c echo.Context) error {
	token, _ := c.Get("csrf").(string)
	return c.JSON(http.StatusOK, map[string]string{
		"csrf_token": token,
	})
}

// outcomeResponse is the body of every endpoint that starts or upgrades a
// session. The principal is withheld until the MFA gate is passed.
type outcomeResponse struct {
	RequiresMfa bool              `json:"requires_mfa"`
	State       auth.State        `json:"state"`
	Principal   *models.Principal `json:"principal,omitempty"`
}

func newOutcomeResponse(out *auth.Outcome) outcomeResponse {
	resp := outcomeResponse{RequiresMfa: out.RequiresMfa(), State: out.State}
	if !resp.RequiresMfa {
		resp.Principal = out.Principal
	}
	return resp
}

func (h *Handlers) setSession(c echo.Context, token string) error {
	cookie, err := h.cookies.Cookie(token)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return nil
}

func (h *Handlers) clearSession(c echo.Context) {
	c.SetCookie(h.cookies.Clear())
}

// failSession writes err and drops the session cookie when the session
// behind it no longer exists.
func (h *Handlers) failSession(c echo.Context, err error) error {
	if errors.Is(err, session.ErrNoSession) {
		h.clearSession(c)
	}
	return WriteError(c, err)
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return errInvalidRequest
	}
	return nil
}
