// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-auth-service/internal/appcontext"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/oauth"
	"github.com/labstack/echo/v4"
)

var errSocialLoginFailed = errors.New("social login failed")

const stateCookieMaxAge = 600

func stateCookieName(provider string) string {
	return "_oauth_state_" + provider
}

func (h *Handlers) stateCookie(provider, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     stateCookieName(provider),
		Value:    value,
		Path:     "/api/v1/auth/" + provider,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure(),
		SameSite: http.SameSiteLaxMode,
	}
}

// SocialRedirect sends the browser to the provider's consent page.
func (h *Handlers) SocialRedirect(c echo.Context) error {
	provider := c.Param("provider")
	state := oauth.NewState()

	url, err := h.oauth.AuthCodeURL(provider, state)
	if err != nil {
		return WriteError(c, err)
	}

	c.SetCookie(h.stateCookie(provider, state, stateCookieMaxAge))
	return c.Redirect(http.StatusTemporaryRedirect, url)
}

// SocialCallback finishes the provider round trip and signs the principal
// in. The state parameter must match the cookie set by SocialRedirect.
func (h *Handlers) SocialCallback(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()
	provider := c.Param("provider")

	if !h.oauth.Enabled(provider) {
		return WriteError(c, oauth.ErrUnknownProvider)
	}

	expected := ""
	if cookie, err := c.Cookie(stateCookieName(provider)); err == nil {
		expected = cookie.Value
	}
	c.SetCookie(h.stateCookie(provider, "", -1))

	state := c.QueryParam("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		slog.WarnContext(ctx, "social_login_failed", "provider", provider, "reason", "state_mismatch")
		return WriteError(c, errSocialLoginFailed)
	}
	if reason := c.QueryParam("error"); reason != "" {
		slog.WarnContext(ctx, "social_login_failed", "provider", provider, "reason", reason)
		return WriteError(c, errSocialLoginFailed)
	}

	profile, err := h.oauth.Exchange(ctx, provider, c.QueryParam("code"))
	if err != nil {
		if errors.Is(err, oauth.ErrMissingEmail) {
			return WriteError(c, err)
		}
		slog.WarnContext(ctx, "social_login_failed", "provider", provider, "error", err)
		return WriteError(c, errSocialLoginFailed)
	}

	out, err := h.auth.SocialLogin(ctx, auth.SocialLoginParams{
		Provider:      provider,
		ProviderID:    profile.ID,
		Email:         profile.Email,
		Name:          profile.Name,
		PreviousToken: h.cookies.Token(c.Request()),
		Meta:          cc.Meta(),
	})
	if err != nil {
		return WriteError(c, err)
	}

	if err := h.setSession(c, out.Token); err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, newOutcomeResponse(out))
}
