// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-auth-service/internal/appcontext"
	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"codeberg.org/oliverandrich/go-auth-service/internal/handlers"
	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"codeberg.org/oliverandrich/go-auth-service/internal/policy"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/ratelimit"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func setupMiddleware(e *echo.Echo, cfg *config.Config, svc *Services) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(csrfMiddleware(cfg))
	e.Use(i18nMiddleware())
	e.Use(loadSession(svc.Auth, svc.Cookies))
}

// csrfMiddleware configures CSRF protection. Script clients fetch the token
// from /api/v1/csrf-token and echo it in the X-CSRF-Token header.
func csrfMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:X-CSRF-Token",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieSecure:   cfg.SecureCookies(),
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	})
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// loadSession wraps the request in an appcontext.Context carrying the
// caller's principal and session. A cookie that no longer maps to a live
// session is cleared; the request continues anonymously.
func loadSession(svc *auth.Service, cookies *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := appcontext.From(c)

			token := cookies.Token(c.Request())
			if token == "" {
				return next(cc)
			}

			p, sess, err := svc.Authenticate(c.Request().Context(), token)
			switch {
			case errors.Is(err, session.ErrNoSession):
				c.SetCookie(cookies.Clear())
			case err != nil:
				return handlers.WriteError(c, err)
			default:
				cc.Principal = p
				cc.Session = sess
				cc.Token = token
			}
			return next(cc)
		}
	}
}

// requireCapabilities denies the request unless the caller meets every
// capability. The response tells the client where to go next.
func requireCapabilities(caps ...policy.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := appcontext.From(c)
			if d := policy.Evaluate(cc.Subject(), caps...); !d.Allowed {
				return handlers.WriteDenial(cc, d)
			}
			return next(cc)
		}
	}
}

// rateLimit throttles a route per client ip.
func rateLimit(l *ratelimit.Limiter, scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := l.Hit(ratelimit.Key(scope, c.RealIP())); err != nil {
				slog.WarnContext(c.Request().Context(), "rate_limited", "scope", scope, "ip", c.RealIP())
				return handlers.WriteError(c, err)
			}
			return next(c)
		}
	}
}
