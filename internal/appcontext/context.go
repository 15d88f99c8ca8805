// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context.
package appcontext

import (
	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/policy"
	"github.com/labstack/echo/v4"
)

// Context is a custom Echo context carrying the caller's principal and
// session. Both are nil for anonymous requests.
type Context struct {
	echo.Context
	Principal *models.Principal
	Session   *models.Session
	Token     string // raw session token from the cookie
}

// From returns the custom context behind c, wrapping c if the session
// middleware did not run.
func From(c echo.Context) *Context {
	if cc, ok := c.(*Context); ok {
		return cc
	}
	return &Context{Context: c}
}

// IsAuthenticated returns true if a live session belongs to the principal.
func (c *Context) IsAuthenticated() bool {
	return c.Principal != nil && c.Session != nil
}

// Subject returns the caller for policy evaluation.
func (c *Context) Subject() policy.Subject {
	return policy.Subject{Principal: c.Principal, Session: c.Session}
}

// Meta identifies the client for sessions and authentication logs.
func (c *Context) Meta() models.RequestMeta {
	return models.RequestMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
