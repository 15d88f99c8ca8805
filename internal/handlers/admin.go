// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"strconv"

	"codeberg.org/oliverandrich/go-auth-service/internal/appcontext"
	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// ListUsers returns all principals.
func (h *Handlers) ListUsers(c echo.Context) error {
	principals, err := h.auth.ListPrincipals(c.Request().Context())
	if err != nil {
		return WriteError(c, err)
	}
	if principals == nil {
		principals = []models.Principal{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"users": principals,
	})
}

// CreateUserRequest is the request body for creating an administrator.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUser creates an active, verified administrator.
func (h *Handlers) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	p, err := h.auth.CreateAdmin(c.Request().Context(), auth.AdminParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"principal": p,
	})
}

// SetRoleRequest is the request body for a role change.
type SetRoleRequest struct {
	Role string `json:"role"`
}

// SetRole changes the role of a principal.
func (h *Handlers) SetRole(c echo.Context) error {
	id, err := principalID(c)
	if err != nil {
		return WriteError(c, err)
	}

	var req SetRoleRequest
	if err := bind(c, &req); err != nil {
		return WriteError(c, err)
	}

	p, err := h.auth.SetRole(c.Request().Context(), id, models.Role(req.Role))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"principal": p,
	})
}

// DeleteUser removes a principal other than the caller.
func (h *Handlers) DeleteUser(c echo.Context) error {
	cc := appcontext.From(c)
	ctx := c.Request().Context()

	id, err := principalID(c)
	if err != nil {
		return WriteError(c, err)
	}

	if err := h.auth.DeletePrincipal(ctx, cc.Principal, id); err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "msg_principal_deleted"),
	})
}

func principalID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidRequest
	}
	return id, nil
}
