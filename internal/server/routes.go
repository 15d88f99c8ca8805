// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/oliverandrich/go-auth-service/internal/handlers"
	"codeberg.org/oliverandrich/go-auth-service/internal/policy"
	"github.com/labstack/echo/v4"
)

func setupRoutes(e *echo.Echo, svc *Services) {
	h := handlers.New(handlers.Deps{
		Auth:    svc.Auth,
		MFA:     svc.MFA,
		Cookies: svc.Cookies,
		OAuth:   svc.OAuth,
		Limiter: svc.LoginLimiter,
	})

	authenticated := requireCapabilities(policy.Authenticated)
	mfaSatisfied := requireCapabilities(policy.Authenticated, policy.MfaSatisfied)
	admin := requireCapabilities(policy.Authenticated, policy.MfaSatisfied, policy.EmailVerified, policy.RoleAdmin)

	e.GET("/health", h.Health)

	api := e.Group("/api/v1")
	api.GET("/csrf-token", h.CSRFToken)

	a := api.Group("/auth")
	a.POST("/register", h.Register, rateLimit(svc.Limiter, "register"))
	a.POST("/login", h.Login)
	a.POST("/logout", h.Logout, authenticated)
	a.GET("/me", h.Me, authenticated)
	a.POST("/email/verify", h.VerifyEmail, rateLimit(svc.Limiter, "email-verify"))
	a.POST("/email/resend", h.ResendVerification, rateLimit(svc.Limiter, "email-resend"))
	a.GET("/:provider/redirect", h.SocialRedirect)
	a.GET("/:provider/callback", h.SocialCallback)

	m := api.Group("/mfa", authenticated)
	m.GET("/status", h.MfaStatus)
	m.POST("/verify", h.MfaVerify, rateLimit(svc.Limiter, "mfa-verify"))
	m.POST("/setup", h.MfaSetup, mfaSatisfied)
	m.POST("/enable", h.MfaEnable, mfaSatisfied)
	m.POST("/disable", h.MfaDisable, mfaSatisfied)
	m.POST("/recovery-codes", h.MfaRecoveryCodes, mfaSatisfied)

	p := api.Group("/profile", mfaSatisfied)
	p.GET("", h.Profile)
	p.PUT("", h.UpdateProfile)
	p.PUT("/password", h.ChangePassword)
	p.DELETE("", h.DeleteProfile)

	ad := api.Group("/admin", admin)
	ad.GET("/users", h.ListUsers)
	ad.POST("/users", h.CreateUser)
	ad.PUT("/users/:id/role", h.SetRole)
	ad.DELETE("/users/:id", h.DeleteUser)
}
