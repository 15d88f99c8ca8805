// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
)

// Principal is an account. Verification-code and MFA secrets live on the
// row but are never serialized.
type Principal struct { //nolint:govet // fieldalignment: readability over optimization
	ID                        int64      `db:"id" json:"id"`
	Name                      string     `db:"name" json:"name"`
	Email                     string     `db:"email" json:"email"`
	PasswordHash              *string    `db:"password_hash" json:"-"`
	OriginProvider            *string    `db:"origin_provider" json:"-"`
	OriginProviderID          *string    `db:"origin_provider_id" json:"-"`
	Role                      Role       `db:"role" json:"role"`
	Status                    Status     `db:"status" json:"status"`
	EmailVerifiedAt           *time.Time `db:"email_verified_at" json:"email_verified_at"`
	PendingUntil              *time.Time `db:"pending_until" json:"-"`
	VerificationCode          *string    `db:"verification_code" json:"-"`
	VerificationCodeExpiresAt *time.Time `db:"verification_code_expires_at" json:"-"`
	VerificationCodeSentAt    *time.Time `db:"verification_code_sent_at" json:"-"`
	MFASecret                 *string    `db:"mfa_secret" json:"-"`
	MFAEnabled                bool       `db:"mfa_enabled" json:"mfa_enabled"`
	MFAConfirmedAt            *time.Time `db:"mfa_confirmed_at" json:"-"`
	CreatedAt                 time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time  `db:"updated_at" json:"updated_at"`
}

// Credential returns the principal's credential origin.
func (p *Principal) Credential() Credential {
	if p.PasswordHash != nil {
		return LocalCredential{Hash: *p.PasswordHash}
	}
	if p.OriginProvider != nil && p.OriginProviderID != nil {
		return SocialCredential{Provider: *p.OriginProvider, ProviderID: *p.OriginProviderID}
	}
	return nil
}

// HasPassword reports whether the principal can sign in with a password.
func (p *Principal) HasPassword() bool {
	_, ok := p.Credential().(LocalCredential)
	return ok
}

// IsSocial reports whether the principal was created through a social provider
// and has no password.
func (p *Principal) IsSocial() bool {
	_, ok := p.Credential().(SocialCredential)
	return ok
}

func (p *Principal) IsEmailVerified() bool {
	return p.EmailVerifiedAt != nil
}

func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// HasPendingMFASecret reports whether a TOTP secret awaits confirmation.
func (p *Principal) HasPendingMFASecret() bool {
	return p.MFASecret != nil && !p.MFAEnabled
}
