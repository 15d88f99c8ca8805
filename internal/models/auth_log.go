// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// AuthMethod names the factor an authentication log entry refers to.
type AuthMethod string

const (
	AuthMethodPassword          AuthMethod = "password"
	AuthMethodMFA               AuthMethod = "mfa"
	AuthMethodRecoveryCode      AuthMethod = "recovery-code"
	AuthMethodSocial            AuthMethod = "social"
	AuthMethodLogout            AuthMethod = "logout"
	AuthMethodEmailVerification AuthMethod = "email-verification"
)

// AuthenticationLogEntry is an append-only audit record.
type AuthenticationLogEntry struct { //nolint:govet // fieldalignment: readability over optimization
	ID            int64      `db:"id" json:"id"`
	PrincipalID   *int64     `db:"principal_id" json:"principal_id"`
	Email         string     `db:"email" json:"email"`
	Method        AuthMethod `db:"method" json:"method"`
	Successful    bool       `db:"successful" json:"successful"`
	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	IPAddress     string     `db:"ip_address" json:"ip_address"`
	UserAgent     string     `db:"user_agent" json:"user_agent"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
