// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Session is the server-side half of a login. The cookie carries the opaque
// id; only its SHA-256 hash is stored.
type Session struct { //nolint:govet // fieldalignment: readability over optimization
	IDHash       string    `db:"id_hash" json:"-"`
	PrincipalID  int64     `db:"principal_id" json:"principal_id"`
	MFASatisfied bool      `db:"mfa_satisfied" json:"mfa_satisfied"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	LastSeenAt   time.Time `db:"last_seen_at" json:"last_seen_at"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	IPAddress    string    `db:"ip_address" json:"ip_address"`
	UserAgent    string    `db:"user_agent" json:"user_agent"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Age returns how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// RequestMeta identifies the client behind a request for sessions and
// authentication logs.
type RequestMeta struct {
	IP        string
	UserAgent string
}
