// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import "codeberg.org/oliverandrich/go-auth-service/internal/models"

// State is how far a session has progressed through authentication.
type State string

const (
	Anonymous State = "anonymous"
	// FirstFactorVerified is transient: a credential check passed but no
	// session exists yet. Resolve never returns it.
	FirstFactorVerified       State = "first_factor_verified"
	AwaitingMfa               State = "awaiting_mfa"
	AwaitingEmailVerification State = "awaiting_email_verification"
	FullyAuthenticated        State = "fully_authenticated"
)

// Resolve derives the state of sess for p.
func Resolve(p *models.Principal, sess *models.Session) State {
	if p == nil || sess == nil || sess.PrincipalID != p.ID {
		return Anonymous
	}
	if p.MFAEnabled && !sess.MFASatisfied {
		return AwaitingMfa
	}
	if !p.IsEmailVerified() {
		return AwaitingEmailVerification
	}
	return FullyAuthenticated
}

// Outcome is the result of an operation that issues a session. Token is
// the cookie value and is only set when a new session was created.
type Outcome struct {
	Principal *models.Principal
	Session   *models.Session
	State     State
	Token     string
}

// RequiresMfa reports whether the session still has to pass the MFA gate.
func (o *Outcome) RequiresMfa() bool {
	return o.State == AwaitingMfa
}
