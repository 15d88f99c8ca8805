// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package policy decides whether a session may perform an action and, if
// not, where the client has to go next.
package policy

import (
	"net/http"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
)

// Capability is a requirement a route places on the caller.
type Capability string

const (
	Authenticated Capability = "authenticated"
	MfaSatisfied  Capability = "mfaSatisfied"
	EmailVerified Capability = "emailVerified"
	RoleAdmin     Capability = "role:admin"
)

// Target tells the client what to do about a denial.
type Target string

const (
	TargetNone              Target = ""
	TargetLogin             Target = "login"
	TargetMfaChallenge      Target = "mfa-challenge"
	TargetEmailVerification Target = "email-verification"
	TargetForbidden         Target = "forbidden"
)

// order is the fixed evaluation order. The first unmet capability decides
// the target.
var order = []Capability{Authenticated, MfaSatisfied, EmailVerified, RoleAdmin}

var targets = map[Capability]Target{
	Authenticated: TargetLogin,
	MfaSatisfied:  TargetMfaChallenge,
	EmailVerified: TargetEmailVerification,
	RoleAdmin:     TargetForbidden,
}

// Subject is the caller as seen by the policy. Both fields are nil for
// anonymous requests.
type Subject struct {
	Principal *models.Principal
	Session   *models.Session
}

// Decision is the result of Evaluate.
type Decision struct {
	Allowed bool
	Unmet   []Capability
	Target  Target
}

// Status returns the HTTP status for a denial.
func (d Decision) Status() int {
	switch d.Target {
	case TargetNone:
		return http.StatusOK
	case TargetLogin:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}

// Has reports whether s meets a single capability.
func (s Subject) Has(c Capability) bool {
	authenticated := s.Principal != nil && s.Session != nil && s.Session.PrincipalID == s.Principal.ID
	switch c {
	case Authenticated:
		return authenticated
	case MfaSatisfied:
		return authenticated && (!s.Principal.MFAEnabled || s.Session.MFASatisfied)
	case EmailVerified:
		return authenticated && s.Principal.IsEmailVerified()
	case RoleAdmin:
		return authenticated && s.Principal.IsAdmin()
	default:
		return false
	}
}

// Evaluate checks caps conjunctively. Unknown capabilities are never met
// and map to TargetForbidden.
func Evaluate(s Subject, caps ...Capability) Decision {
	required := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		required[c] = true
	}

	var d Decision
	for _, c := range order {
		if required[c] && !s.Has(c) {
			d.Unmet = append(d.Unmet, c)
		}
		delete(required, c)
	}
	for _, c := range caps {
		if required[c] {
			d.Unmet = append(d.Unmet, c)
			delete(required, c)
		}
	}

	if len(d.Unmet) == 0 {
		d.Allowed = true
		return d
	}
	d.Target = targets[d.Unmet[0]]
	if d.Target == TargetNone {
		d.Target = TargetForbidden
	}
	return d
}

// CanAccess reports whether s meets every capability in caps.
func CanAccess(s Subject, caps ...Capability) bool {
	return Evaluate(s, caps...).Allowed
}
