// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Credential is the origin of a principal's first factor. It is either a
// LocalCredential or a SocialCredential, never both.
type Credential interface {
	isCredential()
}

// LocalCredential is a bcrypt password hash.
type LocalCredential struct {
	Hash string
}

// SocialCredential links a principal to an OAuth provider account.
type SocialCredential struct {
	Provider   string
	ProviderID string
}

func (LocalCredential) isCredential()  {}
func (SocialCredential) isCredential() {}

// Known social providers.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// ValidProvider reports whether name is a supported social provider.
func ValidProvider(name string) bool {
	return name == ProviderGoogle || name == ProviderFacebook
}

// Identity is an additional provider link of a principal, created when a
// social login is merged into an existing account.
type Identity struct { //nolint:govet // fieldalignment: readability over optimization
	Provider    string    `db:"provider" json:"provider"`
	ProviderID  string    `db:"provider_id" json:"-"`
	PrincipalID int64     `db:"principal_id" json:"principal_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
