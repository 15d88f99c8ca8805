// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// RecoveryCode stores a hashed single-use MFA recovery code. Using a code
// deletes its row.
type RecoveryCode struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64     `db:"id" json:"id"`
	PrincipalID int64     `db:"principal_id" json:"principal_id"`
	CodeHash    string    `db:"code_hash" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
