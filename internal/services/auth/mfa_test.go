// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
	"codeberg.org/oliverandrich/go-auth-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnableMfa(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")
	out, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)

	setup, err := e.mfa.BeginSetup(ctx, p, out.Session, testutil.TestPassword)
	require.NoError(t, err)

	_, _, err = e.svc.EnableMfa(ctx, p, out.Session, e.wrongTOTP(t, setup.Secret), meta)
	assert.ErrorIs(t, err, mfa.ErrMfaCodeInvalid)

	codes, enabled, err := e.svc.EnableMfa(ctx, p, out.Session, e.totpAt(t, setup.Secret, 0), meta)
	require.NoError(t, err)
	assert.Len(t, codes, 8)
	assert.True(t, enabled.Principal.MFAEnabled)
	assert.True(t, enabled.Session.MFASatisfied)
	assert.Equal(t, auth.FullyAuthenticated, enabled.State, "the enrolling session is not locked out")

	_, err = e.sessions.Lookup(ctx, out.Token)
	assert.ErrorIs(t, err, session.ErrNoSession)

	// A new login has to pass the challenge.
	next, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)
	assert.Equal(t, auth.AwaitingMfa, next.State)
}
