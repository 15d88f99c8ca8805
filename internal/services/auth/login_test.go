// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
	"codeberg.org/oliverandrich/go-auth-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	e := newEnv(t)
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")

	out, err := e.svc.Login(context.Background(), auth.LoginParams{
		Email:    "  Alice@Example.com ",
		Password: testutil.TestPassword,
		Meta:     meta,
	})

	require.NoError(t, err)
	assert.Equal(t, p.ID, out.Principal.ID)
	assert.Equal(t, auth.FullyAuthenticated, out.State)
	assert.False(t, out.RequiresMfa())
	assert.NotEmpty(t, out.Token)
	assert.False(t, out.Session.MFASatisfied)
	assert.Equal(t, "192.0.2.10", out.Session.IPAddress)
}

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")

	_, errUnknown := e.svc.Login(ctx, auth.LoginParams{Email: "nobody@example.com", Password: testutil.TestPassword, Meta: meta})
	_, errWrong := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: "wrong-password", Meta: meta})

	assert.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())

	unknown, err := e.repo.ListAuthLogsByEmail(ctx, "nobody@example.com", 10)
	require.NoError(t, err)
	wrong, err := e.repo.ListAuthLogsByEmail(ctx, p.Email, 10)
	require.NoError(t, err)
	require.Len(t, unknown, 1)
	require.Len(t, wrong, 1)

	assert.Nil(t, unknown[0].PrincipalID)
	require.NotNil(t, wrong[0].PrincipalID)
	assert.Equal(t, p.ID, *wrong[0].PrincipalID)

	// Apart from the principal id the entries look the same.
	for _, entry := range []models.AuthenticationLogEntry{unknown[0], wrong[0]} {
		assert.Equal(t, models.AuthMethodPassword, entry.Method)
		assert.False(t, entry.Successful)
		require.NotNil(t, entry.FailureReason)
		assert.Equal(t, "invalid_credentials", *entry.FailureReason)
		assert.Equal(t, meta.IP, entry.IPAddress)
	}

	assert.Zero(t, testutil.CountSessions(t, e.repo, p.ID), "failed logins never create sessions")
}

func TestLogin_SocialPrincipalHasNoPassword(t *testing.T) {
	e := newEnv(t)
	p := testutil.NewSocialPrincipal(t, e.repo, "social@example.com", models.ProviderGoogle, "g-1")

	_, err := e.svc.Login(context.Background(), auth.LoginParams{Email: p.Email, Password: "", Meta: meta})

	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_ReplacesPreviousSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")

	first, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)
	second, err := e.svc.Login(ctx, auth.LoginParams{
		Email: p.Email, Password: testutil.TestPassword, PreviousToken: first.Token, Meta: meta,
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	_, err = e.sessions.Lookup(ctx, first.Token)
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = e.sessions.Lookup(ctx, second.Token)
	assert.NoError(t, err)
}

func TestLogin_UnverifiedPrincipal(t *testing.T) {
	e := newEnv(t)
	p := testutil.NewPendingPrincipal(t, e.repo, "pending@example.com")

	out, err := e.svc.Login(context.Background(), auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})

	require.NoError(t, err)
	assert.Equal(t, auth.AwaitingEmailVerification, out.State)
}

func TestMfaLoginWithRecoveryCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")
	secret, codes := e.enrollMFA(t, p)
	require.Len(t, codes, 8)

	out, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)
	assert.True(t, out.RequiresMfa())
	assert.Equal(t, auth.AwaitingMfa, out.State)

	// A wrong code leaves the session waiting.
	_, err = e.svc.CompleteMfa(ctx, out.Session, e.wrongTOTP(t, secret), meta)
	assert.ErrorIs(t, err, mfa.ErrMfaCodeInvalid)
	_, sess, err := e.svc.Authenticate(ctx, out.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.AwaitingMfa, auth.Resolve(testutil.Reload(t, e.repo, p), sess))

	done, err := e.svc.CompleteMfa(ctx, sess, codes[2], meta)
	require.NoError(t, err)
	assert.Equal(t, auth.FullyAuthenticated, done.State)
	assert.Equal(t, mfa.MethodRecoveryCode, done.Method)
	assert.Equal(t, 7, done.RecoveryCodesRemaining)
	assert.True(t, done.Session.MFASatisfied)

	// The session id was regenerated.
	assert.NotEqual(t, out.Token, done.Token)
	_, err = e.sessions.Lookup(ctx, out.Token)
	assert.ErrorIs(t, err, session.ErrNoSession)

	_, err = e.svc.CompleteMfa(ctx, done.Session, codes[3], meta)
	assert.ErrorIs(t, err, auth.ErrNotAwaitingMfa)

	logs, err := e.repo.ListAuthLogsByEmail(ctx, p.Email, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuthMethodRecoveryCode, logs[0].Method)
	assert.True(t, logs[0].Successful)
}

func TestCompleteMfa_TOTP(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")
	secret, _ := e.enrollMFA(t, p)

	out, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)

	done, err := e.svc.CompleteMfa(ctx, out.Session, e.totpAt(t, secret, 0), meta)

	require.NoError(t, err)
	assert.Equal(t, mfa.MethodTOTP, done.Method)
	assert.Equal(t, auth.FullyAuthenticated, done.State)
}

func TestCompleteMfa_NotEnrolled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")

	out, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)

	_, err = e.svc.CompleteMfa(ctx, out.Session, "123456", meta)
	assert.ErrorIs(t, err, mfa.ErrMfaNotConfigured)
}

func TestCompleteMfa_AfterLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")
	secret, _ := e.enrollMFA(t, p)

	out, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)
	require.NoError(t, e.svc.Logout(ctx, out.Token, meta))

	_, err = e.svc.CompleteMfa(ctx, out.Session, e.totpAt(t, secret, 0), meta)

	require.ErrorIs(t, err, session.ErrNoSession)
	assert.Zero(t, testutil.CountSessions(t, e.repo, p.ID))
}

func TestCompleteMfa_SameSessionTwice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")
	secret, _ := e.enrollMFA(t, p)

	out, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)

	first, err := e.svc.CompleteMfa(ctx, out.Session, e.totpAt(t, secret, 0), meta)
	require.NoError(t, err)
	_, err = e.svc.CompleteMfa(ctx, out.Session, e.totpAt(t, secret, 0), meta)
	require.ErrorIs(t, err, session.ErrNoSession)

	assert.Equal(t, 1, testutil.CountSessions(t, e.repo, p.ID))
	_, err = e.sessions.Lookup(ctx, first.Token)
	assert.NoError(t, err)
}

func TestSocialLogin_CreatesPrincipal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	params := auth.SocialLoginParams{
		Provider: models.ProviderGoogle, ProviderID: "g-42", Email: "Bob@Example.com", Name: "Bob", Meta: meta,
	}

	out, err := e.svc.SocialLogin(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, auth.FullyAuthenticated, out.State)
	assert.Equal(t, "bob@example.com", out.Principal.Email)
	assert.Equal(t, models.StatusActive, out.Principal.Status)
	assert.True(t, out.Principal.IsEmailVerified())
	assert.Equal(t, models.SocialCredential{Provider: "google", ProviderID: "g-42"}, out.Principal.Credential())

	again, err := e.svc.SocialLogin(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, out.Principal.ID, again.Principal.ID)

	logs, err := e.repo.ListAuthLogsByEmail(ctx, "bob@example.com", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuthMethodSocial, logs[0].Method)
}

func TestSocialLogin_NameFallsBackToEmail(t *testing.T) {
	e := newEnv(t)

	out, err := e.svc.SocialLogin(context.Background(), auth.SocialLoginParams{
		Provider: models.ProviderFacebook, ProviderID: "f-1", Email: "carol@example.com", Meta: meta,
	})

	require.NoError(t, err)
	assert.Equal(t, "carol", out.Principal.Name)
}

func TestSocialLogin_MergesByEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")

	out, err := e.svc.SocialLogin(ctx, auth.SocialLoginParams{
		Provider: models.ProviderFacebook, ProviderID: "f-9", Email: "alice@example.com", Name: "Alice", Meta: meta,
	})
	require.NoError(t, err)

	assert.Equal(t, p.ID, out.Principal.ID)
	assert.Equal(t, models.StatusActive, out.Principal.Status)
	assert.True(t, out.Principal.HasPassword(), "a verified account keeps its password")
	assert.Equal(t, auth.FullyAuthenticated, out.State)

	ids, err := e.repo.ListIdentities(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "facebook", ids[0].Provider)
}

func TestSocialLogin_ClaimsUnverifiedAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := testutil.NewPendingPrincipal(t, e.repo, "alice@example.com")
	squatter, err := e.svc.Login(ctx, auth.LoginParams{Email: pending.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)
	require.Equal(t, auth.AwaitingEmailVerification, squatter.State)
	require.NoError(t, e.repo.SetMFASecret(ctx, pending.ID, "JBSWY3DPEHPK3PXP"))
	_, err = e.repo.EnableMFA(ctx, pending.ID, e.clock.Now())
	require.NoError(t, err)

	out, err := e.svc.SocialLogin(ctx, auth.SocialLoginParams{
		Provider: models.ProviderFacebook, ProviderID: "f-9", Email: "alice@example.com", Name: "Alice", Meta: meta,
	})
	require.NoError(t, err)

	assert.Equal(t, pending.ID, out.Principal.ID)
	assert.True(t, out.Principal.IsEmailVerified(), "provider email counts as verified")
	assert.Equal(t, models.StatusActive, out.Principal.Status)
	assert.False(t, out.Principal.HasPassword())
	assert.True(t, out.Principal.IsSocial())
	assert.False(t, out.Principal.MFAEnabled)
	assert.Nil(t, out.Principal.MFASecret)
	assert.Equal(t, auth.FullyAuthenticated, out.State, "the registrant's mfa enrollment is gone")

	_, err = e.svc.Login(ctx, auth.LoginParams{Email: pending.Email, Password: testutil.TestPassword, Meta: meta})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials, "the registrant's password is gone")
	_, err = e.sessions.Lookup(ctx, squatter.Token)
	assert.ErrorIs(t, err, session.ErrNoSession, "the registrant's session ends")
	_, err = e.sessions.Lookup(ctx, out.Token)
	assert.NoError(t, err)
}

func TestSocialLogin_StillRequiresMfa(t *testing.T) {
	e := newEnv(t)
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")
	e.enrollMFA(t, p)

	out, err := e.svc.SocialLogin(context.Background(), auth.SocialLoginParams{
		Provider: models.ProviderGoogle, ProviderID: "g-1", Email: p.Email, Meta: meta,
	})

	require.NoError(t, err)
	assert.Equal(t, auth.AwaitingMfa, out.State)
}

func TestSocialLogin_Rejects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SocialLogin(ctx, auth.SocialLoginParams{Provider: "github", ProviderID: "1", Email: "x@example.com"})
	assert.ErrorIs(t, err, auth.ErrUnknownProvider)

	_, err = e.svc.SocialLogin(ctx, auth.SocialLoginParams{Provider: "google", ProviderID: "1", Email: "nope"})
	assert.ErrorIs(t, err, auth.ErrInvalidEmail)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := testutil.NewTestPrincipal(t, e.repo, "alice@example.com")
	out, err := e.svc.Login(ctx, auth.LoginParams{Email: p.Email, Password: testutil.TestPassword, Meta: meta})
	require.NoError(t, err)

	require.NoError(t, e.svc.Logout(ctx, out.Token, meta))

	_, err = e.sessions.Lookup(ctx, out.Token)
	assert.ErrorIs(t, err, session.ErrNoSession)

	logs, err := e.repo.ListAuthLogsByEmail(ctx, p.Email, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuthMethodLogout, logs[0].Method)

	assert.NoError(t, e.svc.Logout(ctx, out.Token, meta), "logging out twice is harmless")
}
