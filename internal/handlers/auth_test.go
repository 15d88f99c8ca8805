// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registerBody = `{"name":"Alice","email":"Alice@Example.com","password":"Tr0ub4dor&3-horse","password_confirmation":"Tr0ub4dor&3-horse"}`

func TestRegister(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, env.h.Register, request{path: "/api/v1/auth/register", body: registerBody})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["verification_grant"])

	principal, ok := body["principal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", principal["email"])
	assert.Equal(t, "pending", principal["status"])
	assert.Nil(t, principal["email_verified_at"])
	assert.NotContains(t, principal, "verification_code")
	assert.NotContains(t, principal, "password_hash")

	assert.Empty(t, rec.Result().Cookies(), "registration must not sign in")
	assert.Regexp(t, `^\d{6}$`, env.mailer.last(t))
	assert.NotContains(t, rec.Body.String(), env.mailer.last(t))
}

func TestRegister_Validation(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"invalid email", `{"name":"Alice","email":"nope","password":"Tr0ub4dor&3-horse","password_confirmation":"Tr0ub4dor&3-horse"}`, "email"},
		{"missing name", `{"name":"","email":"a@example.com","password":"Tr0ub4dor&3-horse","password_confirmation":"Tr0ub4dor&3-horse"}`, "name"},
		{"mismatch", `{"name":"Alice","email":"a@example.com","password":"Tr0ub4dor&3-horse","password_confirmation":"other"}`, "password_confirmation"},
		{"weak password", `{"name":"Alice","email":"a@example.com","password":"12345678","password_confirmation":"12345678"}`, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, env.h.Register, request{path: "/api/v1/auth/register", body: tt.body})

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "validation_failed", body["error"])
			assert.Equal(t, tt.field, body["field"])
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newEnv(t)
	testutil.NewTestPrincipal(t, env.repo, "alice@example.com")

	rec := env.do(t, env.h.Register, request{path: "/api/v1/auth/register", body: registerBody})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Equal(t, "email", body["field"])
}

func TestRegister_MalformedBody(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, env.h.Register, request{path: "/api/v1/auth/register", body: `{"name":`})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["error"])
}

func TestLogin(t *testing.T) {
	env := newEnv(t)
	testutil.NewTestPrincipal(t, env.repo, "bob@example.com")

	rec := env.do(t, env.h.Login, request{
		path: "/api/v1/auth/login",
		body: `{"email":"bob@example.com","password":"Passw0rd!"}`,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, false, body["requires_mfa"])
	assert.Equal(t, "fully_authenticated", body["state"])
	assert.NotNil(t, body["principal"])

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	sess, err := env.sessions.Lookup(context.Background(), env.tokenFrom(t, rec))
	require.NoError(t, err)
	assert.False(t, sess.MFASatisfied)
}

func TestLogin_WithMFA(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewTestPrincipal(t, env.repo, "bob@example.com")
	env.enrollMFA(t, p)

	rec := env.do(t, env.h.Login, request{
		path: "/api/v1/auth/login",
		body: `{"email":"bob@example.com","password":"Passw0rd!"}`,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["requires_mfa"])
	assert.Equal(t, "awaiting_mfa", body["state"])
	assert.NotContains(t, body, "principal")
	sessionCookie(t, rec)
}

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	env := newEnv(t)
	testutil.NewTestPrincipal(t, env.repo, "bob@example.com")

	wrong := env.do(t, env.h.Login, request{
		path: "/api/v1/auth/login",
		body: `{"email":"bob@example.com","password":"wrong"}`,
	})
	unknown := env.do(t, env.h.Login, request{
		path: "/api/v1/auth/login",
		body: `{"email":"nobody@example.com","password":"wrong"}`,
	})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
	assert.Empty(t, wrong.Result().Cookies())
}

func TestLogin_RateLimited(t *testing.T) {
	env := newEnv(t)
	testutil.NewTestPrincipal(t, env.repo, "bob@example.com")

	for i := range 5 {
		rec := env.do(t, env.h.Login, request{
			path: "/api/v1/auth/login",
			body: `{"email":"bob@example.com","password":"wrong"}`,
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := env.do(t, env.h.Login, request{
		path: "/api/v1/auth/login",
		body: `{"email":"BOB@example.com","password":"Passw0rd!"}`,
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	body := decode(t, rec)
	assert.Equal(t, "rate_limited", body["error"])
	assert.Greater(t, body["retry_after"], float64(0))

	other := env.do(t, env.h.Login, request{
		path: "/api/v1/auth/login",
		body: `{"email":"other@example.com","password":"wrong"}`,
	})
	assert.Equal(t, http.StatusUnauthorized, other.Code, "limit is per email")
}

func TestLogin_SuccessResetsLimit(t *testing.T) {
	env := newEnv(t)
	testutil.NewTestPrincipal(t, env.repo, "bob@example.com")

	for range 4 {
		env.do(t, env.h.Login, request{path: "/api/v1/auth/login", body: `{"email":"bob@example.com","password":"wrong"}`})
	}
	rec := env.do(t, env.h.Login, request{path: "/api/v1/auth/login", body: `{"email":"bob@example.com","password":"Passw0rd!"}`})
	require.Equal(t, http.StatusOK, rec.Code)

	for i := range 5 {
		rec := env.do(t, env.h.Login, request{path: "/api/v1/auth/login", body: `{"email":"bob@example.com","password":"wrong"}`})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}
}

func TestLogin_ReplacesPreviousSession(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewTestPrincipal(t, env.repo, "bob@example.com")
	old := env.signIn(t, p, true)
	cookie, err := env.cookies.Cookie(old.Token)
	require.NoError(t, err)

	rec := env.do(t, env.h.Login, request{
		path:    "/api/v1/auth/login",
		body:    `{"email":"bob@example.com","password":"Passw0rd!"}`,
		cookies: []*http.Cookie{cookie},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ctx := context.Background()
	_, err = env.sessions.Lookup(ctx, old.Token)
	assert.Error(t, err)
	_, err = env.sessions.Lookup(ctx, env.tokenFrom(t, rec))
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewTestPrincipal(t, env.repo, "bob@example.com")
	l := env.signIn(t, p, true)

	rec := env.do(t, env.h.Logout, request{path: "/api/v1/auth/logout", login: l})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out.", decode(t, rec)["message"])
	assert.Less(t, sessionCookie(t, rec).MaxAge, 0)

	_, err := env.sessions.Lookup(context.Background(), l.Token)
	assert.Error(t, err)
}

func TestMe(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewTestPrincipal(t, env.repo, "bob@example.com")

	rec := env.do(t, env.h.Me, request{method: http.MethodGet, path: "/api/v1/auth/me", login: env.signIn(t, p, false)})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "fully_authenticated", body["state"])
	principal, ok := body["principal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", principal["email"])
}

func TestMe_AwaitingMfaHidesPrincipal(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewTestPrincipal(t, env.repo, "bob@example.com")
	env.enrollMFA(t, p)

	rec := env.do(t, env.h.Me, request{method: http.MethodGet, path: "/api/v1/auth/me", login: env.signIn(t, p, false)})

	body := decode(t, rec)
	assert.Equal(t, "awaiting_mfa", body["state"])
	assert.Equal(t, true, body["requires_mfa"])
	assert.NotContains(t, body, "principal")
}

func register(t *testing.T, env *env) string {
	t.Helper()
	rec := env.do(t, env.h.Register, request{path: "/api/v1/auth/register", body: registerBody})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	grant, ok := decode(t, rec)["verification_grant"].(string)
	require.True(t, ok)
	return grant
}

func TestVerifyEmail_WithGrant(t *testing.T) {
	env := newEnv(t)
	grant := register(t, env)

	wrong := env.do(t, env.h.VerifyEmail, request{
		path: "/api/v1/auth/email/verify",
		body: fmt.Sprintf(`{"code":"000000","verification_grant":%q}`, grant),
	})
	if env.mailer.last(t) != "000000" {
		assert.Equal(t, http.StatusUnprocessableEntity, wrong.Code)
		assert.Equal(t, "code_invalid", decode(t, wrong)["error"])
	}

	rec := env.do(t, env.h.VerifyEmail, request{
		path: "/api/v1/auth/email/verify",
		body: fmt.Sprintf(`{"code":%q,"verification_grant":%q}`, env.mailer.last(t), grant),
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Email address verified.", body["message"])
	principal, ok := body["principal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "active", principal["status"])
	assert.NotNil(t, principal["email_verified_at"])

	again := env.do(t, env.h.VerifyEmail, request{
		path: "/api/v1/auth/email/verify",
		body: fmt.Sprintf(`{"code":%q,"verification_grant":%q}`, env.mailer.last(t), grant),
	})
	assert.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "Email address is already verified.", decode(t, again)["message"])
}

func TestVerifyEmail_Expired(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewPendingPrincipal(t, env.repo, "carol@example.com")
	l := env.signIn(t, p, false)

	rec := env.do(t, env.h.ResendVerification, request{path: "/api/v1/auth/email/resend", login: l})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	env.clock.Advance(24 * time.Hour)

	rec = env.do(t, env.h.VerifyEmail, request{
		path:  "/api/v1/auth/email/verify",
		body:  fmt.Sprintf(`{"code":%q}`, env.mailer.last(t)),
		login: l,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "code_expired", decode(t, rec)["error"])
	assert.False(t, testutil.Reload(t, env.repo, p).IsEmailVerified())
}

func TestVerifyEmail_WithSession(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewPendingPrincipal(t, env.repo, "carol@example.com")
	l := env.signIn(t, p, false)

	rec := env.do(t, env.h.ResendVerification, request{path: "/api/v1/auth/email/resend", login: l})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = env.do(t, env.h.VerifyEmail, request{
		path:  "/api/v1/auth/email/verify",
		body:  fmt.Sprintf(`{"code":%q}`, env.mailer.last(t)),
		login: l,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, testutil.Reload(t, env.repo, p).IsEmailVerified())
}

func TestVerifyEmail_Anonymous(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, env.h.VerifyEmail, request{path: "/api/v1/auth/email/verify", body: `{"code":"123456"}`})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "login", decode(t, rec)["error"])
}

func TestVerifyEmail_InvalidGrant(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, env.h.VerifyEmail, request{
		path: "/api/v1/auth/email/verify",
		body: `{"code":"123456","verification_grant":"not-a-token"}`,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_grant", decode(t, rec)["error"])
}

func TestVerifyEmail_SessionAwaitingMfa(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewPendingPrincipal(t, env.repo, "carol@example.com")
	env.enrollMFA(t, p)

	rec := env.do(t, env.h.VerifyEmail, request{
		path:  "/api/v1/auth/email/verify",
		body:  `{"code":"123456"}`,
		login: env.signIn(t, p, false),
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "mfa-challenge", body["error"])
	assert.Equal(t, true, body["requires_mfa"])
}

func TestResendVerification_CoolDown(t *testing.T) {
	env := newEnv(t)
	grant := register(t, env)
	body := fmt.Sprintf(`{"verification_grant":%q}`, grant)

	env.clock.Advance(20 * time.Second)
	rec := env.do(t, env.h.ResendVerification, request{path: "/api/v1/auth/email/resend", body: body})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("Retry-After"))
	resp := decode(t, rec)
	assert.Equal(t, "code_resend_too_soon", resp["error"])
	assert.InDelta(t, 40, resp["retry_after"], 0)

	env.clock.Advance(41 * time.Second)
	rec = env.do(t, env.h.ResendVerification, request{path: "/api/v1/auth/email/resend", body: body})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	env.mailer.mu.Lock()
	sent := len(env.mailer.codes)
	env.mailer.mu.Unlock()
	assert.Equal(t, 2, sent)
}

func TestResendVerification_AlreadyVerified(t *testing.T) {
	env := newEnv(t)
	p := testutil.NewTestPrincipal(t, env.repo, "bob@example.com")

	rec := env.do(t, env.h.ResendVerification, request{path: "/api/v1/auth/email/resend", login: env.signIn(t, p, true)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email address is already verified.", decode(t, rec)["message"])
}
