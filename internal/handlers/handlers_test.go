// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/appcontext"
	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"codeberg.org/oliverandrich/go-auth-service/internal/handlers"
	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/credential"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/grant"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/mfa"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/oauth"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/ratelimit"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/recovery"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/session"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/verification"
	"codeberg.org/oliverandrich/go-auth-service/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const clientIP = "192.0.2.10"

type fakeMailer struct {
	mu    sync.Mutex
	codes []string
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, _, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
	return nil
}

func (m *fakeMailer) last(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.codes, "no email sent")
	return m.codes[len(m.codes)-1]
}

type env struct {
	h        *handlers.Handlers
	echo     *echo.Echo
	repo     *repository.Repository
	clock    *testutil.FixedClock
	mailer   *fakeMailer
	mfa      *mfa.Service
	sessions *session.Store
	cookies  *session.Manager
}

// newEnv wires the handlers against an in-memory database. opts may add
// OAuth endpoint overrides.
func newEnv(t *testing.T, opts ...oauth.Option) *env {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock(time.Date(2025, 3, 1, 12, 0, 10, 0, time.UTC))

	creds := credential.NewService(10*time.Minute, credential.WithCost(bcrypt.MinCost), credential.WithClock(clock.Now))
	codes := verification.NewManager(repo, 24*time.Hour, time.Minute, verification.WithClock(clock.Now))
	mfaSvc := mfa.NewService(repo, creds, recovery.NewService(bcrypt.MinCost), "Test", mfa.WithClock(clock.Now))
	sessions := session.NewStore(repo, 24*time.Hour, session.WithClock(clock.Now))
	grants, err := grant.NewIssuer("", grant.DefaultTTL, grant.WithClock(clock.Now))
	require.NoError(t, err)
	cookies, err := session.NewManager(&config.SessionConfig{CookieName: "_session", MaxAge: 86400}, false)
	require.NoError(t, err)
	limiter := ratelimit.New(5, 15*time.Minute)
	t.Cleanup(limiter.Close)
	mailer := &fakeMailer{}

	authSvc := auth.NewService(auth.Deps{
		Repo:        repo,
		Credentials: creds,
		Codes:       codes,
		MFA:         mfaSvc,
		Sessions:    sessions,
		Grants:      grants,
		Mailer:      mailer,
	}, 24*time.Hour, auth.WithClock(clock.Now))

	oauthSvc := oauth.NewService(&config.OAuthConfig{
		Google: config.OAuthProvider{ClientID: "gid", ClientSecret: "gsecret"},
	}, "http://localhost:8080", opts...)

	h := handlers.New(handlers.Deps{
		Auth:    authSvc,
		MFA:     mfaSvc,
		Cookies: cookies,
		OAuth:   oauthSvc,
		Limiter: limiter,
	})

	return &env{
		h:        h,
		echo:     echo.New(),
		repo:     repo,
		clock:    clock,
		mailer:   mailer,
		mfa:      mfaSvc,
		sessions: sessions,
		cookies:  cookies,
	}
}

// login is a live session as the session middleware would load it.
type login struct {
	Principal *models.Principal
	Session   *models.Session
	Token     string
}

func (e *env) signIn(t *testing.T, p *models.Principal, mfaSatisfied bool) *login {
	t.Helper()
	token, sess, err := e.sessions.Create(context.Background(), p.ID, mfaSatisfied, models.RequestMeta{IP: clientIP})
	require.NoError(t, err)
	return &login{Principal: testutil.Reload(t, e.repo, p), Session: sess, Token: token}
}

type request struct {
	method  string
	path    string
	body    string
	login   *login
	params  map[string]string
	cookies []*http.Cookie
}

func (e *env) do(t *testing.T, handler echo.HandlerFunc, r request) *httptest.ResponseRecorder {
	t.Helper()
	if r.method == "" {
		r.method = http.MethodPost
	}
	req := httptest.NewRequest(r.method, r.path, strings.NewReader(r.body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRealIP, clientIP)
	for _, cookie := range r.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()

	c := e.echo.NewContext(req, rec)
	for name, value := range r.params {
		c.SetParamNames(append(c.ParamNames(), name)...)
		c.SetParamValues(append(c.ParamValues(), value)...)
	}

	cc := &appcontext.Context{Context: c}
	if r.login != nil {
		cookie, err := e.cookies.Cookie(r.login.Token)
		require.NoError(t, err)
		req.AddCookie(cookie)
		cc.Principal = r.login.Principal
		cc.Session = r.login.Session
		cc.Token = r.login.Token
	}

	require.NoError(t, handler(cc))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// sessionCookie returns the session cookie set on rec.
func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (e *env) tokenFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(t, rec))
	token := e.cookies.Token(req)
	require.NotEmpty(t, token)
	return token
}

func (e *env) enrollMFA(t *testing.T, p *models.Principal) (string, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := e.mfa.BeginSetup(ctx, p, nil, testutil.TestPassword)
	require.NoError(t, err)
	codes, err := e.mfa.ConfirmSetup(ctx, p, e.totpAt(t, setup.Secret, 0))
	require.NoError(t, err)
	return setup.Secret, codes
}

func (e *env) totpAt(t *testing.T, secret string, steps int) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, e.clock.Now().Add(time.Duration(steps)*30*time.Second), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestHealth(t *testing.T) {
	h := handlers.New(handlers.Deps{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Health(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCSRFToken(t *testing.T) {
	h := handlers.New(handlers.Deps{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("csrf", "token-123")

	require.NoError(t, h.CSRFToken(c))
	assert.JSONEq(t, `{"csrf_token":"token-123"}`, rec.Body.String())
}
