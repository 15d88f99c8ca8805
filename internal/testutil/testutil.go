// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/database"
	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the plaintext password of principals created by NewTestPrincipal.
const TestPassword = "Passw0rd!"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestPrincipal creates an active, email-verified local principal with
// TestPassword as password.
func NewTestPrincipal(t *testing.T, repo *repository.Repository, email string) *models.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	hashStr := string(hash)
	verified := time.Now().UTC()
	p := &models.Principal{
		Name:            "Test User",
		Email:           email,
		PasswordHash:    &hashStr,
		Status:          models.StatusActive,
		EmailVerifiedAt: &verified,
	}
	require.NoError(t, repo.CreatePrincipal(context.Background(), p))
	return p
}

// NewPendingPrincipal creates an unverified local principal.
func NewPendingPrincipal(t *testing.T, repo *repository.Repository, email string) *models.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	hashStr := string(hash)
	until := time.Now().UTC().Add(24 * time.Hour)
	p := &models.Principal{
		Name:         "Pending User",
		Email:        email,
		PasswordHash: &hashStr,
		Status:       models.StatusPending,
		PendingUntil: &until,
	}
	require.NoError(t, repo.CreatePrincipal(context.Background(), p))
	return p
}

// NewSocialPrincipal creates an active principal originating from provider.
func NewSocialPrincipal(t *testing.T, repo *repository.Repository, email, provider, providerID string) *models.Principal {
	t.Helper()
	verified := time.Now().UTC()
	p := &models.Principal{
		Name:             "Social User",
		Email:            email,
		OriginProvider:   &provider,
		OriginProviderID: &providerID,
		Status:           models.StatusActive,
		EmailVerifiedAt:  &verified,
	}
	ctx := context.Background()
	require.NoError(t, repo.CreatePrincipal(ctx, p))
	require.NoError(t, repo.CreateIdentity(ctx, p.ID, provider, providerID))
	return p
}

// Reload fetches the current row of p.
func Reload(t *testing.T, repo *repository.Repository, p *models.Principal) *models.Principal {
	t.Helper()
	fresh, err := repo.GetPrincipalByID(context.Background(), p.ID)
	require.NoError(t, err)
	return fresh
}

// CountSessions returns the number of live session rows of a principal.
func CountSessions(t *testing.T, repo *repository.Repository, principalID int64) int {
	t.Helper()
	var n int
	require.NoError(t, repo.DB().GetContext(context.Background(), &n,
		`SELECT COUNT(*) FROM sessions WHERE principal_id = ?`, principalID))
	return n
}

// FixedClock is a settable clock for services that accept a now function.
type FixedClock struct {
	T time.Time
}

// NewClock returns a clock frozen at t.
func NewClock(t time.Time) *FixedClock {
	return &FixedClock{T: t.UTC()}
}

func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
