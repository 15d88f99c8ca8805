// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"github.com/google/uuid"
)

// ErrNoSession is returned for unknown, expired or destroyed sessions.
var ErrNoSession = errors.New("no session")

// Store keeps the server-side session rows. Only the SHA-256 of a token
// reaches the database.
type Store struct {
	repo *repository.Repository
	now  func() time.Time
	ttl  time.Duration
}

type StoreOption func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(repo *repository.Repository, ttl time.Duration, opts ...StoreOption) *Store {
	s := &Store{repo: repo, now: time.Now, ttl: ttl}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithRepository returns a copy of s bound to repo, typically a transaction.
func (s *Store) WithRepository(repo *repository.Repository) *Store {
	cp := *s
	cp.repo = repo
	return &cp
}

// HashToken returns the storage key of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create starts a new session for principalID and returns its token.
func (s *Store) Create(ctx context.Context, principalID int64, mfaSatisfied bool, meta models.RequestMeta) (string, *models.Session, error) {
	token := uuid.NewString()
	now := s.now().UTC()
	sess := &models.Session{
		IDHash:       HashToken(token),
		PrincipalID:  principalID,
		MFASatisfied: mfaSatisfied,
		CreatedAt:    now,
		LastSeenAt:   now,
		ExpiresAt:    now.Add(s.ttl),
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}
	return token, sess, nil
}

// Lookup resolves a token to its live session.
func (s *Store) Lookup(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	sess, err := s.repo.GetSession(ctx, HashToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	now := s.now()
	if sess.Expired(now) {
		_, _ = s.repo.DeleteSession(ctx, sess.IDHash)
		return nil, ErrNoSession
	}
	return sess, nil
}

// Touch records activity on a session.
func (s *Store) Touch(ctx context.Context, sess *models.Session) error {
	return s.repo.TouchSession(ctx, sess.IDHash, s.now())
}

// Destroy removes the session behind token. Unknown tokens are ignored.
func (s *Store) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.repo.DeleteSession(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// Regenerate replaces old with a new session of the same principal in one
// transaction and returns the new token. It fails with ErrNoSession when old
// was already destroyed or regenerated, so a session id is promoted at most
// once.
func (s *Store) Regenerate(ctx context.Context, old *models.Session, mfaSatisfied bool) (string, *models.Session, error) {
	var (
		token string
		fresh *models.Session
	)
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		deleted, err := tx.DeleteSession(ctx, old.IDHash)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNoSession
		}
		token, fresh, err = s.WithRepository(tx).Create(ctx, old.PrincipalID, mfaSatisfied,
			models.RequestMeta{IP: old.IPAddress, UserAgent: old.UserAgent})
		return err
	})
	if errors.Is(err, ErrNoSession) {
		return "", nil, ErrNoSession
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to regenerate session: %w", err)
	}
	return token, fresh, nil
}

// DestroyOthers ends every session of principalID except keep.
func (s *Store) DestroyOthers(ctx context.Context, principalID int64, keep *models.Session) error {
	hash := ""
	if keep != nil {
		hash = keep.IDHash
	}
	return s.repo.DeletePrincipalSessions(ctx, principalID, hash)
}

// Cleanup deletes expired session rows.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}
