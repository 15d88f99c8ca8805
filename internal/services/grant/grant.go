// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package grant issues short-lived signed tickets that let a freshly
// registered visitor verify or resend their email code without a session.
package grant

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TypeEmailVerification is the only ticket type issued today.
const TypeEmailVerification = "email-verification"

// DefaultTTL matches the verification code lifetime.
const DefaultTTL = 24 * time.Hour

var ErrInvalidGrant = errors.New("invalid verification grant")

// Claims is the JWT payload of a grant ticket.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type Issuer struct {
	now    func() time.Time
	secret []byte
	ttl    time.Duration
}

type Option func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer from a hex encoded secret of at least 32
// bytes. An empty secret generates a random one, which invalidates
// outstanding tickets on restart.
func NewIssuer(secretHex string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	var secret []byte
	if secretHex == "" {
		secret = randomSecret()
	} else {
		var err error
		secret, err = hex.DecodeString(secretHex)
		if err != nil {
			return nil, fmt.Errorf("invalid grant secret (must be hex): %w", err)
		}
		if len(secret) < 32 {
			return nil, errors.New("grant secret must be at least 32 bytes (64 hex chars)")
		}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	i := &Issuer{now: time.Now, secret: secret, ttl: ttl}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a ticket for principalID.
func (i *Issuer) Issue(principalID int64) (string, error) {
	now := i.now()
	claims := Claims{
		Type: TypeEmailVerification,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(principalID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign grant: %w", err)
	}
	return token, nil
}

// Verify checks signature, expiry and type and returns the principal id.
func (i *Issuer) Verify(token string) (int64, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}
	if claims.Type != TypeEmailVerification {
		return 0, ErrInvalidGrant
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidGrant
	}
	return id, nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return buf
}
