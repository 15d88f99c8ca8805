// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"github.com/gorilla/securecookie"
)

// Manager signs the opaque session token into the session cookie.
type Manager struct {
	codec      *securecookie.SecureCookie
	cookieName string
	maxAge     int
	secure     bool
}

// NewManager creates a new session manager.
// HashKey must be a 32-byte hex string. BlockKey is optional (enables encryption).
// An empty HashKey generates a random key, which logs everybody out on restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		hashKey = securecookie.GenerateRandomKey(32)
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)

	return &Manager{
		codec:      codec,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     secure,
	}, nil
}

func decodeKey(value, name string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key (must be hex): %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session %s key must be 32 bytes (64 hex chars), got %d", name, len(key))
	}
	return key, nil
}

// MaxAge returns the session lifetime.
func (m *Manager) MaxAge() time.Duration {
	return time.Duration(m.maxAge) * time.Second
}

// Cookie returns the signed session cookie carrying token.
func (m *Manager) Cookie(token string) (*http.Cookie, error) {
	encoded, err := m.codec.Encode(m.cookieName, token)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session cookie: %w", err)
	}
	return m.cookie(encoded, m.maxAge), nil
}

// Token extracts the session token from the request. A missing, tampered
// or expired cookie yields "".
func (m *Manager) Token(r *http.Request) string {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	var token string
	if err := m.codec.Decode(m.cookieName, c.Value, &token); err != nil {
		return ""
	}
	return token
}

// Secure reports whether cookies carry the Secure flag.
func (m *Manager) Secure() bool {
	return m.secure
}

// Clear returns a cookie that removes the session cookie.
func (m *Manager) Clear() *http.Cookie {
	return m.cookie("", -1)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
