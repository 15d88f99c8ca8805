// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package oauth runs the authorization-code flow against social login
// providers and fetches the resulting profile.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var (
	ErrUnknownProvider = errors.New("unknown or disabled provider")
	ErrMissingEmail    = errors.New("provider returned no email address")
)

// Profile is the subset of provider user data the service relies on.
type Profile struct {
	ID    string
	Email string
	Name  string
}

type provider struct {
	config      *oauth2.Config
	userInfoURL string
	decode      func(io.Reader) (*Profile, error)
}

type Service struct {
	providers map[string]*provider
}

type Option func(*Service)

// WithEndpoint points provider at other token and userinfo URLs.
func WithEndpoint(name string, endpoint oauth2.Endpoint, userInfoURL string) Option {
	return func(s *Service) {
		if p, ok := s.providers[name]; ok {
			p.config.Endpoint = endpoint
			p.userInfoURL = userInfoURL
		}
	}
}

// NewService registers every provider with client credentials. Callbacks
// go to {baseURL}/api/v1/auth/{provider}/callback.
func NewService(cfg *config.OAuthConfig, baseURL string, opts ...Option) *Service {
	s := &Service{providers: make(map[string]*provider)}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if cfg.Google.Enabled() {
		s.providers[models.ProviderGoogle] = &provider{
			config: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				RedirectURL:  callbackURL(baseURL, models.ProviderGoogle),
				Endpoint:     endpoints.Google,
				Scopes:       []string{"openid", "email", "profile"},
			},
			userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			decode:      decodeGoogle,
		}
	}
	if cfg.Facebook.Enabled() {
		s.providers[models.ProviderFacebook] = &provider{
			config: &oauth2.Config{
				ClientID:     cfg.Facebook.ClientID,
				ClientSecret: cfg.Facebook.ClientSecret,
				RedirectURL:  callbackURL(baseURL, models.ProviderFacebook),
				Endpoint:     endpoints.Facebook,
				Scopes:       []string{"email", "public_profile"},
			},
			userInfoURL: "https://graph.facebook.com/me?fields=id,name,email",
			decode:      decodeFacebook,
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func callbackURL(baseURL, name string) string {
	return fmt.Sprintf("%s/api/v1/auth/%s/callback", baseURL, name)
}

// Enabled reports whether name is a configured provider.
func (s *Service) Enabled(name string) bool {
	_, ok := s.providers[name]
	return ok
}

// NewState returns a fresh anti-forgery state value.
func NewState() string {
	return uuid.NewString()
}

// AuthCodeURL returns the consent page URL of provider name.
func (s *Service) AuthCodeURL(name, state string) (string, error) {
	p, ok := s.providers[name]
	if !ok {
		return "", ErrUnknownProvider
	}
	return p.config.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for a token and loads the profile.
func (s *Service) Exchange(ctx context.Context, name, code string) (*Profile, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch profile: status %d", resp.StatusCode)
	}

	profile, err := p.decode(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if profile.ID == "" {
		return nil, errors.New("provider returned no user id")
	}
	if profile.Email == "" {
		return nil, ErrMissingEmail
	}
	return profile, nil
}

func decodeGoogle(r io.Reader) (*Profile, error) {
	var u struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, err
	}
	// Google accounts may carry addresses nobody proved ownership of.
	if !u.EmailVerified {
		u.Email = ""
	}
	return &Profile{ID: u.Sub, Email: u.Email, Name: u.Name}, nil
}

func decodeFacebook(r io.Reader) (*Profile, error) {
	var u struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, err
	}
	return &Profile{ID: u.ID, Email: u.Email, Name: u.Name}, nil
}
