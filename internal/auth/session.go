// Package auth holds the client-side session: the bearer token, the
// corporate domain allow-list, and the login exchange.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/barrister-ai/barrister/internal/api"
)

// ErrDomainNotAllowed is returned by Login when the email's domain is not on
// the allow-list. The check runs before any network call.
var ErrDomainNotAllowed = errors.New("email domain not allowed")

// TokenStore persists the bearer token across sessions.
type TokenStore interface {
	StoreToken(token string) error
}

// TokenStoreFunc adapts a function to the TokenStore interface.
type TokenStoreFunc func(token string) error

func (f TokenStoreFunc) StoreToken(token string) error { return f(token) }

// LoginClient is the slice of the API client Login needs.
type LoginClient interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error)
	SetToken(token string)
}

// Session tracks authentication state for one client instance.
type Session struct {
	client         LoginClient
	store          TokenStore
	allowedDomains []string
	token          string
	email          string
}

// NewSession creates a session. allowedDomains empty means any domain may
// log in. store may be nil when persistence is not wanted.
func NewSession(client LoginClient, store TokenStore, allowedDomains []string) *Session {
	s := &Session{
		client: client,
		store:  store,
	}
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			s.allowedDomains = append(s.allowedDomains, d)
		}
	}
	return s
}

// Restore installs a previously persisted token without a login round-trip.
func (s *Session) Restore(token string) {
	if token == "" {
		return
	}
	s.token = token
	s.client.SetToken(token)
}

// IsAuthenticated reports whether a token is installed. It does not verify
// the token against the server; a stale token surfaces as
// AUTH_INVALID_TOKEN on the next request.
func (s *Session) IsAuthenticated() bool {
	return s.token != ""
}

// Email returns the address used for the current login, if known.
func (s *Session) Email() string {
	return s.email
}

// IsDomainAllowed checks an email address against the allow-list.
// Matching is case-insensitive on the domain part.
func (s *Session) IsDomainAllowed(email string) bool {
	if len(s.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range s.allowedDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// Login validates the email domain locally, exchanges the email for a token,
// installs it on the client, and persists it when a store is configured.
func (s *Session) Login(ctx context.Context, email string) error {
	if !s.IsDomainAllowed(email) {
		return fmt.Errorf("%w: %s", ErrDomainNotAllowed, email)
	}

	resp, err := s.client.Login(ctx, api.LoginRequest{Email: email})
	if err != nil {
		return err
	}

	s.token = resp.Token
	s.email = resp.Email
	if s.email == "" {
		s.email = email
	}
	s.client.SetToken(resp.Token)

	if s.store != nil {
		if err := s.store.StoreToken(resp.Token); err != nil {
			return fmt.Errorf("login succeeded but token was not persisted: %w", err)
		}
	}
	return nil
}
