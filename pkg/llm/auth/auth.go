// Package auth implements the AuthProvider polymorphism point (spec §4.2):
// static API key, refreshing bearer token, and OS-keyring-backed variants.
package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/forgekit/forge-agent/pkg/agenterrors"
)

// APIKey is the simplest AuthProvider: a static key sent verbatim, with no
// refresh support.
type APIKey struct {
	Header string // e.g. "x-api-key" or "Authorization"
	Prefix string // e.g. "Bearer " for Authorization; empty for x-api-key
	Key    string
}

func (a APIKey) Authenticate(_ context.Context, headers map[string]string) error {
	if a.Key == "" {
		return agenterrors.NewAuthError("no API key configured", nil)
	}
	headers[a.Header] = a.Prefix + a.Key
	return nil
}

// Refresh always fails: a static key cannot be refreshed.
func (a APIKey) Refresh(context.Context) error {
	return agenterrors.NewAuthError("API key auth does not support refresh", nil)
}

// RefreshFunc obtains a new bearer token and returns the raw token;
// Authenticate adds the "Bearer " prefix.
type RefreshFunc func(ctx context.Context) (string, error)

// BearerToken is an AuthProvider whose token can be refreshed on a 401,
// e.g. an OAuth access token exchanged via a refresh token.
type BearerToken struct {
	mu      sync.RWMutex
	token   string
	refresh RefreshFunc
}

// NewBearerToken creates a BearerToken seeded with an initial value.
func NewBearerToken(initial string, refresh RefreshFunc) *BearerToken {
	return &BearerToken{token: initial, refresh: refresh}
}

func (b *BearerToken) Authenticate(_ context.Context, headers map[string]string) error {
	b.mu.RLock()
	tok := b.token
	b.mu.RUnlock()
	if tok == "" {
		return agenterrors.NewAuthError("no bearer token available", nil)
	}
	headers["Authorization"] = "Bearer " + tok
	return nil
}

func (b *BearerToken) Refresh(ctx context.Context) error {
	if b.refresh == nil {
		return agenterrors.NewAuthError("bearer token has no refresh function", nil)
	}
	tok, err := b.refresh(ctx)
	if err != nil {
		return agenterrors.NewAuthError("refreshing bearer token", err)
	}
	b.mu.Lock()
	b.token = tok
	b.mu.Unlock()
	return nil
}

// keyringService namespaces the OS-keyring entry; the account within it is
// Keyring.Account.
const keyringService = "forge-agent"

// Keyring is an AuthProvider backed by the OS credential store (macOS
// Keychain, Secret Service on Linux, Windows Credential Manager), so the
// API key never touches a config file or environment variable.
type Keyring struct {
	Account string // keyring entry name, typically the provider name
	Header  string
	Prefix  string
}

func (k Keyring) Authenticate(_ context.Context, headers map[string]string) error {
	secret, err := keyring.Get(keyringService, k.Account)
	if err != nil {
		return agenterrors.NewAuthError(fmt.Sprintf("reading %q from OS keyring", k.Account), err)
	}
	headers[k.Header] = k.Prefix + secret
	return nil
}

// Refresh is a no-op: keyring-stored secrets are refreshed out of band (by
// whatever wrote them), not by this process.
func (k Keyring) Refresh(context.Context) error { return nil }

// Store writes secret into the OS keyring under account.
func Store(account, secret string) error {
	return keyring.Set(keyringService, account, secret)
}

// Mock is a test-only AuthProvider that always succeeds with a fixed header
// value and counts Refresh calls.
type Mock struct {
	Header      string
	Value       string
	RefreshCalls int
}

func (m *Mock) Authenticate(_ context.Context, headers map[string]string) error {
	headers[m.Header] = m.Value
	return nil
}

func (m *Mock) Refresh(context.Context) error {
	m.RefreshCalls++
	return nil
}
