package session

import (
	"context"
	"strings"
	"sync"
)

// Persistence keys. File and SQLite stores use the same names.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Tokens is the persisted credential pair.
type Tokens struct {
	AccessToken  string `yaml:"accessToken"`
	RefreshToken string `yaml:"refreshToken"`
}

// IsZero reports whether neither token is set.
func (t Tokens) IsZero() bool { return t.AccessToken == "" && t.RefreshToken == "" }

func (t Tokens) trimmed() Tokens {
	return Tokens{
		AccessToken:  strings.TrimSpace(t.AccessToken),
		RefreshToken: strings.TrimSpace(t.RefreshToken),
	}
}

// TokenStore persists the token pair across process restarts.
//
// Implementations must replace both tokens in one step: a reader never
// observes a new access token next to a stale refresh token.
type TokenStore interface {
	// Load returns the stored pair. Missing tokens are empty strings, not errors.
	Load(ctx context.Context) (Tokens, error)

	// Save replaces the stored pair.
	Save(ctx context.Context, t Tokens) error

	// Clear removes both tokens.
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu sync.Mutex
	t  Tokens
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context) (Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t, nil
}

func (s *MemoryStore) Save(_ context.Context, t Tokens) error {
	s.mu.Lock()
	s.t = t.trimmed()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.t = Tokens{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
