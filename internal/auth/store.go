// Package auth keeps the backend access token between runs and performs
// login and logout against the backend.
package auth

import (
	"context"
	"errors"
	"sync"

	"otp-agent/internal/model"
)

var (
	ErrNoToken      = errors.New("no stored token")
	ErrCorruptToken = errors.New("stored token cannot be read")
)

// Store persists a single access token.
type Store interface {
	Load(ctx context.Context) (model.Token, error)
	Save(ctx context.Context, token model.Token) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the token for the life of the process only.
type MemoryStore struct {
	mu    sync.Mutex
	token *model.Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return model.Token{}, ErrNoToken
	}
	return *s.token, nil
}

func (s *MemoryStore) Save(_ context.Context, token model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = &token
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

// TokenSource reads the bearer token from a Store on every call so a
// login or logout takes effect immediately.
type TokenSource struct {
	store Store
}

func NewTokenSource(store Store) *TokenSource {
	return &TokenSource{store: store}
}

func (t *TokenSource) AccessToken(ctx context.Context) (string, error) {
	token, err := t.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", ErrNoToken
	}
	return token.AccessToken, nil
}
