package csrf

import (
	"context"
	"errors"
	"sync"
)

// ErrNoToken is returned when a session has no issued token.
var ErrNoToken = errors.New("csrf: no token issued for session")

// Store persists the token issued to each session.
type Store interface {
	// Token returns the token bound to session or ErrNoToken.
	Token(ctx context.Context, session string) (string, error)

	// Issue binds candidate to session unless a token is already bound, and
	// returns the token that is bound after the call.
	Issue(ctx context.Context, session, candidate string) (string, error)

	// Replace unconditionally binds token to session.
	Replace(ctx context.Context, session, token string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

// Token implements Store.
func (s *MemoryStore) Token(ctx context.Context, session string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[session]
	if !ok {
		return "", ErrNoToken
	}
	return token, nil
}

// Issue implements Store.
func (s *MemoryStore) Issue(ctx context.Context, session, candidate string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tokens[session]; ok {
		return existing, nil
	}
	s.tokens[session] = candidate
	return candidate, nil
}

// Replace implements Store.
func (s *MemoryStore) Replace(ctx context.Context, session, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[session] = token
	return nil
}
