package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/account-gateway/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]storage.Account
	members  map[string]map[string]storage.Member // account id -> user id
	active   map[string]string
	feedback []storage.Feedback
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		accounts: make(map[string]storage.Account),
		members:  make(map[string]map[string]storage.Member),
		active:   make(map[string]string),
	}
}

func (s *Store) CreateAccount(ctx context.Context, account storage.Account, owner storage.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("account %s: %w", account.ID, storage.ErrConflict)
	}

	owner.AccountID = account.ID
	s.accounts[account.ID] = account
	s.members[account.ID] = map[string]storage.Member{owner.UserID: owner}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[id]
	if !exists {
		return storage.Account{}, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	return account, nil
}

func (s *Store) ListAccountsForUser(ctx context.Context, userID string) ([]storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []storage.Account
	for id, members := range s.members {
		if _, ok := members[userID]; ok {
			result = append(result, s.accounts[id])
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) GetMember(ctx context.Context, accountID, userID string) (storage.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[accountID][userID]
	if !ok {
		return storage.Member{}, fmt.Errorf("member %s of %s: %w", userID, accountID, storage.ErrNotFound)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, accountID string) ([]storage.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.Member, 0, len(s.members[accountID]))
	for _, m := range s.members[accountID] {
		result = append(result, m)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].JoinedAt.Equal(result[j].JoinedAt) {
			return result[i].JoinedAt.Before(result[j].JoinedAt)
		}
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

func (s *Store) AddMember(ctx context.Context, m storage.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.members[m.AccountID]
	if !ok {
		return fmt.Errorf("account %s: %w", m.AccountID, storage.ErrNotFound)
	}
	if _, exists := members[m.UserID]; exists {
		return fmt.Errorf("member %s of %s: %w", m.UserID, m.AccountID, storage.ErrConflict)
	}
	members[m.UserID] = m
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, accountID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[accountID][userID]; !ok {
		return fmt.Errorf("member %s of %s: %w", userID, accountID, storage.ErrNotFound)
	}
	delete(s.members[accountID], userID)
	if s.active[userID] == accountID {
		delete(s.active, userID)
	}
	return nil
}

func (s *Store) SetActiveAccount(ctx context.Context, userID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[userID] = accountID
	return nil
}

func (s *Store) ActiveAccount(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[userID]
	if !ok {
		return "", fmt.Errorf("active account of %s: %w", userID, storage.ErrNotFound)
	}
	return id, nil
}

func (s *Store) InsertFeedback(ctx context.Context, fb storage.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedback = append(s.feedback, fb)
	return nil
}

// Feedback returns a copy of all stored feedback.
func (s *Store) Feedback() []storage.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Feedback, len(s.feedback))
	copy(out, s.feedback)
	return out
}

func (s *Store) Close() error {
	return nil
}
