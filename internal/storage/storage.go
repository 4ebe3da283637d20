// Package storage defines the persistence contract for accounts,
// memberships, feedback and CSRF tokens. Implementations live in the memory
// and sqlite subpackages.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a record with the same key exists.
	ErrConflict = errors.New("storage: already exists")
)

// AccountType distinguishes a user's own account from shared ones.
type AccountType string

const (
	AccountPersonal     AccountType = "personal"
	AccountOrganization AccountType = "organization"
)

// Role is a member's role within an account.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Account is a personal or organization account.
type Account struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Member links a user to an account.
type Member struct {
	AccountID string    `json:"-"`
	UserID    string    `json:"id"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Feedback is a message submitted by a user.
type Feedback struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Category      string    `json:"category"`
	Message       string    `json:"message"`
	ScreenshotURL *string   `json:"screenshotUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AccountStore persists accounts and memberships.
type AccountStore interface {
	// CreateAccount inserts the account and its owner membership atomically.
	CreateAccount(ctx context.Context, account Account, owner Member) error
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccountsForUser(ctx context.Context, userID string) ([]Account, error)

	GetMember(ctx context.Context, accountID, userID string) (Member, error)
	ListMembers(ctx context.Context, accountID string) ([]Member, error)
	AddMember(ctx context.Context, m Member) error
	RemoveMember(ctx context.Context, accountID, userID string) error

	SetActiveAccount(ctx context.Context, userID, accountID string) error
	ActiveAccount(ctx context.Context, userID string) (string, error)
}

// FeedbackStore persists feedback.
type FeedbackStore interface {
	InsertFeedback(ctx context.Context, fb Feedback) error
}

// Store is the full persistence surface used by the gateway.
type Store interface {
	AccountStore
	FeedbackStore
	Close() error
}
