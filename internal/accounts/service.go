// Package accounts implements the account, organization and feedback
// operations behind the API routes.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tjfontaine/account-gateway/internal/domain"
	"github.com/tjfontaine/account-gateway/internal/storage"
)

const (
	maxNameLength    = 100
	maxMessageLength = 5000
	personalName     = "Personal"
)

// Service applies membership rules on top of a storage.Store.
type Service struct {
	store storage.Store
	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how new record ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a Service backed by store.
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAccounts returns the caller's accounts, personal account first. The
// personal account is created on first use and shares the user's id.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]storage.Account, error) {
	if err := s.ensurePersonal(ctx, userID); err != nil {
		return nil, err
	}

	accounts, err := s.store.ListAccountsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	out := make([]storage.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Type == storage.AccountPersonal {
			out = append([]storage.Account{a}, out...)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateOrganization creates an organization owned by ownerID.
func (s *Service) CreateOrganization(ctx context.Context, ownerID, name string) (storage.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Account{}, domain.ErrInvalidBody("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return storage.Account{}, domain.ErrInvalidBody(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}

	now := s.now()
	org := storage.Account{
		ID:        s.newID(),
		Name:      name,
		Type:      storage.AccountOrganization,
		CreatedAt: now,
	}
	owner := storage.Member{AccountID: org.ID, UserID: ownerID, Role: storage.RoleOwner, JoinedAt: now}

	if err := s.store.CreateAccount(ctx, org, owner); err != nil {
		return storage.Account{}, fmt.Errorf("create organization: %w", err)
	}
	return org, nil
}

// SwitchAccount makes accountID the caller's active account.
func (s *Service) SwitchAccount(ctx context.Context, userID, accountID string) error {
	if accountID == userID {
		if err := s.ensurePersonal(ctx, userID); err != nil {
			return err
		}
	}
	if _, err := s.authorize(ctx, accountID, userID); err != nil {
		return err
	}
	if err := s.store.SetActiveAccount(ctx, userID, accountID); err != nil {
		return fmt.Errorf("switch account: %w", err)
	}
	return nil
}

// ActiveAccount returns the caller's active account, defaulting to the
// personal account.
func (s *Service) ActiveAccount(ctx context.Context, userID string) (storage.Account, error) {
	id, err := s.store.ActiveAccount(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := s.ensurePersonal(ctx, userID); err != nil {
			return storage.Account{}, err
		}
		id = userID
	} else if err != nil {
		return storage.Account{}, fmt.Errorf("active account: %w", err)
	}
	return s.getAccount(ctx, id)
}

// ListMembers returns the members of an organization the caller belongs to.
func (s *Service) ListMembers(ctx context.Context, orgID, userID string) ([]storage.Member, error) {
	if _, err := s.authorize(ctx, orgID, userID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// LeaveOrganization removes the caller from an organization. Personal
// accounts cannot be left, and the last owner cannot leave.
func (s *Service) LeaveOrganization(ctx context.Context, orgID, userID string) error {
	account, err := s.authorize(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if account.Type == storage.AccountPersonal {
		return domain.ErrForbidden("personal accounts cannot be left")
	}

	member, err := s.store.GetMember(ctx, orgID, userID)
	if err != nil {
		return fmt.Errorf("leave organization: %w", err)
	}
	if member.Role == storage.RoleOwner {
		members, err := s.store.ListMembers(ctx, orgID)
		if err != nil {
			return fmt.Errorf("leave organization: %w", err)
		}
		owners := 0
		for _, m := range members {
			if m.Role == storage.RoleOwner {
				owners++
			}
		}
		if owners <= 1 {
			return domain.ErrForbidden("the last owner cannot leave an organization")
		}
	}

	if err := s.store.RemoveMember(ctx, orgID, userID); err != nil {
		return fmt.Errorf("leave organization: %w", err)
	}
	return nil
}

// FeedbackInput is a feedback submission.
type FeedbackInput struct {
	Category      string
	Message       string
	ScreenshotURL *string
}

// SubmitFeedback stores feedback from userID.
func (s *Service) SubmitFeedback(ctx context.Context, userID string, in FeedbackInput) (storage.Feedback, error) {
	if strings.TrimSpace(in.Category) == "" {
		return storage.Feedback{}, domain.ErrInvalidBody("category is required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return storage.Feedback{}, domain.ErrInvalidBody("message is required")
	}
	if utf8.RuneCountInString(in.Message) > maxMessageLength {
		return storage.Feedback{}, domain.ErrInvalidBody(fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}

	fb := storage.Feedback{
		ID:            s.newID(),
		UserID:        userID,
		Category:      in.Category,
		Message:       in.Message,
		ScreenshotURL: in.ScreenshotURL,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertFeedback(ctx, fb); err != nil {
		return storage.Feedback{}, fmt.Errorf("submit feedback: %w", err)
	}
	return fb, nil
}

// authorize loads accountID and checks that userID is a member of it.
func (s *Service) authorize(ctx context.Context, accountID, userID string) (storage.Account, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return storage.Account{}, err
	}

	_, err = s.store.GetMember(ctx, accountID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Account{}, domain.ErrForbidden("not a member of this account")
	}
	if err != nil {
		return storage.Account{}, fmt.Errorf("check membership: %w", err)
	}
	return account, nil
}

func (s *Service) getAccount(ctx context.Context, id string) (storage.Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Account{}, domain.ErrNotFound("account not found").WithCause(err)
	}
	if err != nil {
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (s *Service) ensurePersonal(ctx context.Context, userID string) error {
	_, err := s.store.GetAccount(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load personal account: %w", err)
	}

	now := s.now()
	err = s.store.CreateAccount(ctx,
		storage.Account{ID: userID, Name: personalName, Type: storage.AccountPersonal, CreatedAt: now},
		storage.Member{AccountID: userID, UserID: userID, Role: storage.RoleOwner, JoinedAt: now})
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("create personal account: %w", err)
	}
	return nil
}
