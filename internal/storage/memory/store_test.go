package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tjfontaine/account-gateway/internal/storage"
)

func seedOrg(t *testing.T, store *Store, id, owner string, at time.Time) {
	t.Helper()
	err := store.CreateAccount(context.Background(),
		storage.Account{ID: id, Name: id, Type: storage.AccountOrganization, CreatedAt: at},
		storage.Member{UserID: owner, Role: storage.RoleOwner, JoinedAt: at})
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", id, err)
	}
}

func TestMemoryStore_CreateAccount(t *testing.T) {
	store := New()
	now := time.Now()
	seedOrg(t, store, "org-1", "user-1", now)

	retrieved, err := store.GetAccount(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if retrieved.Type != storage.AccountOrganization {
		t.Errorf("Type = %v, want organization", retrieved.Type)
	}

	m, err := store.GetMember(context.Background(), "org-1", "user-1")
	if err != nil {
		t.Fatalf("GetMember() error = %v", err)
	}
	if m.Role != storage.RoleOwner || m.AccountID != "org-1" {
		t.Errorf("owner membership = %+v", m)
	}

	err = store.CreateAccount(context.Background(), storage.Account{ID: "org-1"}, storage.Member{UserID: "user-2"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate CreateAccount() error = %v, want ErrConflict", err)
	}
}

func TestMemoryStore_GetAccountNotFound(t *testing.T) {
	_, err := New().GetAccount(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListAccountsForUser(t *testing.T) {
	store := New()
	base := time.Now()
	seedOrg(t, store, "org-b", "user-1", base.Add(time.Second))
	seedOrg(t, store, "org-a", "user-1", base)
	seedOrg(t, store, "org-c", "user-2", base)

	accounts, err := store.ListAccountsForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListAccountsForUser() error = %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != "org-a" || accounts[1].ID != "org-b" {
		t.Errorf("accounts = %+v, want org-a, org-b", accounts)
	}
}

func TestMemoryStore_Members(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Now()
	seedOrg(t, store, "org-1", "owner", now)

	if err := store.AddMember(ctx, storage.Member{AccountID: "org-1", UserID: "member", Role: storage.RoleMember, JoinedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := store.AddMember(ctx, storage.Member{AccountID: "org-1", UserID: "member"}); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate AddMember() error = %v, want ErrConflict", err)
	}
	if err := store.AddMember(ctx, storage.Member{AccountID: "missing", UserID: "x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("AddMember() to missing account error = %v, want ErrNotFound", err)
	}

	members, _ := store.ListMembers(ctx, "org-1")
	if len(members) != 2 || members[0].UserID != "owner" {
		t.Fatalf("members = %+v", members)
	}

	store.SetActiveAccount(ctx, "member", "org-1")
	if err := store.RemoveMember(ctx, "org-1", "member"); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if _, err := store.ActiveAccount(ctx, "member"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("active account survived removal: %v", err)
	}
	if err := store.RemoveMember(ctx, "org-1", "member"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second RemoveMember() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Feedback(t *testing.T) {
	store := New()
	store.InsertFeedback(context.Background(), storage.Feedback{ID: "fb-1", UserID: "user-1", Category: "bug", Message: "broken"})

	if got := store.Feedback(); len(got) != 1 || got[0].Message != "broken" {
		t.Errorf("Feedback() = %+v", got)
	}
}
