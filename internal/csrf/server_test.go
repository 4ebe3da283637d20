package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tjfontaine/account-gateway/internal/domain"
)

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken() error: %v", err)
	}
	b, _ := NewToken()

	if len(a) != 2*tokenBytes {
		t.Errorf("len = %d, want %d", len(a), 2*tokenBytes)
	}
	if a == b {
		t.Error("two tokens are equal")
	}
}

func TestMethodClassification(t *testing.T) {
	tests := []struct {
		method   string
		mutating bool
		safe     bool
	}{
		{http.MethodGet, false, true},
		{http.MethodHead, false, true},
		{http.MethodOptions, false, true},
		{http.MethodPost, true, false},
		{http.MethodPut, true, false},
		{http.MethodPatch, true, false},
		{http.MethodDelete, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := IsMutating(tt.method); got != tt.mutating {
				t.Errorf("IsMutating() = %v, want %v", got, tt.mutating)
			}
			if got := IsSafe(tt.method); got != tt.safe {
				t.Errorf("IsSafe() = %v, want %v", got, tt.safe)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Token(ctx, "s1"); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Token() error = %v, want ErrNoToken", err)
	}

	got, err := store.Issue(ctx, "s1", "first")
	if err != nil || got != "first" {
		t.Fatalf("Issue() = %q, %v", got, err)
	}

	got, _ = store.Issue(ctx, "s1", "second")
	if got != "first" {
		t.Errorf("second Issue() = %q, want first", got)
	}

	if err := store.Replace(ctx, "s1", "rotated"); err != nil {
		t.Fatalf("Replace() error: %v", err)
	}
	if got, _ := store.Token(ctx, "s1"); got != "rotated" {
		t.Errorf("Token() = %q, want rotated", got)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.Token(cancelled, "s1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Token() on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestMemoryStore_ConcurrentIssue(t *testing.T) {
	store := NewMemoryStore()
	results := make([]string, 20)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, _ := NewToken()
			results[i], _ = store.Issue(context.Background(), "shared", tok)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != results[0] {
			t.Fatalf("concurrent issuers observed different tokens: %q vs %q", r, results[0])
		}
	}
}

func issue(t *testing.T, issuer *Issuer, cookie *http.Cookie) (string, *http.Cookie) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/csrf", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()

	if err := issuer.Issue(rec, req); err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body IssueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == issuer.CookieName() {
			cookie = c
		}
	}
	return body.CSRFToken, cookie
}

func TestIssuer_Issue(t *testing.T) {
	issuer := NewIssuer(NewMemoryStore())

	token, cookie := issue(t, issuer, nil)
	if token == "" {
		t.Fatal("empty token")
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("no session cookie set")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie is not HttpOnly")
	}

	again, _ := issue(t, issuer, cookie)
	if again != token {
		t.Errorf("second issuance = %q, want cached %q", again, token)
	}

	other, _ := issue(t, issuer, nil)
	if other == token {
		t.Error("new session received the same token")
	}
}

func TestIssuer_Reissue(t *testing.T) {
	issuer := NewIssuer(NewMemoryStore(), WithCookieName("sid"))
	token, cookie := issue(t, issuer, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/csrf/rotate", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	if err := issuer.Reissue(rec, req); err != nil {
		t.Fatalf("Reissue() error: %v", err)
	}

	var body IssueResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.CSRFToken == "" || body.CSRFToken == token {
		t.Errorf("Reissue() token = %q, want fresh token", body.CSRFToken)
	}
}

func TestValidator_Validate(t *testing.T) {
	store := NewMemoryStore()
	store.Replace(context.Background(), "session-1", "good-token")
	validator := NewValidator(store, "")

	tests := []struct {
		name    string
		method  string
		session string
		token   string
		wantErr bool
	}{
		{name: "GET bypasses", method: http.MethodGet},
		{name: "HEAD bypasses", method: http.MethodHead},
		{name: "POST with valid token", method: http.MethodPost, session: "session-1", token: "good-token"},
		{name: "POST without token", method: http.MethodPost, session: "session-1", wantErr: true},
		{name: "PUT with wrong token", method: http.MethodPut, session: "session-1", token: "bad-token", wantErr: true},
		{name: "DELETE without session", method: http.MethodDelete, token: "good-token", wantErr: true},
		{name: "PATCH with unknown session", method: http.MethodPatch, session: "session-2", token: "good-token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/accounts", nil)
			if tt.session != "" {
				req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.session})
			}
			if tt.token != "" {
				req.Header.Set(Header, tt.token)
			}

			err := validator.Validate(req)
			if tt.wantErr {
				if !domain.IsKind(err, domain.KindCSRFInvalid) {
					t.Errorf("Validate() = %v, want csrf/invalid", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

type failingStore struct{ Store }

func (failingStore) Token(context.Context, string) (string, error) {
	return "", errors.New("database is locked")
}

func TestValidator_StoreFailureIsNotCSRF(t *testing.T) {
	validator := NewValidator(failingStore{}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "s"})
	req.Header.Set(Header, "t")

	err := validator.Validate(req)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	if domain.IsKind(err, domain.KindCSRFInvalid) {
		t.Errorf("store failure reported as csrf/invalid: %v", err)
	}
}
