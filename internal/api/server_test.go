package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/account-gateway/internal/accounts"
	"github.com/tjfontaine/account-gateway/internal/auth"
	"github.com/tjfontaine/account-gateway/internal/codec"
	"github.com/tjfontaine/account-gateway/internal/correlation"
	"github.com/tjfontaine/account-gateway/internal/csrf"
	"github.com/tjfontaine/account-gateway/internal/domain"
	"github.com/tjfontaine/account-gateway/internal/server"
	"github.com/tjfontaine/account-gateway/internal/storage/memory"
)

var testKeys = map[string]string{
	"alice-key": "alice",
	"bob-key":   "bob",
}

type testEnv struct {
	handler http.Handler
	store   *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var keys []auth.APIKey
	for key, user := range testKeys {
		keys = append(keys, auth.APIKey{KeyHash: auth.HashAPIKey(key), UserID: user})
	}

	tokens := csrf.NewMemoryStore()
	issuer := csrf.NewIssuer(tokens)
	store := memory.New()

	public := server.NewChain(server.NewErrorBoundary(logger), server.Correlation(), server.Timeout(5*time.Second))
	protected := public.Use(
		server.CSRF(csrf.NewValidator(tokens, issuer.CookieName())),
		server.Authenticate(auth.NewAPIKeyResolver(keys)),
	)

	srv := server.New(0, logger, nil)
	NewServer(accounts.NewService(store), issuer, nil).Mount(srv.Router, Chains{Public: public, Protected: protected})

	return &testEnv{handler: srv.Router, store: store}
}

// session fetches a csrf token and returns a function that decorates requests
// with the session cookie, token and bearer key.
func (e *testEnv) session(t *testing.T, apiKey string) func(*http.Request) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/csrf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/csrf status = %d", rec.Code)
	}

	var body csrf.IssueResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	cookies := rec.Result().Cookies()

	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
		r.Header.Set(csrf.Header, body.CSRFToken)
		if apiKey != "" {
			r.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}
}

func (e *testEnv) do(method, path, body string, decorate func(*http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env codec.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	if env.Error.CorrelationID != rec.Header().Get(correlation.Header) {
		t.Errorf("body correlationId %q != header %q", env.Error.CorrelationID, rec.Header().Get(correlation.Header))
	}
	return env.Error.Kind
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if rec.Header().Get(correlation.Header) == "" {
		t.Error("no correlation id on public route")
	}
}

func TestCreateAndListAccounts(t *testing.T) {
	env := newTestEnv(t)
	alice := env.session(t, "alice-key")

	rec := env.do(http.MethodPost, "/api/accounts", `{"name":"Acme"}`, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/accounts status = %d; body: %s", rec.Code, rec.Body.String())
	}
	var created OrganizationResponse
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Organization.Name != "Acme" || created.Organization.ID == "" {
		t.Fatalf("organization = %+v", created.Organization)
	}

	rec = env.do(http.MethodGet, "/api/accounts", "", alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/accounts status = %d", rec.Code)
	}
	var list AccountsResponse
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Accounts) != 2 {
		t.Errorf("len(accounts) = %d, want 2 (personal + Acme)", len(list.Accounts))
	}
}

func TestMutationWithoutCSRF(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/accounts", `{"name":"Acme"}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer alice-key")
		r.Header.Set(correlation.Header, "abc-123")
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if kind := errorKind(t, rec); kind != string(domain.KindCSRFInvalid) {
		t.Errorf("kind = %q, want csrf/invalid", kind)
	}
	if got := rec.Header().Get(correlation.Header); got != "abc-123" {
		t.Errorf("correlation header = %q, want abc-123", got)
	}
	if accounts, _ := env.store.ListAccountsForUser(context.Background(), "alice"); len(accounts) != 0 {
		t.Error("rejected request reached the service")
	}
}

func TestMissingCredential(t *testing.T) {
	env := newTestEnv(t)
	anon := env.session(t, "")

	rec := env.do(http.MethodPost, "/api/accounts", `{"name":"Acme"}`, anon)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if kind := errorKind(t, rec); kind != string(domain.KindUnauthenticated) {
		t.Errorf("kind = %q, want auth/unauthenticated", kind)
	}
}

func TestInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	alice := env.session(t, "alice-key")

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed json", "/api/accounts", `{"name":`},
		{"missing name", "/api/accounts", `{}`},
		{"blank name", "/api/accounts", `{"name":"  "}`},
		{"missing account id", "/api/account/switch", `{}`},
		{"missing feedback message", "/api/feedback", `{"category":"bug"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.path, tt.body, alice)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body: %s", rec.Code, rec.Body.String())
			}
			if kind := errorKind(t, rec); kind != string(domain.KindInvalidBody) {
				t.Errorf("kind = %q, want validation/invalid_body", kind)
			}
		})
	}
}

func TestMembersForbiddenForNonMembers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.session(t, "alice-key")
	bob := env.session(t, "bob-key")

	rec := env.do(http.MethodPost, "/api/accounts", `{"name":"Acme"}`, alice)
	var created OrganizationResponse
	json.Unmarshal(rec.Body.Bytes(), &created)
	path := "/api/organizations/" + created.Organization.ID + "/members"

	rec = env.do(http.MethodGet, path, "", alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("member GET status = %d", rec.Code)
	}
	var members MembersResponse
	json.Unmarshal(rec.Body.Bytes(), &members)
	if len(members.Members) != 1 || members.Members[0].UserID != "alice" {
		t.Errorf("members = %+v", members.Members)
	}

	rec = env.do(http.MethodGet, path, "", bob)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member GET status = %d, want 403", rec.Code)
	}
	if kind := errorKind(t, rec); kind != string(domain.KindForbidden) {
		t.Errorf("kind = %q, want auth/forbidden", kind)
	}
}

func TestSwitchAccount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.session(t, "alice-key")

	rec := env.do(http.MethodPost, "/api/accounts", `{"name":"Acme"}`, alice)
	var created OrganizationResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = env.do(http.MethodPost, "/api/account/switch", `{"accountId":"`+created.Organization.ID+`"}`, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("switch status = %d; body: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/api/account", "", alice)
	var active AccountResponse
	json.Unmarshal(rec.Body.Bytes(), &active)
	if active.Account.ID != created.Organization.ID {
		t.Errorf("active account = %s, want %s", active.Account.ID, created.Organization.ID)
	}

	rec = env.do(http.MethodPost, "/api/account/switch", `{"accountId":"missing"}`, alice)
	if rec.Code != http.StatusNotFound {
		t.Errorf("switch to unknown account status = %d, want 404", rec.Code)
	}
}

func TestFeedback(t *testing.T) {
	env := newTestEnv(t)
	alice := env.session(t, "alice-key")

	rec := env.do(http.MethodPost, "/api/feedback", `{"category":"bug","message":"broken","screenshotUrl":null}`, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	if fb := env.store.Feedback(); len(fb) != 1 || fb[0].UserID != "alice" {
		t.Errorf("stored feedback = %+v", fb)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/nope", "", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if kind := errorKind(t, rec); kind != string(domain.KindNotFound) {
		t.Errorf("kind = %q, want resource/not_found", kind)
	}
}

func TestWrongMethod(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodDelete, "/api/accounts", "", func(r *http.Request) {
		r.Header.Set(correlation.Header, "abc-123")
	})

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if got := rec.Header().Get(correlation.Header); got != "abc-123" {
		t.Errorf("correlation header = %q, want abc-123", got)
	}
	if kind := errorKind(t, rec); kind != string(domain.KindNotFound) {
		t.Errorf("kind = %q, want resource/not_found", kind)
	}
}
