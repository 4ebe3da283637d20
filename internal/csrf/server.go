package csrf

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tjfontaine/account-gateway/internal/domain"
)

// IssueResponse is the body returned by the issuance endpoint.
type IssueResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// Issuer serves the token issuance endpoint.
type Issuer struct {
	store        Store
	cookieName   string
	secureCookie bool
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) IssuerOption {
	return func(i *Issuer) {
		if name != "" {
			i.cookieName = name
		}
	}
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) IssuerOption {
	return func(i *Issuer) { i.secureCookie = secure }
}

// NewIssuer creates an Issuer backed by store.
func NewIssuer(store Store, opts ...IssuerOption) *Issuer {
	i := &Issuer{store: store, cookieName: DefaultCookieName}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CookieName returns the session cookie name.
func (i *Issuer) CookieName() string { return i.cookieName }

// Issue returns the session's token, issuing one on first use. A session
// cookie is created when the request has none.
func (i *Issuer) Issue(w http.ResponseWriter, r *http.Request) error {
	session := i.session(w, r)

	candidate, err := NewToken()
	if err != nil {
		return err
	}

	token, err := i.store.Issue(r.Context(), session, candidate)
	if err != nil {
		return fmt.Errorf("issue csrf token: %w", err)
	}

	return writeToken(w, token)
}

// Reissue replaces the session's token with a fresh one.
func (i *Issuer) Reissue(w http.ResponseWriter, r *http.Request) error {
	session := i.session(w, r)

	token, err := NewToken()
	if err != nil {
		return err
	}
	if err := i.store.Replace(r.Context(), session, token); err != nil {
		return fmt.Errorf("reissue csrf token: %w", err)
	}

	return writeToken(w, token)
}

func (i *Issuer) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(i.cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	session := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     i.cookieName,
		Value:    session,
		Path:     "/",
		HttpOnly: true,
		Secure:   i.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return session
}

func writeToken(w http.ResponseWriter, token string) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(IssueResponse{CSRFToken: token})
}

// Validator checks the token echoed on mutating requests.
type Validator struct {
	store      Store
	cookieName string
}

// NewValidator creates a Validator reading the session from cookieName.
func NewValidator(store Store, cookieName string) *Validator {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Validator{store: store, cookieName: cookieName}
}

// Validate returns a csrf/invalid error when a state-changing request does
// not carry the token issued to its session. Safe methods always pass.
func (v *Validator) Validate(r *http.Request) error {
	if IsSafe(r.Method) {
		return nil
	}

	sent := r.Header.Get(Header)
	if sent == "" {
		return domain.ErrCSRFInvalid("missing CSRF token")
	}

	c, err := r.Cookie(v.cookieName)
	if err != nil || c.Value == "" {
		return domain.ErrCSRFInvalid("missing CSRF session")
	}

	issued, err := v.store.Token(r.Context(), c.Value)
	if errors.Is(err, ErrNoToken) {
		return domain.ErrCSRFInvalid("no CSRF token issued for session")
	}
	if err != nil {
		return fmt.Errorf("load csrf token: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(sent), []byte(issued)) != 1 {
		return domain.ErrCSRFInvalid("CSRF token mismatch")
	}
	return nil
}
