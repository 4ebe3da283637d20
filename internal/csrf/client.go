package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateIdle State = iota
	StatePending
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Manager fetches and caches the token of one client session.
//
// Initialize performs at most one issuance fetch per session lifetime:
// callers arriving while a fetch is in flight wait for that same fetch, and
// once a fetch has completed further calls are no-ops until Reset. A failed
// fetch is logged and swallowed; the manager then attaches no token and the
// server rejects mutating requests.
//
// The HTTP client must keep the session cookie set by the issuance endpoint
// (for example through a cookie jar).
type Manager struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	token  string
	gen    uint64
	flight *flight

	group singleflight.Group
}

// flight is one issuance fetch. Its context belongs to the manager, not to
// any caller, and is cancelled only once every waiting caller has given up.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient sets the client used for issuance.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.client = c }
}

// WithLogger sets the logger for swallowed issuance failures.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an idle Manager fetching tokens from endpoint.
func NewManager(endpoint string, opts ...ManagerOption) *Manager {
	m := &Manager{
		endpoint: endpoint,
		client:   http.DefaultClient,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize ensures a token has been requested for this session. It only
// returns an error when ctx ends before the in-flight fetch completes; the
// fetch itself keeps running for any other caller still waiting on it.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateSuccess, StateError:
		m.mu.Unlock()
		return nil
	case StatePending:
		if m.flight == nil || m.flight.ctx.Err() != nil {
			// Every earlier caller gave up; the abandoned fetch is disowned.
			m.startLocked(ctx)
		}
	case StateIdle:
		m.startLocked(ctx)
	}
	f := m.flight
	f.waiters++
	gen := m.gen

	// Joining happens under mu: a fetch records its outcome under mu before
	// it returns, so a caller that still sees StatePending here is guaranteed
	// to find the fetch in flight.
	ch := m.group.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return nil, m.fetch(f, gen)
	})
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		m.leave(f)
		return ctx.Err()
	}
}

func (m *Manager) startLocked(ctx context.Context) {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.state = StatePending
	m.gen++
	m.flight = &flight{ctx: fctx, cancel: cancel}
}

// leave drops one waiter and cancels the fetch when none remain.
func (m *Manager) leave(f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.waiters--
	if f.waiters == 0 {
		f.cancel()
	}
}

// CurrentToken returns the cached token or "" without triggering issuance.
func (m *Manager) CurrentToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset discards the cached token so the next Initialize issues a new one.
// A fetch still in flight is disowned and its result ignored.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.token = ""
	m.gen++
	if m.flight != nil {
		m.flight.cancel()
		m.flight = nil
	}
}

// Attach sets the token header on req when its method is mutating and a
// token is cached. A missing token is not an error here.
func (m *Manager) Attach(req *http.Request) {
	if !IsMutating(req.Method) {
		return
	}
	if token := m.CurrentToken(); token != "" {
		req.Header.Set(Header, token)
	}
}

func (m *Manager) fetch(f *flight, gen uint64) error {
	token, err := m.issue(f.ctx)
	abandoned := f.ctx.Err() != nil
	f.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return err
	}
	m.flight = nil

	switch {
	case err == nil:
		m.token = token
		m.state = StateSuccess
	case abandoned:
		// Abandoned rather than failed: allow a later retry.
		m.state = StateIdle
	default:
		m.token = ""
		m.state = StateError
		m.logger.Warn("csrf token issuance failed",
			slog.String("endpoint", m.endpoint),
			slog.String("error", err.Error()))
	}
	return err
}

func (m *Manager) issue(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build csrf request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("fetch csrf token: unexpected status %d", resp.StatusCode)
	}

	var body IssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode csrf token: %w", err)
	}
	if body.CSRFToken == "" {
		return "", errors.New("csrf token missing from response")
	}
	return body.CSRFToken, nil
}

// Transport attaches the Manager's token to outgoing mutating requests.
type Transport struct {
	Manager *Manager
	// Base is the underlying RoundTripper; http.DefaultTransport if nil.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if !IsMutating(req.Method) || t.Manager == nil || t.Manager.CurrentToken() == "" {
		return base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	t.Manager.Attach(out)
	return base.RoundTrip(out)
}
