// Package api mounts the account management routes behind the request
// pipeline.
package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/account-gateway/internal/accounts"
	"github.com/tjfontaine/account-gateway/internal/auth"
	"github.com/tjfontaine/account-gateway/internal/csrf"
	"github.com/tjfontaine/account-gateway/internal/domain"
	"github.com/tjfontaine/account-gateway/internal/server"
	"github.com/tjfontaine/account-gateway/internal/storage"
)

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the route handlers.
type Server struct {
	accounts  *accounts.Service
	issuer    *csrf.Issuer
	health    Pinger
	startTime time.Time
}

// NewServer creates the route handlers. health may be nil.
func NewServer(svc *accounts.Service, issuer *csrf.Issuer, health Pinger) *Server {
	return &Server{
		accounts:  svc,
		issuer:    issuer,
		health:    health,
		startTime: time.Now(),
	}
}

// Chains are the pipelines routes are mounted behind.
type Chains struct {
	// Public runs the boundary and correlation steps only.
	Public *server.Chain
	// Protected adds CSRF validation and authentication.
	Protected *server.Chain
}

// Mount registers every route on r.
func (s *Server) Mount(r chi.Router, chains Chains) {
	r.Method(http.MethodGet, "/healthz", chains.Public.ThenHandler(s.handleHealth))
	r.Method(http.MethodGet, "/api/csrf", chains.Public.ThenHandler(s.issuer.Issue))
	r.Method(http.MethodPost, "/api/csrf/rotate", chains.Protected.ThenHandler(s.issuer.Reissue))

	r.Method(http.MethodGet, "/api/accounts", chains.Protected.Then(s.handleListAccounts))
	r.Method(http.MethodPost, "/api/accounts", chains.Protected.Then(s.handleCreateOrganization))
	r.Method(http.MethodGet, "/api/account", chains.Protected.Then(s.handleActiveAccount))
	r.Method(http.MethodPost, "/api/account/switch", chains.Protected.Then(s.handleSwitchAccount))
	r.Method(http.MethodGet, "/api/organizations/{orgId}/members", chains.Protected.Then(s.handleListMembers))
	r.Method(http.MethodPost, "/api/organizations/{orgId}/leave", chains.Protected.Then(s.handleLeaveOrganization))
	r.Method(http.MethodPost, "/api/feedback", chains.Protected.Then(s.handleFeedback))

	notFound := chains.Public.ThenHandler(func(w http.ResponseWriter, r *http.Request) error {
		return domain.ErrNotFound("no route for " + r.Method + " " + r.URL.Path)
	})
	r.NotFound(notFound.ServeHTTP)

	methodNotAllowed := chains.Public.ThenHandler(func(w http.ResponseWriter, r *http.Request) error {
		return domain.ErrNotFound("method " + r.Method + " not allowed on " + r.URL.Path).
			WithStatusCode(http.StatusMethodNotAllowed)
	})
	r.MethodNotAllowed(methodNotAllowed.ServeHTTP)
}

// =============================================================================
// Health
// =============================================================================

type HealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			return domain.ErrInternal("storage unavailable").WithCause(err).WithStatusCode(http.StatusServiceUnavailable)
		}
	}

	return server.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	})
}

// =============================================================================
// Accounts
// =============================================================================

type AccountsResponse struct {
	Accounts []storage.Account `json:"accounts"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request, ac auth.Context) error {
	list, err := s.accounts.ListAccounts(r.Context(), ac.UserID())
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, AccountsResponse{Accounts: list})
}

type CreateOrganizationRequest struct {
	Name *string `json:"name"`
}

func (req CreateOrganizationRequest) Validate() error {
	if req.Name == nil {
		return domain.ErrInvalidBody("name is required")
	}
	return nil
}

type OrganizationResponse struct {
	Organization storage.Account `json:"organization"`
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request, ac auth.Context) error {
	var req CreateOrganizationRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}

	org, err := s.accounts.CreateOrganization(r.Context(), ac.UserID(), *req.Name)
	if err != nil {
		return err
	}
	server.AddLogField(r.Context(), "account_id", org.ID)
	return server.WriteJSON(w, http.StatusOK, OrganizationResponse{Organization: org})
}

type AccountResponse struct {
	Account storage.Account `json:"account"`
}

func (s *Server) handleActiveAccount(w http.ResponseWriter, r *http.Request, ac auth.Context) error {
	account, err := s.accounts.ActiveAccount(r.Context(), ac.UserID())
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, AccountResponse{Account: account})
}

type SwitchAccountRequest struct {
	AccountID *string `json:"accountId"`
}

func (req SwitchAccountRequest) Validate() error {
	if req.AccountID == nil || *req.AccountID == "" {
		return domain.ErrInvalidBody("accountId is required")
	}
	return nil
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleSwitchAccount(w http.ResponseWriter, r *http.Request, ac auth.Context) error {
	var req SwitchAccountRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}

	server.AddLogField(r.Context(), "account_id", *req.AccountID)
	if err := s.accounts.SwitchAccount(r.Context(), ac.UserID(), *req.AccountID); err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// Organizations
// =============================================================================

type MembersResponse struct {
	Members []storage.Member `json:"members"`
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request, ac auth.Context) error {
	orgID := chi.URLParam(r, "orgId")
	server.AddLogField(r.Context(), "account_id", orgID)

	members, err := s.accounts.ListMembers(r.Context(), orgID, ac.UserID())
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, MembersResponse{Members: members})
}

func (s *Server) handleLeaveOrganization(w http.ResponseWriter, r *http.Request, ac auth.Context) error {
	orgID := chi.URLParam(r, "orgId")
	server.AddLogField(r.Context(), "account_id", orgID)

	if err := s.accounts.LeaveOrganization(r.Context(), orgID, ac.UserID()); err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// Feedback
// =============================================================================

type FeedbackRequest struct {
	Category      *string `json:"category"`
	Message       *string `json:"message"`
	ScreenshotURL *string `json:"screenshotUrl"`
}

func (req FeedbackRequest) Validate() error {
	if req.Category == nil {
		return domain.ErrInvalidBody("category is required")
	}
	if req.Message == nil {
		return domain.ErrInvalidBody("message is required")
	}
	return nil
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request, ac auth.Context) error {
	var req FeedbackRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}

	_, err := s.accounts.SubmitFeedback(r.Context(), ac.UserID(), accounts.FeedbackInput{
		Category:      *req.Category,
		Message:       *req.Message,
		ScreenshotURL: req.ScreenshotURL,
	})
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
