// Package runtime provides the Gateway struct and lifecycle management for
// the account gateway.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tjfontaine/account-gateway/internal/accounts"
	"github.com/tjfontaine/account-gateway/internal/api"
	"github.com/tjfontaine/account-gateway/internal/auth"
	"github.com/tjfontaine/account-gateway/internal/config"
	"github.com/tjfontaine/account-gateway/internal/csrf"
	"github.com/tjfontaine/account-gateway/internal/server"
	"github.com/tjfontaine/account-gateway/internal/storage"
	"github.com/tjfontaine/account-gateway/internal/storage/memory"
	"github.com/tjfontaine/account-gateway/internal/storage/sqlite"
)

// Gateway wires configuration, storage, the request pipeline and the HTTP
// server. It can be embedded in larger applications or run standalone.
type Gateway struct {
	// Dependencies (injected via options)
	config   *config.Config
	store    storage.Store
	tokens   csrf.Store
	resolver auth.Resolver
	registry *prometheus.Registry
	logger   *slog.Logger

	server *server.Server
	mu     sync.Mutex
}

// New creates a Gateway. Storage is built from the configuration unless an
// option supplied one.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.config == nil {
		return nil, errors.New("config required (use WithConfig or WithFileConfig)")
	}

	if gw.store == nil {
		store, err := openStore(gw.config.Storage)
		if err != nil {
			return nil, err
		}
		gw.store = store
	}
	if gw.tokens == nil {
		if ts, ok := gw.store.(csrf.Store); ok {
			gw.tokens = ts
		} else {
			gw.tokens = csrf.NewMemoryStore()
		}
	}

	if gw.resolver == nil {
		resolver, err := resolverFromConfig(gw.config.Auth)
		if err != nil {
			gw.store.Close()
			return nil, err
		}
		gw.resolver = resolver
	}

	if gw.registry == nil {
		gw.registry = prometheus.NewRegistry()
		gw.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	gw.server = gw.buildServer()
	return gw, nil
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("create sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func resolverFromConfig(cfg config.AuthConfig) (auth.Resolver, error) {
	chain := &auth.Chain{}

	if cfg.JWTSecret != "" {
		var opts []auth.JWTOption
		if cfg.Issuer != "" {
			opts = append(opts, auth.WithIssuer(cfg.Issuer))
		}
		jwtResolver, err := auth.NewJWTResolver([]byte(cfg.JWTSecret), opts...)
		if err != nil {
			return nil, fmt.Errorf("create jwt resolver: %w", err)
		}
		chain.JWT = jwtResolver
	}

	if len(cfg.APIKeys) > 0 {
		keys := make([]auth.APIKey, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			exp, err := k.Expiry()
			if err != nil {
				return nil, fmt.Errorf("api key for %s: %w", k.UserID, err)
			}
			keys = append(keys, auth.APIKey{
				KeyHash:     k.KeyHash,
				UserID:      k.UserID,
				Description: k.Description,
				Claims:      k.Claims,
				ExpiresAt:   exp,
			})
		}
		chain.APIKey = auth.NewAPIKeyResolver(keys)
	}

	return chain, nil
}

// buildServer composes the pipelines and mounts every route.
func (g *Gateway) buildServer() *server.Server {
	metrics := server.NewMetrics(g.registry)
	srv := server.New(g.config.Server.Port, g.logger, metrics)

	issuer := csrf.NewIssuer(g.tokens,
		csrf.WithCookieName(g.config.CSRF.CookieName),
		csrf.WithSecureCookie(g.config.CSRF.SecureCookie))

	boundary := server.NewErrorBoundary(g.logger, server.WithMetrics(metrics))
	public := server.NewChain(boundary,
		server.Correlation(),
		server.Timeout(g.config.Server.RequestTimeout),
	)
	protected := public.Use(
		server.CSRF(csrf.NewValidator(g.tokens, issuer.CookieName())),
		server.Authenticate(g.resolver),
	)

	var health api.Pinger
	if p, ok := g.store.(api.Pinger); ok {
		health = p
	}

	srv.Router.Method(http.MethodGet, "/metrics", metrics.Handler())
	api.NewServer(accounts.NewService(g.store), issuer, health).
		Mount(srv.Router, api.Chains{Public: public, Protected: protected})

	return srv
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.server.Router
}

// Start binds the configured port and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	g.logger.Info("gateway started",
		slog.Int("port", g.config.Server.Port),
		slog.String("storage", g.config.Storage.Type))
	return nil
}

// Serve serves on ln in the background.
func (g *Gateway) Serve(ln net.Listener) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.server.Serve(ln)
}

// Shutdown gracefully stops the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		return err
	}

	if err := g.store.Close(); err != nil {
		g.logger.Error("failed to close storage", slog.String("error", err.Error()))
	}

	g.logger.Info("gateway shutdown complete")
	return nil
}
