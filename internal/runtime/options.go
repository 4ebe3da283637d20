package runtime

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjfontaine/account-gateway/internal/auth"
	"github.com/tjfontaine/account-gateway/internal/config"
	"github.com/tjfontaine/account-gateway/internal/csrf"
	"github.com/tjfontaine/account-gateway/internal/storage"
	"github.com/tjfontaine/account-gateway/internal/storage/memory"
	"github.com/tjfontaine/account-gateway/internal/storage/sqlite"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithFileConfig loads configuration from a YAML file plus ACCT_ environment
// overrides.
func WithFileConfig(path string) Option {
	return func(g *Gateway) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		g.config = cfg
		return nil
	}
}

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		g.config = cfg
		return nil
	}
}

// WithSQLite uses SQLite storage for accounts and CSRF tokens.
func WithSQLite(path string) Option {
	return func(g *Gateway) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		g.store = store
		return nil
	}
}

// WithMemoryStore keeps all state in process memory.
func WithMemoryStore() Option {
	return func(g *Gateway) error {
		g.store = memory.New()
		return nil
	}
}

// WithStore sets a custom store.
func WithStore(store storage.Store) Option {
	return func(g *Gateway) error {
		g.store = store
		return nil
	}
}

// WithTokenStore sets a custom CSRF token store.
func WithTokenStore(tokens csrf.Store) Option {
	return func(g *Gateway) error {
		g.tokens = tokens
		return nil
	}
}

// WithResolver replaces the configured credential resolver.
func WithResolver(resolver auth.Resolver) Option {
	return func(g *Gateway) error {
		g.resolver = resolver
		return nil
	}
}

// WithRegistry registers metrics with reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(g *Gateway) error {
		g.registry = reg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}
