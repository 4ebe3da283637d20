// Package gateway provides the public API for embedding the account gateway
// and for talking to it from Go clients.
package gateway

import (
	"github.com/tjfontaine/account-gateway/internal/config"
	"github.com/tjfontaine/account-gateway/internal/correlation"
	"github.com/tjfontaine/account-gateway/internal/csrf"
	"github.com/tjfontaine/account-gateway/internal/runtime"
)

// Gateway runs the account gateway.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// Config is the gateway configuration.
type Config = config.Config

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithFileConfig("config.yaml"),
//	    gateway.WithSQLite("./data/accounts.db"),
//	)
var New = runtime.New

// LoadConfig reads a YAML config file with ACCT_ environment overrides.
var LoadConfig = config.Load

// Configuration options
var (
	// Config sources
	WithFileConfig = runtime.WithFileConfig
	WithConfig     = runtime.WithConfig

	// Storage
	WithSQLite      = runtime.WithSQLite
	WithMemoryStore = runtime.WithMemoryStore

	// Advanced options
	WithLogger     = runtime.WithLogger
	WithStore      = runtime.WithStore
	WithTokenStore = runtime.WithTokenStore
	WithResolver   = runtime.WithResolver
	WithRegistry   = runtime.WithRegistry
)

// Client-side helpers.
type (
	// CSRFManager fetches and caches the CSRF token of one client session.
	CSRFManager = csrf.Manager
	// CSRFTransport attaches a CSRFManager's token to mutating requests.
	CSRFTransport = csrf.Transport
	// CorrelationTransport propagates correlation ids to outgoing requests.
	CorrelationTransport = correlation.Transport
)

// Client-side constructors and context helpers.
var (
	NewCSRFManager    = csrf.NewManager
	WithHTTPClient    = csrf.WithHTTPClient
	WithManagerLogger = csrf.WithLogger
	WithCorrelationID = correlation.WithID
	CorrelationIDFrom = correlation.FromContext
)
