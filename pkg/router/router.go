// Package router provides the public API for embedding the intent router.
// This is the stable API for external consumers.
package router

import (
	"github.com/tjfontaine/polyglot-intent-router/internal/registration"
	"github.com/tjfontaine/polyglot-intent-router/internal/runtime"
)

// App is the assembled router. See internal/runtime.App for full
// documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New creates a new App with the given options. Built-in provider types are
// registered on first use.
// Example:
//
//	app, err := router.New(
//	    router.WithFileConfig("config.yaml"),
//	    router.WithLogger(logger),
//	)
func New(opts ...Option) (*App, error) {
	registration.RegisterBuiltins()
	return runtime.New(opts...)
}

// Configuration options
var (
	// Config sources
	WithFileConfig = runtime.WithFileConfig
	WithConfig     = runtime.WithConfig

	// Backends that replace the configured ones
	WithSessionStore   = runtime.WithSessionStore
	WithAuditSink      = runtime.WithAuditSink
	WithRetrievalIndex = runtime.WithRetrievalIndex

	WithLogger = runtime.WithLogger
)
