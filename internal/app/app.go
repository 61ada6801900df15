// Package app wires configuration, handlers, routing and the HTTP server.
package app

import (
	"fmt"

	"example.com/devserve/internal/config"
	"example.com/devserve/internal/handlers/staticfile"
	"example.com/devserve/internal/logger"
	"example.com/devserve/internal/router"
	"example.com/devserve/internal/server"
)

// NewRegistry returns a registry with every built-in handler type.
func NewRegistry() (*server.HandlerRegistry, error) {
	registry := server.NewHandlerRegistry()
	if err := registry.Register(config.HandlerTypeStaticFileServer, staticfile.Factory); err != nil {
		return nil, err
	}
	return registry, nil
}

// NewServer builds a ready-to-start server for cfg.
func NewServer(cfg *config.Config, lg *logger.Logger) (*server.Server, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("registering handlers: %w", err)
	}
	r, err := router.NewRouter(cfg, registry, lg)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}
	return server.NewServer(cfg, lg, r)
}
