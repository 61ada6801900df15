package server

import (
	"fmt"
	"net/http"
	"sync"

	"example.com/devserve/internal/config"
	"example.com/devserve/internal/logger"
)

// HandlerFactory builds a handler from the loaded configuration. Factories
// run once at startup, never per request.
type HandlerFactory func(cfg *config.Config, lg *logger.Logger) (http.Handler, error)

// HandlerRegistry maps handler_type strings from the configuration to
// factories. It is safe for concurrent use.
type HandlerRegistry struct {
	mu        sync.RWMutex
	factories map[string]HandlerFactory
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		factories: make(map[string]HandlerFactory),
	}
}

// Register associates handlerType with factory. Registering the same type
// twice is an error.
func (r *HandlerRegistry) Register(handlerType string, factory HandlerFactory) error {
	if factory == nil {
		return fmt.Errorf("factory for handler type '%s' cannot be nil", handlerType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[handlerType]; exists {
		return fmt.Errorf("handler type '%s' already registered", handlerType)
	}
	r.factories[handlerType] = factory
	return nil
}

// GetFactory returns the factory registered for handlerType.
func (r *HandlerRegistry) GetFactory(handlerType string) (HandlerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[handlerType]
	return factory, ok
}

// CreateHandler instantiates the handler registered for handlerType.
func (r *HandlerRegistry) CreateHandler(handlerType string, cfg *config.Config, lg *logger.Logger) (http.Handler, error) {
	factory, ok := r.GetFactory(handlerType)
	if !ok {
		return nil, fmt.Errorf("no handler factory registered for type '%s'", handlerType)
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil when creating handler type '%s'", handlerType)
	}
	h, err := factory(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("creating handler type '%s': %w", handlerType, err)
	}
	return h, nil
}

// ClearFactories removes every registration. Used by tests.
func (r *HandlerRegistry) ClearFactories() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]HandlerFactory)
}
