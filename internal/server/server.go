package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"example.com/devserve/internal/config"
	"example.com/devserve/internal/logger"
	"example.com/devserve/internal/util"
)

// Server owns the listener and the net/http server that dispatches to the
// configured handler.
type Server struct {
	cfg        *config.Config
	log        *logger.Logger
	handler    http.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewServer wraps handler with the request logging, access logging and panic
// recovery middleware.
func NewServer(cfg *config.Config, lg *logger.Logger, handler http.Handler) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	s := &Server{
		cfg:     cfg,
		log:     lg,
		handler: handler,
	}
	s.httpServer = &http.Server{
		Handler: Chain(handler, lg),
	}
	return s, nil
}

// Listen binds the configured address. It is separate from Serve so callers
// can report readiness once the port is held.
func (s *Server) Listen() (net.Listener, error) {
	if s.cfg.Server == nil || s.cfg.Server.Address == nil {
		return nil, fmt.Errorf("server listen address (server.address) is not configured")
	}
	// CreateListener already names the network and address in its error.
	return util.CreateListener("tcp", *s.cfg.Server.Address)
}

// Start binds the configured address and serves until Close is called.
func (s *Server) Start() error {
	l, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l. It returns nil after Close.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	s.listener = l
	s.mu.Unlock()

	s.log.Info(fmt.Sprintf("Server running at %s", ReadyURL(l.Addr())), logger.LogFields{
		"address": l.Addr().String(),
	})

	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops accepting and drops open connections. In-flight requests are
// not waited for.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.httpServer.Close()
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ReadyURL is the browser URL for a bound address, always on localhost.
func ReadyURL(addr net.Addr) string {
	port := ""
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = fmt.Sprint(tcp.Port)
	} else if _, p, err := net.SplitHostPort(addr.String()); err == nil {
		port = p
	}
	return "http://localhost:" + port
}
