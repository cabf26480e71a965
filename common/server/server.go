package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/healthchain/marketplace/common/logger"
)

// Server wraps http.Server so it can run as one actor of a run group
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	name       string
}

// Option adjusts the underlying http.Server
type Option func(*http.Server)

// WithTimeouts overrides read and write timeouts. Uploads stream up to the
// body limit and then wait for ledger finality, so the API server needs
// more than the defaults.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *http.Server) {
		s.ReadTimeout = read
		s.WriteTimeout = write
	}
}

// New creates a new server
func New(name string, addr string, handler http.Handler, log *logger.Logger, opts ...Option) *Server {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, opt := range opts {
		opt(httpServer)
	}
	return &Server{
		httpServer: httpServer,
		log:        log,
		name:       name,
	}
}

// Run blocks serving requests until Shutdown is called
func (s *Server) Run() error {
	s.log.Info(fmt.Sprintf("%s starting", s.name), "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("%s: %w", s.name, err)
}

// Shutdown drains in-flight requests for up to timeout, then closes
func (s *Server) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("graceful shutdown failed", "server", s.name, "error", err)
		if err := s.httpServer.Close(); err != nil {
			s.log.Error("could not stop server", "server", s.name, "error", err)
		}
		return
	}
	s.log.Info(fmt.Sprintf("%s stopped", s.name))
}
