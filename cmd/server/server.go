package main

import (
	"context"
	"time"

	"github.com/JaimeStill/pallor/internal/config"
	"github.com/JaimeStill/pallor/internal/infrastructure"
)

// Server owns the process: infrastructure, mounted modules, and the listener.
type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	http    *httpServer
	failed  chan error
}

// NewServer builds the infrastructure and modules. Models load here, before
// the listener starts.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, err
	}

	router := buildRouter(infra)
	modules.Mount(router)

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
		"env", cfg.Env(),
		"models", cfg.Models.Backend,
		"storage", cfg.Storage.Backend,
	)

	return &Server{
		infra:   infra,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
		failed:  make(chan error, 1),
	}, nil
}

// Start registers subsystems with the lifecycle, starts listening, and waits
// for startup hooks in the background. A startup failure is delivered on Failed.
func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		if err := s.infra.Lifecycle.WaitForStartup(); err != nil {
			s.failed <- err
			return
		}
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

// Failed reports a startup hook failure.
func (s *Server) Failed() <-chan error {
	return s.failed
}

// Shutdown cancels the lifecycle and waits up to timeout for shutdown hooks.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
