// Package api assembles the HTTP modules: the prediction API and the static
// module that serves published result images.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/pallor/internal/config"
	"github.com/JaimeStill/pallor/internal/infrastructure"
	"github.com/JaimeStill/pallor/pkg/middleware"
	"github.com/JaimeStill/pallor/pkg/module"
)

// ResultsPath is the public URL prefix of published result images.
const ResultsPath = "/static/results"

// NewModule creates the API module with all domain handlers and middleware.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime)

	spec, err := newSpecHandler(cfg)
	if err != nil {
		return nil, fmt.Errorf("build openapi spec: %w", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, spec)

	m, err := module.New(cfg.API.BasePath, mux)
	if err != nil {
		return nil, err
	}
	m.Use(
		middleware.Recover(runtime.Logger),
		middleware.Trace(runtime.Tracing.Tracer("github.com/JaimeStill/pallor/internal/api")),
		middleware.CORS(&cfg.API.CORS),
		middleware.Logger(runtime.Logger),
	)

	return m, nil
}

// NewStaticModule creates the module serving result images from storage
// under ResultsPath.
func NewStaticModule(infra *infrastructure.Infrastructure) (*module.Module, error) {
	logger := infra.Logger.With("module", "static")
	artifacts := newArtifactsHandler(infra.Storage, logger)

	mux := http.NewServeMux()
	module.Register(mux, artifacts.routes())

	m, err := module.New("/static", mux)
	if err != nil {
		return nil, err
	}
	m.Use(
		middleware.Recover(logger),
		middleware.Logger(logger),
	)

	return m, nil
}
