package api

import (
	"github.com/JaimeStill/pallor/internal/config"
	"github.com/JaimeStill/pallor/internal/infrastructure"
	"github.com/JaimeStill/pallor/internal/pipeline"
)

// Runtime extends Infrastructure with the pipeline the API serves.
type Runtime struct {
	*infrastructure.Infrastructure
	Pipeline *pipeline.Pipeline
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	logger := infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    logger,
			Storage:   infra.Storage,
			Tracing:   infra.Tracing,
			Models:    infra.Models,
		},
		Pipeline: pipeline.New(
			&cfg.Pipeline,
			infra.Models,
			infra.Tracing.Tracer("github.com/JaimeStill/pallor/internal/pipeline"),
			logger,
		),
	}
}
