// Package infrastructure assembles the process-wide systems that every
// surface needs: lifecycle coordination, logging, artifact storage,
// tracing, and the loaded models.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/pallor/internal/config"
	"github.com/JaimeStill/pallor/internal/models"
	"github.com/JaimeStill/pallor/pkg/lifecycle"
	"github.com/JaimeStill/pallor/pkg/storage"
	"github.com/JaimeStill/pallor/pkg/tracing"
)

// Infrastructure holds the core systems shared by the API and the CLI.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Storage   storage.System
	Tracing   *tracing.Service
	Models    *models.Set
}

// New creates every system from cfg. Models are loaded eagerly so that a
// missing or broken model fails startup rather than the first request.
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewWithLogger(ctx, cfg, logger)
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infrastructure, error) {
	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	tracer, err := tracing.New(ctx, &cfg.Tracing, cfg.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	set, err := models.Load(ctx, &cfg.Models, logger)
	if err != nil {
		tracer.Shutdown(ctx)
		return nil, fmt.Errorf("models init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
		Storage:   store,
		Tracing:   tracer,
		Models:    set,
	}, nil
}

// Start registers storage, tracing, and model cleanup with the lifecycle.
func (i *Infrastructure) Start() error {
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Tracing.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("tracing start failed: %w", err)
	}

	i.Lifecycle.OnShutdown(func() {
		<-i.Lifecycle.Context().Done()
		if err := i.Models.Close(); err != nil {
			i.Logger.Error("model release failed", "error", err)
			return
		}
		i.Logger.Info("models released")
	})

	return nil
}
