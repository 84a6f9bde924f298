// Package predictions exposes the analysis pipeline over HTTP. Uploaded
// images are analyzed, and the resulting artifacts are published to storage.
package predictions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/JaimeStill/pallor/internal/pipeline"
	"github.com/JaimeStill/pallor/pkg/storage"
)

// Runner analyzes a single image file.
type Runner interface {
	Run(ctx context.Context, path string, withExplanation bool) (*pipeline.Result, error)
}

// Response is the JSON body returned for a successful prediction.
type Response struct {
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence"`
	BoxedImageURL string  `json:"boxed_image_url"`
	HeatmapURL    string  `json:"heatmap_url,omitempty"`
	Note          string  `json:"note,omitempty"`
}

// System defines the contract for prediction operations.
type System interface {
	Handler(uploadDir string, maxUploadSize int64) *Handler
	Predict(ctx context.Context, imagePath string, withExplanation bool) (*Response, error)
}

type system struct {
	runner    Runner
	store     storage.System
	urlPrefix string
	logger    *slog.Logger
}

// New creates a prediction System. Artifact URLs are urlPrefix joined with
// the storage key.
func New(runner Runner, store storage.System, urlPrefix string, logger *slog.Logger) System {
	return &system{
		runner:    runner,
		store:     store,
		urlPrefix: urlPrefix,
		logger:    logger.With("system", "predictions"),
	}
}

func (s *system) Handler(uploadDir string, maxUploadSize int64) *Handler {
	return NewHandler(s, uploadDir, maxUploadSize, s.logger)
}

// Predict runs the pipeline on imagePath and publishes its artifacts. A
// heatmap that cannot be published is dropped from the response. Scratch
// artifacts are removed whether or not publishing succeeds.
func (s *system) Predict(ctx context.Context, imagePath string, withExplanation bool) (*Response, error) {
	result, err := s.runner.Run(ctx, imagePath, withExplanation)
	if err != nil {
		return nil, err
	}
	defer s.discard(ctx, result.BoxedPath, result.HeatmapPath)

	boxed, err := s.publish(ctx, result.BoxedPath)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Label:         result.Label,
		Confidence:    result.Confidence,
		BoxedImageURL: boxed,
		Note:          result.Note,
	}

	if result.HeatmapPath != "" {
		heatmap, err := s.publish(ctx, result.HeatmapPath)
		if err != nil {
			s.logger.WarnContext(ctx, "heatmap not published", "error", err)
		} else {
			resp.HeatmapURL = heatmap
		}
	}

	return resp, nil
}

// publish copies a scratch artifact into storage under its base name and
// returns its public URL.
func (s *system) publish(ctx context.Context, scratch string) (string, error) {
	key := filepath.Base(scratch)

	f, err := os.Open(scratch)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	err = s.store.Upload(ctx, key, f, storage.ContentType(key))
	err = errors.Join(err, f.Close())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPublishFailed, key, err)
	}

	return path.Join(s.urlPrefix, key), nil
}

func (s *system) discard(ctx context.Context, scratch ...string) {
	for _, p := range scratch {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.WarnContext(ctx, "scratch artifact not removed", "path", p, "error", err)
		}
	}
}
