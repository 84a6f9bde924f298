// Package models defines the detector and classifier boundaries used by the
// pipeline and provides the ONNX Runtime and remote HTTP backends behind them.
package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/JaimeStill/pallor/internal/tensor"
)

// Sentinel errors for model operations.
var (
	ErrModelUnavailable    = errors.New("model unavailable")
	ErrInference           = errors.New("model inference failed")
	ErrGradientUnavailable = errors.New("input gradient unavailable")
)

// Box is an axis-aligned bounding box in source image pixels.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Detection is a single localization model output.
type Detection struct {
	ClassID int     `json:"class_id"`
	Box     Box     `json:"box"`
	Score   float32 `json:"score"`
}

// Detector localizes regions in a BGR image.
type Detector interface {
	// Detect returns all detections scoring above confidence. The image is read-only.
	Detect(ctx context.Context, img gocv.Mat, confidence float32) ([]Detection, error)
	// Names maps class identifiers to the labels the model was trained with.
	Names() map[int]string
	Close() error
}

// Classifier produces the anemia probability for a normalized input tensor.
type Classifier interface {
	// Predict returns output[0][0] for the tensor.
	Predict(ctx context.Context, in *tensor.Input) (float32, error)
	// Gradient returns d(output[0][0])/d(input) in the tensor's NHWC layout
	// with the model parameters held fixed.
	Gradient(ctx context.Context, in *tensor.Input) ([]float32, error)
	Close() error
}

// Set holds the process-wide models. Both are loaded once at startup and shared
// read-only across requests.
type Set struct {
	Detector   Detector
	Classifier Classifier

	release func() error
}

// Load builds the configured backend. Any failure wraps ErrModelUnavailable;
// callers must not serve requests without a loaded Set.
func Load(ctx context.Context, cfg *Config, logger *slog.Logger) (*Set, error) {
	logger = logger.With("system", "models")

	var (
		set *Set
		err error
	)

	switch cfg.Backend {
	case BackendONNX:
		set, err = loadONNX(cfg, logger)
	case BackendRemote:
		set, err = loadRemote(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrModelUnavailable, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.Concurrent {
		set.Detector = GuardDetector(set.Detector)
		set.Classifier = GuardClassifier(set.Classifier)
	}

	logger.Info(
		"models loaded",
		"backend", cfg.Backend,
		"classes", len(set.Detector.Names()),
		"serialized", !cfg.Concurrent,
	)

	return set, nil
}

// Close releases both models and any backend-wide resources.
func (s *Set) Close() error {
	var errs []error
	if s.Detector != nil {
		errs = append(errs, s.Detector.Close())
	}
	if s.Classifier != nil {
		errs = append(errs, s.Classifier.Close())
	}
	if s.release != nil {
		errs = append(errs, s.release())
	}
	return errors.Join(errs...)
}
