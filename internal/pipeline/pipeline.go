// Package pipeline sequences detection, normalization, classification, and
// the optional explanation for a single image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/JaimeStill/pallor/internal/classify"
	"github.com/JaimeStill/pallor/internal/enhance"
	"github.com/JaimeStill/pallor/internal/explain"
	"github.com/JaimeStill/pallor/internal/models"
	"github.com/JaimeStill/pallor/internal/region"
	"github.com/JaimeStill/pallor/internal/tensor"
)

// Result is the outcome of a successful run. Confidence is a percentage
// rounded to two decimals.
type Result struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	BoxedPath   string  `json:"boxed_path"`
	HeatmapPath string  `json:"heatmap_path,omitempty"`
	Note        string  `json:"note,omitempty"`
}

// Pipeline runs the analysis stages. It is safe for concurrent use when the
// underlying models are.
type Pipeline struct {
	detector   *region.Detector
	normalizer *enhance.Normalizer
	classifier *classify.Classifier
	explainer  *explain.Explainer
	model      models.Classifier
	resultsDir string
	tracer     trace.Tracer
	logger     *slog.Logger
}

// New assembles a Pipeline over a loaded model set. A nil tracer disables spans.
func New(cfg *Config, set *models.Set, tracer trace.Tracer, logger *slog.Logger) *Pipeline {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	logger = logger.With("system", "pipeline")

	return &Pipeline{
		detector:   region.New(set.Detector, cfg.Region, cfg.ResultsDir, logger),
		normalizer: enhance.New(cfg.Enhance),
		classifier: classify.New(set.Classifier, logger),
		explainer:  explain.New(cfg.Explain, logger),
		model:      set.Classifier,
		resultsDir: cfg.ResultsDir,
		tracer:     tracer,
		logger:     logger,
	}
}

// ResultsDir is where annotated images and heatmaps are written.
func (p *Pipeline) ResultsDir() string {
	return p.resultsDir
}

// Run analyzes the image at path. Detection, normalization, and
// classification failures abort the run; a missing explanation does not.
func (p *Pipeline) Run(ctx context.Context, path string, withExplanation bool) (*Result, error) {
	return p.RunAs(ctx, path, region.SafeName(path), withExplanation)
}

// RunAs is Run with artifacts named after name rather than path. Callers
// running images with the same base name concurrently must pass distinct
// names. A failed run removes the annotated image it wrote.
func (p *Pipeline) RunAs(ctx context.Context, path, name string, withExplanation bool) (result *Result, err error) {
	name = region.SafeName(name)
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("image", name),
		attribute.Bool("explain", withExplanation),
	))
	defer span.End()

	if _, err := os.Stat(path); err != nil {
		return nil, record(span, fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}

	var det *region.Detection
	err = p.stage(ctx, "detect", func(ctx context.Context) (err error) {
		det, err = p.detector.DetectAs(ctx, path, name)
		return err
	})
	if err != nil {
		return nil, record(span, stageError(ErrDetectFailed, err))
	}
	defer det.Close()
	defer func() {
		if err != nil {
			p.discard(ctx, det.BoxedPath)
		}
	}()

	var in *tensor.Input
	err = p.stage(ctx, "normalize", func(ctx context.Context) (err error) {
		in, err = p.normalizer.Normalize(det.Region)
		return err
	})
	if err != nil {
		return nil, record(span, stageError(ErrNormalizeFailed, err))
	}

	var pred classify.Prediction
	err = p.stage(ctx, "classify", func(ctx context.Context) (err error) {
		pred, err = p.classifier.Classify(ctx, in)
		return err
	})
	if err != nil {
		return nil, record(span, stageError(ErrClassifyFailed, err))
	}

	result = &Result{
		Label:      pred.Label,
		Confidence: round2(pred.Confidence * 100),
		BoxedPath:  det.BoxedPath,
		Note:       det.Note,
	}

	if withExplanation {
		out := filepath.Join(p.resultsDir, HeatmapName(name))
		heatmap, ok := Attempt(ctx, p.logger, "explain", func(ctx context.Context) (string, error) {
			ctx, span := p.tracer.Start(ctx, "pipeline.explain")
			defer span.End()

			outcome := p.explainer.Explain(ctx, p.model, in, det.Region, out)
			if outcome.Reason != nil {
				span.SetAttributes(attribute.String("reason", outcome.Reason.Error()))
			}
			return outcome.Path, outcome.Reason
		})
		if ok {
			result.HeatmapPath = heatmap
		}
	}

	span.SetAttributes(
		attribute.String("label", result.Label),
		attribute.Float64("confidence", result.Confidence),
	)

	p.logger.InfoContext(
		ctx, "analysis complete",
		"image", name,
		"label", result.Label,
		"confidence", result.Confidence,
		"region", det.Selection.Kind,
		"heatmap", result.HeatmapPath != "",
	)

	return result, nil
}

// HeatmapName is the heatmap file name derived from the input path.
func HeatmapName(path string) string {
	return "heatmap_" + region.SafeName(path)
}

func (p *Pipeline) discard(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.WarnContext(ctx, "annotated image not removed", "path", path, "error", err)
	}
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		p.logger.ErrorContext(ctx, "stage failed", "stage", name, "error", err)
		return record(span, err)
	}
	return nil
}

func record(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
