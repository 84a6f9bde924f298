// Package classify maps classifier probabilities to anemia labels.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/JaimeStill/pallor/internal/models"
	"github.com/JaimeStill/pallor/internal/tensor"
)

// Labels produced by the classifier.
const (
	Anemic    = "ANEMIC"
	NonAnemic = "NON-ANEMIC"
)

// Threshold is the probability at and above which a region is labeled Anemic.
const Threshold = 0.5

// ErrInvalidProbability indicates a model output outside [0,1].
var ErrInvalidProbability = errors.New("classifier output outside [0,1]")

// Prediction is a label with the probability of that label. Confidence is
// always at least 0.5.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Decide applies the decision rule to a positive-class probability.
func Decide(p float64) Prediction {
	if p < Threshold {
		return Prediction{Label: NonAnemic, Confidence: 1 - p}
	}
	return Prediction{Label: Anemic, Confidence: p}
}

// Classifier runs the anemia model over validated tensors.
type Classifier struct {
	model  models.Classifier
	logger *slog.Logger
}

// New creates a Classifier over the given model.
func New(model models.Classifier, logger *slog.Logger) *Classifier {
	return &Classifier{
		model:  model,
		logger: logger.With("stage", "classify"),
	}
}

// Classify validates in and returns the prediction for it.
func (c *Classifier) Classify(ctx context.Context, in *tensor.Input) (Prediction, error) {
	if err := in.Validate(); err != nil {
		return Prediction{}, err
	}

	p, err := c.model.Predict(ctx, in)
	if err != nil {
		return Prediction{}, err
	}

	prob := float64(p)
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}

	pred := Decide(prob)
	c.logger.DebugContext(ctx, "raw probability", "p", prob, "label", pred.Label)
	return pred, nil
}
