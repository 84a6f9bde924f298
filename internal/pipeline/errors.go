package pipeline

import (
	"errors"
	"fmt"

	"github.com/JaimeStill/pallor/internal/enhance"
	"github.com/JaimeStill/pallor/internal/region"
	"github.com/JaimeStill/pallor/internal/tensor"
)

// Stage failures. Input problems additionally wrap ErrInvalidInput so callers
// can separate client errors from internal ones.
var (
	ErrInvalidInput    = errors.New("invalid image or processing failed")
	ErrDetectFailed    = errors.New("region detection failed")
	ErrNormalizeFailed = errors.New("normalization failed")
	ErrClassifyFailed  = errors.New("classification failed")
)

// IsInvalidInput reports whether err was caused by the submitted image.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func stageError(stage, err error) error {
	if invalidCause(err) {
		return fmt.Errorf("%w: %w: %w", stage, ErrInvalidInput, err)
	}
	return fmt.Errorf("%w: %w", stage, err)
}

func invalidCause(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, region.ErrInvalidInput) ||
		errors.Is(err, enhance.ErrInvalidRegion) ||
		errors.Is(err, tensor.ErrInvalidTensor)
}
