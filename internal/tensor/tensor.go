// Package tensor defines the model input contract shared by the normalizer,
// the classifier, and the explainer.
package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Dimensions of the classifier input in NHWC order.
const (
	Batch    = 1
	Height   = 224
	Width    = 224
	Channels = 3
)

// Len is the number of elements in a valid input tensor.
const Len = Batch * Height * Width * Channels

// Shape is the only accepted input shape.
var Shape = [4]int{Batch, Height, Width, Channels}

// ErrInvalidTensor indicates a tensor whose shape or values break the input contract.
var ErrInvalidTensor = errors.New("invalid input tensor")

// Input is a 1x224x224x3 float32 RGB tensor with values in [0,1].
type Input struct {
	Shape [4]int
	Data  []float32
}

// New wraps data as an Input and validates it.
func New(data []float32) (*Input, error) {
	in := &Input{Shape: Shape, Data: data}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// Validate checks the shape, element count, and value range.
// It is idempotent and never mutates the tensor.
func (t *Input) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrInvalidTensor)
	}
	if t.Shape != Shape {
		return fmt.Errorf("%w: shape %v, want %v", ErrInvalidTensor, t.Shape, Shape)
	}
	if len(t.Data) != Len {
		return fmt.Errorf("%w: %d elements, want %d", ErrInvalidTensor, len(t.Data), Len)
	}
	for i, v := range t.Data {
		if math.IsNaN(float64(v)) || v < 0 || v > 1 {
			return fmt.Errorf("%w: value %v at index %d outside [0,1]", ErrInvalidTensor, v, i)
		}
	}
	return nil
}

// At returns the value at row y, column x, channel c.
func (t *Input) At(y, x, c int) float32 {
	return t.Data[Index(y, x, c)]
}

// Index returns the flat offset of (y, x, c) in an NHWC buffer with batch size 1.
func Index(y, x, c int) int {
	return (y*Width+x)*Channels + c
}

// Shape64 returns the shape as int64 values for runtime tensor constructors.
func (t *Input) Shape64() []int64 {
	return []int64{int64(t.Shape[0]), int64(t.Shape[1]), int64(t.Shape[2]), int64(t.Shape[3])}
}
