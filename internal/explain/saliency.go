package explain

import (
	"fmt"
	"math"
	"slices"

	"github.com/JaimeStill/pallor/internal/tensor"
)

// minRange keeps the rescale finite when the percentile window is tiny.
const minRange = 1e-6

// Reduce collapses an NHWC gradient to one value per pixel: the largest
// absolute gradient across channels.
func Reduce(grad []float32) ([]float32, error) {
	if len(grad) != tensor.Len {
		return nil, fmt.Errorf("%w: gradient has %d elements, want %d", ErrInvalidInput, len(grad), tensor.Len)
	}

	sal := make([]float32, tensor.Height*tensor.Width)
	for i := range sal {
		var peak float32
		for c := range tensor.Channels {
			v := grad[i*tensor.Channels+c]
			if v < 0 {
				v = -v
			}
			peak = max(peak, v)
		}
		sal[i] = peak
	}
	return sal, nil
}

// Percentile returns the q-th percentile of values using linear
// interpolation between the two nearest ranks.
func Percentile(values []float32, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	frac := pos - float64(lo)

	a, b := float64(sorted[lo]), float64(sorted[hi])
	return a + (b-a)*frac
}

// Normalize clips sal to the [low, high] percentile window and rescales it to
// [0,1]. A window with no positive width returns ErrDegenerate.
func Normalize(sal []float32, low, high float64) ([]float32, error) {
	lo := Percentile(sal, low)
	hi := Percentile(sal, high)
	if math.IsNaN(lo) || math.IsNaN(hi) || hi <= lo {
		return nil, fmt.Errorf("%w: p%v=%v, p%v=%v", ErrDegenerate, low, lo, high, hi)
	}

	span := max(hi-lo, minRange)
	out := make([]float32, len(sal))
	for i, v := range sal {
		x := (min(max(float64(v), lo), hi) - lo) / span
		out[i] = float32(min(max(x, 0), 1))
	}
	return out, nil
}

// Threshold zeroes every value below t in place.
func Threshold(sal []float32, t float64) {
	for i, v := range sal {
		if float64(v) < t {
			sal[i] = 0
		}
	}
}
