// Package enhance turns a cropped conjunctiva region into the classifier's
// input tensor: green-channel CLAHE, colored non-local means denoising, and a
// 3x3 sharpening pass, followed by [0,1] scaling.
package enhance

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/JaimeStill/pallor/internal/tensor"
)

// ErrInvalidRegion indicates a region that is not a 224x224x3 integer image
// with values no greater than 255.
var ErrInvalidRegion = errors.New("invalid region")

const greenBGR = 1

var sharpen = [3][3]float32{
	{0, -1, 0},
	{-1, 5, -1},
	{0, -1, 0},
}

// Normalizer applies the deterministic enhancement sequence. It holds no
// per-request state and is safe for concurrent use.
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer with the given parameters.
func New(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// ValidateRegion checks shape, depth, and range without modifying region.
func ValidateRegion(region gocv.Mat) error {
	if region.Empty() {
		return fmt.Errorf("%w: empty", ErrInvalidRegion)
	}
	if region.Rows() != tensor.Height || region.Cols() != tensor.Width || region.Channels() != tensor.Channels {
		return fmt.Errorf(
			"%w: shape %dx%dx%d, want %dx%dx%d",
			ErrInvalidRegion,
			region.Rows(), region.Cols(), region.Channels(),
			tensor.Height, tensor.Width, tensor.Channels,
		)
	}

	switch depth(region.Type()) {
	case gocv.MatTypeCV8U:
		return nil
	case gocv.MatTypeCV8S, gocv.MatTypeCV16U, gocv.MatTypeCV16S, gocv.MatTypeCV32S:
	default:
		return fmt.Errorf("%w: non-integer pixel type", ErrInvalidRegion)
	}

	flat := region.Reshape(1, 0)
	defer flat.Close()
	minVal, maxVal, _, _ := gocv.MinMaxLoc(flat)
	if minVal < 0 {
		return fmt.Errorf("%w: min value %v below 0", ErrInvalidRegion, minVal)
	}
	if maxVal > 255 {
		return fmt.Errorf("%w: max value %v exceeds 255", ErrInvalidRegion, maxVal)
	}
	return nil
}

// Normalize validates an RGB region and returns the enhanced tensor. Invalid
// regions return ErrInvalidRegion; the function does not panic on bad input.
func (n *Normalizer) Normalize(region gocv.Mat) (*tensor.Input, error) {
	if err := ValidateRegion(region); err != nil {
		return nil, err
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	region.ConvertTo(&rgb, gocv.MatTypeCV8UC3)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)

	equalized := n.equalizeGreen(bgr)
	defer equalized.Close()

	denoised := gocv.NewMat()
	defer denoised.Close()
	gocv.FastNlMeansDenoisingColoredWithParams(
		equalized, &denoised,
		n.cfg.DenoiseStrength, n.cfg.DenoiseColor,
		n.cfg.TemplateWindow, n.cfg.SearchWindow,
	)

	sharpened, err := sharpenImage(denoised)
	if err != nil {
		return nil, err
	}
	defer sharpened.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(sharpened, &out, gocv.ColorBGRToRGB)

	return toTensor(out)
}

func (n *Normalizer) equalizeGreen(bgr gocv.Mat) gocv.Mat {
	channels := gocv.Split(bgr)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(n.cfg.ClipLimit, image.Pt(n.cfg.TileGrid, n.cfg.TileGrid))
	defer clahe.Close()

	green := gocv.NewMat()
	defer green.Close()
	clahe.Apply(channels[greenBGR], &green)

	merged := gocv.NewMat()
	gocv.Merge([]gocv.Mat{channels[0], green, channels[2]}, &merged)
	return merged
}

// depth strips the channel count from an OpenCV type code.
func depth(t gocv.MatType) gocv.MatType {
	return t & 7
}

func sharpenImage(src gocv.Mat) (gocv.Mat, error) {
	kernel := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	defer kernel.Close()
	for r, row := range sharpen {
		for c, v := range row {
			kernel.SetFloatAt(r, c, v)
		}
	}

	dst := gocv.NewMat()
	gocv.Filter2D(src, &dst, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: sharpening produced no output", ErrInvalidRegion)
	}
	return dst, nil
}

func toTensor(rgb gocv.Mat) (*tensor.Input, error) {
	scaled := gocv.NewMat()
	defer scaled.Close()
	rgb.ConvertToWithParams(&scaled, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	values, err := scaled.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read tensor data: %w", err)
	}

	data := make([]float32, tensor.Len)
	copy(data, values)
	return tensor.New(data)
}
