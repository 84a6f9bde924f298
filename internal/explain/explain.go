// Package explain renders gradient saliency heatmaps over the analyzed region.
//
// An explanation is best effort: Explain never fails the caller. It returns
// an Outcome carrying either the written path or the reason no heatmap exists.
package explain

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"github.com/JaimeStill/pallor/internal/models"
	"github.com/JaimeStill/pallor/internal/region"
	"github.com/JaimeStill/pallor/internal/tensor"
)

// colormapInferno is OpenCV's COLORMAP_INFERNO.
const colormapInferno gocv.ColormapTypes = 14

// Outcome reports a written heatmap Path or the Reason none was produced.
type Outcome struct {
	Path   string
	Reason error
}

// OK reports whether a heatmap was written.
func (o Outcome) OK() bool {
	return o.Reason == nil && o.Path != ""
}

// Explainer produces saliency overlays from classifier gradients.
type Explainer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Explainer.
func New(cfg Config, logger *slog.Logger) *Explainer {
	return &Explainer{
		cfg:    cfg,
		logger: logger.With("stage", "explain"),
	}
}

// Explain computes the saliency of model's output with respect to in and
// blends it over rgb, writing the result to outPath. in and rgb are read only.
func (e *Explainer) Explain(ctx context.Context, model models.Classifier, in *tensor.Input, rgb gocv.Mat, outPath string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Reason: fmt.Errorf("%w: %v", ErrInternal, r)}
			e.logger.ErrorContext(ctx, "explanation panicked", "error", out.Reason)
		}
	}()

	if err := e.explain(ctx, model, in, rgb, outPath); err != nil {
		e.logger.WarnContext(ctx, "explanation unavailable", "error", err)
		return Outcome{Reason: err}
	}

	e.logger.InfoContext(ctx, "heatmap written", "path", outPath)
	return Outcome{Path: outPath}
}

func (e *Explainer) explain(ctx context.Context, model models.Classifier, in *tensor.Input, rgb gocv.Mat, outPath string) error {
	if err := validate(in, rgb, outPath); err != nil {
		return err
	}

	grad, err := model.Gradient(ctx, in)
	if err != nil {
		return fmt.Errorf("compute gradient: %w", err)
	}

	sal, err := e.Saliency(grad)
	if err != nil {
		return err
	}

	overlay, err := e.overlay(sal, rgb)
	if err != nil {
		return err
	}
	defer overlay.Close()

	return e.write(outPath, overlay)
}

// Saliency reduces, normalizes, and thresholds a raw NHWC gradient into a
// Height x Width map with values in [0,1].
func (e *Explainer) Saliency(grad []float32) ([]float32, error) {
	sal, err := Reduce(grad)
	if err != nil {
		return nil, err
	}

	low, high := e.cfg.Percentiles()
	sal, err = Normalize(sal, low, high)
	if err != nil {
		return nil, err
	}

	Threshold(sal, e.cfg.Cutoff())
	return sal, nil
}

func validate(in *tensor.Input, rgb gocv.Mat, outPath string) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if rgb.Empty() || rgb.Channels() != 3 {
		return fmt.Errorf("%w: region must be a 3-channel image", ErrInvalidInput)
	}
	if outPath == "" || strings.Contains(outPath, "..") {
		return fmt.Errorf("%w: invalid output path", ErrInvalidInput)
	}
	if !region.SupportedExtension(outPath) {
		return fmt.Errorf("%w: unsupported output extension %q", ErrInvalidInput, filepath.Ext(outPath))
	}
	return nil
}

// overlay renders sal as a colormapped heat layer blended over a grayscale
// copy of rgb. The returned BGR image is owned by the caller.
func (e *Explainer) overlay(sal []float32, rgb gocv.Mat) (gocv.Mat, error) {
	heat := gocv.NewMatWithSize(tensor.Height, tensor.Width, gocv.MatTypeCV32F)
	defer heat.Close()

	buf, err := heat.DataPtrFloat32()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	copy(buf, sal)

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := e.cfg.BlurKernel
	gocv.GaussianBlur(heat, &blurred, image.Pt(k, k), e.cfg.BlurSigma, e.cfg.BlurSigma, gocv.BorderDefault)

	if rgb.Cols() != blurred.Cols() || rgb.Rows() != blurred.Rows() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(blurred, &resized, image.Pt(rgb.Cols(), rgb.Rows()), 0, 0, gocv.InterpolationLinear)
		blurred, resized = resized, blurred
	}

	levels, err := quantize(blurred)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer levels.Close()

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.ApplyColorMap(levels, &colored, colormapInferno)

	gray := grayscale(rgb)
	defer gray.Close()

	blended := gocv.NewMat()
	grayWeight, heatWeight := e.cfg.Weights()
	gocv.AddWeighted(gray, grayWeight, colored, heatWeight, 0, &blended)
	return blended, nil
}

// quantize maps a [0,1] float map to 8-bit levels, truncating toward zero.
func quantize(heat gocv.Mat) (gocv.Mat, error) {
	src, err := heat.DataPtrFloat32()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	levels := gocv.NewMatWithSize(heat.Rows(), heat.Cols(), gocv.MatTypeCV8U)
	dst, err := levels.DataPtrUint8()
	if err != nil {
		levels.Close()
		return gocv.Mat{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	for i, v := range src {
		dst[i] = uint8(255 * min(max(v, 0), 1))
	}
	return levels, nil
}

// grayscale returns rgb as a 3-channel 8-bit BGR gray image.
func grayscale(rgb gocv.Mat) gocv.Mat {
	src := rgb
	if rgb.Type() != gocv.MatTypeCV8UC3 {
		src = gocv.NewMat()
		defer src.Close()
		rgb.ConvertTo(&src, gocv.MatTypeCV8UC3)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)
	return bgr
}

func (e *Explainer) write(path string, img gocv.Mat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputRejected, err)
	}
	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("%w: write failed", ErrOutputRejected)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputRejected, err)
	}
	if limit := e.cfg.MaxOutputBytes(); info.Size() > limit {
		os.Remove(path)
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrOutputRejected, info.Size(), limit)
	}
	return nil
}
