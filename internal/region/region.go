// Package region locates the conjunctiva in a photograph and produces the
// fixed-size RGB crop consumed by the normalizer. Every run also writes an
// annotated copy of the analyzed image to the results directory.
package region

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/JaimeStill/pallor/internal/models"
)

// NoteNoRegion is reported when the full image stands in for a detection.
const NoteNoRegion = "No conjunctiva region detected; the full image was analyzed."

const boxThickness = 2

var boxColor = color.RGBA{G: 255}

// Detection is the outcome of a detector run. Region is an RGB image owned by
// the caller, who must Close the Detection.
type Detection struct {
	Region    gocv.Mat
	Selection Selection
	BoxedPath string
	Note      string
}

// Close releases the region buffer.
func (d *Detection) Close() error {
	return d.Region.Close()
}

// Detector runs the localization model and extracts the region of interest.
type Detector struct {
	model      models.Detector
	cfg        Config
	resultsDir string
	logger     *slog.Logger
}

// New creates a Detector that writes annotated images under resultsDir.
func New(model models.Detector, cfg Config, resultsDir string, logger *slog.Logger) *Detector {
	return &Detector{
		model:      model,
		cfg:        cfg,
		resultsDir: resultsDir,
		logger:     logger.With("stage", "detect"),
	}
}

// Detect validates and loads the image at path, selects the largest accepted
// detection, and returns the cropped region. When nothing qualifies the whole
// image is used and Note is set; this is not an error.
func (d *Detector) Detect(ctx context.Context, path string) (*Detection, error) {
	return d.DetectAs(ctx, path, SafeName(path))
}

// DetectAs is Detect with the annotated image written as "boxed_" + name
// instead of a name derived from path.
func (d *Detector) DetectAs(ctx context.Context, path, name string) (*Detection, error) {
	if err := ValidateImagePath(path, d.cfg.MaxFileSizeBytes()); err != nil {
		return nil, err
	}

	src, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dets, err := d.model.Detect(ctx, src, float32(d.cfg.Confidence))
	if err != nil {
		return nil, fmt.Errorf("run detector: %w", err)
	}

	sel := Select(dets, d.model.Names(), d.cfg.AcceptedClasses)
	boxedPath := filepath.Join(d.resultsDir, BoxedName(name))

	d.logger.InfoContext(
		ctx, "region selected",
		"kind", sel.Kind,
		"label", sel.Label,
		"score", sel.Score,
		"candidates", len(dets),
	)

	if sel.Kind == Detected {
		return d.crop(src, sel, boxedPath)
	}
	return d.fallback(src, boxedPath)
}

func (d *Detector) load(ctx context.Context, path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("%w: unreadable or corrupted image", ErrInvalidInput)
	}

	scaled, ok := Downscale(img, d.cfg.MaxDimension)
	if !ok {
		return img, nil
	}

	d.logger.InfoContext(
		ctx, "image downscaled",
		"from", fmt.Sprintf("%dx%d", img.Cols(), img.Rows()),
		"to", fmt.Sprintf("%dx%d", scaled.Cols(), scaled.Rows()),
	)
	img.Close()
	return scaled, nil
}

func (d *Detector) crop(src gocv.Mat, sel Selection, boxedPath string) (*Detection, error) {
	box, ok := sel.Box.Clamp(src.Cols(), src.Rows())
	if !ok {
		return nil, fmt.Errorf("%w: %w: %+v", ErrInvalidInput, ErrEmptyCrop, sel.Box)
	}
	sel.Box = box

	boxed := src.Clone()
	defer boxed.Close()
	gocv.Rectangle(&boxed, box.Rect(), boxColor, boxThickness)

	if err := write(boxedPath, boxed); err != nil {
		return nil, err
	}

	roi := src.Region(box.Rect())
	defer roi.Close()

	return &Detection{
		Region:    d.toRegion(roi),
		Selection: sel,
		BoxedPath: boxedPath,
	}, nil
}

func (d *Detector) fallback(src gocv.Mat, boxedPath string) (*Detection, error) {
	if err := write(boxedPath, src); err != nil {
		return nil, err
	}

	return &Detection{
		Region:    d.toRegion(src),
		Selection: Selection{Kind: Fallback},
		BoxedPath: boxedPath,
		Note:      NoteNoRegion,
	}, nil
}

// toRegion resizes a BGR image to the configured square size and converts it to RGB.
func (d *Detector) toRegion(bgr gocv.Mat) gocv.Mat {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(bgr, &resized, image.Pt(d.cfg.Size, d.cfg.Size), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)
	return rgb
}

// ScaledSize returns the dimensions of a w x h image bounded by maxDim while
// keeping its aspect ratio. It reports false when no scaling is needed.
func ScaledSize(w, h, maxDim int) (int, int, bool) {
	if w <= maxDim && h <= maxDim {
		return w, h, false
	}
	scale := float64(maxDim) / float64(max(w, h))
	return int(float64(w) * scale), int(float64(h) * scale), true
}

// Downscale shrinks img with area interpolation when either side exceeds
// maxDim. The returned Mat is new and owned by the caller.
func Downscale(img gocv.Mat, maxDim int) (gocv.Mat, bool) {
	w, h, ok := ScaledSize(img.Cols(), img.Rows(), maxDim)
	if !ok {
		return gocv.Mat{}, false
	}

	scaled := gocv.NewMat()
	gocv.Resize(img, &scaled, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	return scaled, true
}

func write(path string, img gocv.Mat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("%w: %s", ErrWriteFailed, filepath.Base(path))
	}
	return nil
}
