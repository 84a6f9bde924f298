package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/JaimeStill/pallor/internal/tensor"
)

const namesMetadataKey = "names"

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// InitRuntime loads the ONNX Runtime shared library and creates the process
// environment. Subsequent calls return the first result.
func InitRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		runtimeErr = ort.InitializeEnvironment()
	})
	return runtimeErr
}

func loadONNX(cfg *Config, logger *slog.Logger) (*Set, error) {
	for _, path := range []string{cfg.DetectorPath(), cfg.ClassifierPath()} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, filepath.Base(path), err)
		}
	}

	if err := InitRuntime(cfg.RuntimeLibrary); err != nil {
		return nil, fmt.Errorf("%w: initialize onnxruntime: %w", ErrModelUnavailable, err)
	}

	detector, err := newONNXDetector(cfg)
	if err != nil {
		return nil, err
	}

	classifier, err := newONNXClassifier(cfg, logger)
	if err != nil {
		detector.Close()
		return nil, err
	}

	return &Set{
		Detector:   detector,
		Classifier: classifier,
		release:    ort.DestroyEnvironment,
	}, nil
}

type onnxDetector struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	names   map[int]string
	size    int
	classes int
	anchors int
	iou     float32
	limit   int
}

func newONNXDetector(cfg *Config) (*onnxDetector, error) {
	path := cfg.DetectorPath()
	unavailable := func(msg string, err error) error {
		return fmt.Errorf("%w: detector %s: %w", ErrModelUnavailable, msg, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, unavailable("inspect", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, unavailable("inspect", fmt.Errorf("unexpected io: %d inputs, %d outputs", len(inputs), len(outputs)))
	}

	dims := outputs[0].Dimensions
	if len(dims) != 3 || dims[1] < 5 || dims[2] <= 0 {
		return nil, unavailable("inspect", fmt.Errorf("output shape %v is not (1, 4+classes, anchors)", dims))
	}

	names, err := detectorNames(path, cfg.NamesFile)
	if err != nil {
		return nil, unavailable("names", err)
	}

	size := int64(cfg.InputSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), make([]float32, 3*size*size))
	if err != nil {
		return nil, unavailable("input tensor", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, dims[1], dims[2]))
	if err != nil {
		input.Destroy()
		return nil, unavailable("output tensor", err)
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, unavailable("session", err)
	}

	return &onnxDetector{
		session: session,
		input:   input,
		output:  output,
		names:   names,
		size:    cfg.InputSize,
		classes: int(dims[1] - 4),
		anchors: int(dims[2]),
		iou:     float32(cfg.IoUThreshold),
		limit:   cfg.MaxDetections,
	}, nil
}

func (d *onnxDetector) Detect(ctx context.Context, img gocv.Mat, confidence float32) ([]Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInference)
	}

	lb := newLetterbox(img.Cols(), img.Rows(), d.size)
	data, err := lb.blob(img, d.size)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare input: %w", ErrInference, err)
	}
	copy(d.input.GetData(), data)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: detector: %w", ErrInference, err)
	}

	dets := decodeYOLO(d.output.GetData(), d.classes, d.anchors, confidence)
	dets = nms(dets, d.iou, d.limit)

	for i := range dets {
		dets[i].Box = lb.restore(dets[i].Box)
	}
	return dets, nil
}

func (d *onnxDetector) Names() map[int]string {
	return d.names
}

func (d *onnxDetector) Close() error {
	return errors.Join(
		d.session.Destroy(),
		d.input.Destroy(),
		d.output.Destroy(),
	)
}

func detectorNames(modelPath, namesFile string) (map[int]string, error) {
	if namesFile != "" {
		return LoadNamesFile(namesFile)
	}

	meta, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	defer meta.Destroy()

	raw, ok, err := meta.LookupCustomMetadataMap(namesMetadataKey)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("metadata has no %q entry; set names_file", namesMetadataKey)
	}

	return ParseNames(raw)
}

type session struct {
	run    *ort.AdvancedSession
	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]
}

func (s *session) destroy() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.run.Destroy(), s.input.Destroy(), s.output.Destroy())
}

// newSession opens path with a fixed NHWC input and the first output whose
// element count equals outLen.
func newSession(path string, outLen int64) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected one input, found %d", len(inputs))
	}

	var (
		outName  string
		outShape ort.Shape
	)
	for _, o := range outputs {
		shape := staticShape(o.Dimensions)
		if shape.FlattenedSize() == outLen {
			outName, outShape = o.Name, shape
			break
		}
	}
	if outName == "" {
		return nil, fmt.Errorf("no output with %d elements", outLen)
	}

	input, err := ort.NewTensor(ort.NewShape(1, tensor.Height, tensor.Width, tensor.Channels), make([]float32, tensor.Len))
	if err != nil {
		return nil, err
	}

	output, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		input.Destroy()
		return nil, err
	}

	run, err := ort.NewAdvancedSession(
		path,
		[]string{inputs[0].Name},
		[]string{outName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	return &session{run: run, input: input, output: output}, nil
}

// staticShape pins a dynamic batch dimension to 1.
func staticShape(dims ort.Shape) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d < 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

type onnxClassifier struct {
	predict  *session
	gradient *session
	logger   *slog.Logger
}

func newONNXClassifier(cfg *Config, logger *slog.Logger) (*onnxClassifier, error) {
	predict, err := newSession(cfg.ClassifierPath(), 1)
	if err != nil {
		return nil, fmt.Errorf("%w: classifier: %w", ErrModelUnavailable, err)
	}

	c := &onnxClassifier{predict: predict, logger: logger}

	path := cfg.GradientPath()
	if path == "" {
		logger.Warn("no gradient graph configured; explanations disabled")
		return c, nil
	}

	gradient, err := newSession(path, tensor.Len)
	if err != nil {
		predict.destroy()
		return nil, fmt.Errorf("%w: gradient graph: %w", ErrModelUnavailable, err)
	}
	c.gradient = gradient

	return c, nil
}

func (c *onnxClassifier) Predict(ctx context.Context, in *tensor.Input) (float32, error) {
	copy(c.predict.input.GetData(), in.Data)
	if err := c.predict.run.Run(); err != nil {
		return 0, fmt.Errorf("%w: classifier: %w", ErrInference, err)
	}
	return c.predict.output.GetData()[0], nil
}

func (c *onnxClassifier) Gradient(ctx context.Context, in *tensor.Input) ([]float32, error) {
	if c.gradient == nil {
		return nil, ErrGradientUnavailable
	}

	copy(c.gradient.input.GetData(), in.Data)
	if err := c.gradient.run.Run(); err != nil {
		return nil, fmt.Errorf("%w: gradient: %w", ErrInference, err)
	}

	out := c.gradient.output.GetData()
	grad := make([]float32, len(out))
	copy(grad, out)
	return grad, nil
}

func (c *onnxClassifier) Close() error {
	return errors.Join(c.predict.destroy(), c.gradient.destroy())
}
