package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/JaimeStill/pallor/internal/tensor"
)

// remoteClient talks to an inference service that hosts both models.
type remoteClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type tensorPayload struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

type detectResponse struct {
	Detections []struct {
		ClassID int        `json:"class_id"`
		Box     [4]float32 `json:"box"`
		Score   float32    `json:"score"`
	} `json:"detections"`
}

type predictResponse struct {
	Probability float32 `json:"probability"`
}

type gradientResponse struct {
	Shape    []int     `json:"shape"`
	Gradient []float32 `json:"gradient"`
}

func loadRemote(ctx context.Context, cfg *Config, logger *slog.Logger) (*Set, error) {
	client := &remoteClient{
		baseURL: strings.TrimSuffix(cfg.RemoteURL, "/"),
		http:    &http.Client{Timeout: cfg.RemoteTimeoutDuration()},
		logger:  logger.With("backend", BackendRemote),
	}

	if err := client.health(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	names, err := client.names(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	return &Set{
		Detector:   &remoteDetector{client: client, classes: names},
		Classifier: &remoteClassifier{client: client},
	}, nil
}

func (c *remoteClient) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("inference service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func (c *remoteClient) names(ctx context.Context) (map[int]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/names", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var names map[int]string
	if err := c.do(req, &names); err != nil {
		return nil, fmt.Errorf("fetch class names: %w", err)
	}
	if len(names) == 0 {
		return nil, errNoNames
	}
	return names, nil
}

func (c *remoteClient) postTensor(ctx context.Context, endpoint string, in *tensor.Input, v any) error {
	body, err := json.Marshal(tensorPayload{Shape: in.Shape[:], Data: in.Data})
	if err != nil {
		return fmt.Errorf("encode tensor: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, v)
}

// statusError carries a non-200 inference service response code.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "inference service returned status " + strconv.Itoa(e.code)
}

func (c *remoteClient) do(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &statusError{code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type remoteDetector struct {
	client  *remoteClient
	classes map[int]string
}

func (d *remoteDetector) Detect(ctx context.Context, img gocv.Mat, confidence float32) ([]Detection, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("%w: encode image: %w", ErrInference, err)
	}
	defer buf.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("%w: create form file: %w", ErrInference, err)
	}
	if _, err := part.Write(buf.GetBytes()); err != nil {
		return nil, fmt.Errorf("%w: copy image data: %w", ErrInference, err)
	}
	if err := writer.WriteField("confidence", strconv.FormatFloat(float64(confidence), 'f', -1, 32)); err != nil {
		return nil, fmt.Errorf("%w: write confidence: %w", ErrInference, err)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.client.baseURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrInference, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result detectResponse
	if err := d.client.do(req, &result); err != nil {
		return nil, fmt.Errorf("%w: detect: %w", ErrInference, err)
	}

	dets := make([]Detection, 0, len(result.Detections))
	for _, r := range result.Detections {
		dets = append(dets, Detection{
			ClassID: r.ClassID,
			Box:     Box{X1: r.Box[0], Y1: r.Box[1], X2: r.Box[2], Y2: r.Box[3]},
			Score:   r.Score,
		})
	}
	return dets, nil
}

func (d *remoteDetector) Names() map[int]string {
	return d.classes
}

func (d *remoteDetector) Close() error {
	return nil
}

type remoteClassifier struct {
	client *remoteClient
}

func (c *remoteClassifier) Predict(ctx context.Context, in *tensor.Input) (float32, error) {
	var result predictResponse
	if err := c.client.postTensor(ctx, "/predict", in, &result); err != nil {
		return 0, fmt.Errorf("%w: predict: %w", ErrInference, err)
	}
	return result.Probability, nil
}

func (c *remoteClassifier) Gradient(ctx context.Context, in *tensor.Input) ([]float32, error) {
	var result gradientResponse
	if err := c.client.postTensor(ctx, "/gradient", in, &result); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotImplemented {
			return nil, ErrGradientUnavailable
		}
		return nil, fmt.Errorf("%w: gradient: %w", ErrInference, err)
	}
	if len(result.Gradient) != tensor.Len {
		return nil, fmt.Errorf("%w: gradient has %d elements, want %d", ErrInference, len(result.Gradient), tensor.Len)
	}
	return result.Gradient, nil
}

func (c *remoteClassifier) Close() error {
	c.client.http.CloseIdleConnections()
	return nil
}
