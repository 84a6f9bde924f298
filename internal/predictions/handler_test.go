package predictions_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JaimeStill/pallor/internal/pipeline"
	"github.com/JaimeStill/pallor/internal/predictions"
	"github.com/JaimeStill/pallor/pkg/storage"
)

type fakeRunner struct {
	scratch string
	heatmap bool
	err     error

	calls   int
	path    string
	existed bool
	explain bool
}

func (f *fakeRunner) Run(_ context.Context, path string, withExplanation bool) (*pipeline.Result, error) {
	f.calls++
	f.path = path
	f.explain = withExplanation
	_, statErr := os.Stat(path)
	f.existed = statErr == nil

	if f.err != nil {
		return nil, f.err
	}

	name := filepath.Base(path)
	result := &pipeline.Result{
		Label:      "ANEMIC",
		Confidence: 82,
		BoxedPath:  filepath.Join(f.scratch, "boxed_"+name),
	}
	if err := os.WriteFile(result.BoxedPath, []byte("boxed"), 0o644); err != nil {
		return nil, err
	}
	if withExplanation && f.heatmap {
		result.HeatmapPath = filepath.Join(f.scratch, "heatmap_"+name)
		if err := os.WriteFile(result.HeatmapPath, []byte("heatmap"), 0o644); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type env struct {
	runner    *fakeRunner
	store     storage.System
	uploadDir string
	handler   *predictions.Handler
}

func setup(t *testing.T, maxUploadSize int64) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.New(&storage.Config{
		Backend: storage.BackendFilesystem,
		Root:    t.TempDir(),
	}, logger)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	runner := &fakeRunner{scratch: t.TempDir()}
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	sys := predictions.New(runner, store, "/static/results", logger)

	return &env{
		runner:    runner,
		store:     store,
		uploadDir: uploadDir,
		handler:   sys.Handler(uploadDir, maxUploadSize),
	}
}

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

func newRequest(t *testing.T, target string, up *upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if up != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.filename))
		h.Set("Content-Type", up.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(up.data)
	} else {
		mw.WriteField("note", "no file")
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%s not empty: %d entries", dir, len(entries))
	}
}

func TestPredict(t *testing.T) {
	e := setup(t, 5<<20)

	rec := httptest.NewRecorder()
	e.handler.Predict(rec, newRequest(t, "/predict", &upload{"eye.PNG", "image/png", pngBytes(t, 32)}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decode[predictions.Response](t, rec)

	if resp.Label != "ANEMIC" || resp.Confidence != 82 {
		t.Errorf("resp = %+v", resp)
	}
	if !strings.HasPrefix(resp.BoxedImageURL, "/static/results/boxed_") || !strings.HasSuffix(resp.BoxedImageURL, ".png") {
		t.Errorf("boxed_image_url = %q", resp.BoxedImageURL)
	}
	if resp.HeatmapURL != "" {
		t.Errorf("heatmap_url = %q, want empty", resp.HeatmapURL)
	}

	if !e.runner.existed {
		t.Error("runner did not see the staged upload")
	}
	if filepath.Dir(e.runner.path) != e.uploadDir {
		t.Errorf("staged in %s, want %s", filepath.Dir(e.runner.path), e.uploadDir)
	}
	if e.runner.explain {
		t.Error("explain requested without the query parameter")
	}

	key := strings.TrimPrefix(resp.BoxedImageURL, "/static/results/")
	if ok, err := e.store.Exists(context.Background(), key); err != nil || !ok {
		t.Errorf("Exists(%s) = %v, %v", key, ok, err)
	}

	assertEmptyDir(t, e.uploadDir)
	assertEmptyDir(t, e.runner.scratch)
}

func TestPredictExplain(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		heatmap     bool
		wantExplain bool
		wantHeatmap bool
	}{
		{"heatmap published", "?explain=true", true, true, true},
		{"explanation unavailable", "?explain=1", false, true, false},
		{"explicit false", "?explain=false", true, false, false},
		{"invalid value", "?explain=maybe", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, 5<<20)
			e.runner.heatmap = tt.heatmap

			rec := httptest.NewRecorder()
			e.handler.Predict(rec, newRequest(t, "/predict"+tt.query, &upload{"eye.png", "image/png", pngBytes(t, 16)}))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			resp := decode[predictions.Response](t, rec)

			if e.runner.explain != tt.wantExplain {
				t.Errorf("explain = %v, want %v", e.runner.explain, tt.wantExplain)
			}
			if got := resp.HeatmapURL != ""; got != tt.wantHeatmap {
				t.Errorf("heatmap_url = %q, want present=%v", resp.HeatmapURL, tt.wantHeatmap)
			}
			if tt.wantHeatmap && !strings.HasPrefix(resp.HeatmapURL, "/static/results/heatmap_") {
				t.Errorf("heatmap_url = %q", resp.HeatmapURL)
			}
		})
	}
}

func TestPredictRejections(t *testing.T) {
	valid := func(t *testing.T) []byte { return pngBytes(t, 16) }

	tests := []struct {
		name    string
		upload  func(t *testing.T) *upload
		status  int
		message string
	}{
		{
			name:    "missing file",
			upload:  func(*testing.T) *upload { return nil },
			status:  http.StatusBadRequest,
			message: predictions.MessageMissingFilename,
		},
		{
			name:    "unsupported extension",
			upload:  func(t *testing.T) *upload { return &upload{"eye.gif", "image/gif", valid(t)} },
			status:  http.StatusBadRequest,
			message: predictions.MessageUnsupportedType,
		},
		{
			name:    "non-image content type",
			upload:  func(t *testing.T) *upload { return &upload{"eye.png", "text/plain", valid(t)} },
			status:  http.StatusBadRequest,
			message: predictions.MessageInvalidFileType,
		},
		{
			name:    "too large",
			upload:  func(*testing.T) *upload { return &upload{"eye.png", "image/png", make([]byte, 2<<10)} },
			status:  http.StatusRequestEntityTooLarge,
			message: predictions.MessageFileTooLarge + "1 KB",
		},
		{
			name:    "not an image",
			upload:  func(*testing.T) *upload { return &upload{"eye.png", "image/png", []byte("definitely not a png")} },
			status:  http.StatusBadRequest,
			message: predictions.MessageInvalidImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, 1<<10)

			rec := httptest.NewRecorder()
			e.handler.Predict(rec, newRequest(t, "/predict", tt.upload(t)))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			body := decode[map[string]string](t, rec)
			if body["error"] != tt.message {
				t.Errorf("error = %q, want %q", body["error"], tt.message)
			}
			if e.runner.calls != 0 {
				t.Error("pipeline ran for a rejected upload")
			}
			assertEmptyDir(t, e.uploadDir)
		})
	}
}

func TestPredictPipelineErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "invalid input",
			err:     fmt.Errorf("%w: %w: corrupt", pipeline.ErrDetectFailed, pipeline.ErrInvalidInput),
			status:  http.StatusBadRequest,
			message: predictions.MessageInvalidImage,
		},
		{
			name:    "internal failure",
			err:     fmt.Errorf("%w: session closed", pipeline.ErrClassifyFailed),
			status:  http.StatusInternalServerError,
			message: predictions.MessageProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, 5<<20)
			e.runner.err = tt.err

			rec := httptest.NewRecorder()
			e.handler.Predict(rec, newRequest(t, "/predict", &upload{"eye.png", "image/png", pngBytes(t, 16)}))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			body := decode[map[string]string](t, rec)
			if body["error"] != tt.message {
				t.Errorf("error = %q, want %q", body["error"], tt.message)
			}
			if strings.Contains(rec.Body.String(), "session closed") {
				t.Error("internal detail leaked to the client")
			}
			assertEmptyDir(t, e.uploadDir)
		})
	}
}

type failingStore struct {
	storage.System
	failOn string
}

func (s failingStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	if strings.HasPrefix(key, s.failOn) {
		return errors.New("bucket unavailable")
	}
	return s.System.Upload(ctx, key, r, contentType)
}

func TestPredictPublishFailureRemovesScratch(t *testing.T) {
	tests := []struct {
		name        string
		failOn      string
		wantErr     bool
		wantHeatmap bool
	}{
		{"boxed upload fails", "boxed_", true, false},
		{"heatmap upload fails", "heatmap_", false, false},
		{"both published", "none_", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, 5<<20)
			e.runner.heatmap = true
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			sys := predictions.New(e.runner, failingStore{System: e.store, failOn: tt.failOn}, "/static/results", logger)

			input := filepath.Join(t.TempDir(), "eye.png")
			if err := os.WriteFile(input, pngBytes(t, 16), 0o644); err != nil {
				t.Fatal(err)
			}

			resp, err := sys.Predict(context.Background(), input, true)

			if tt.wantErr {
				if !errors.Is(err, predictions.ErrPublishFailed) {
					t.Errorf("got %v, want ErrPublishFailed", err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got := resp.HeatmapURL != ""; got != tt.wantHeatmap {
					t.Errorf("heatmap_url = %q, want present=%v", resp.HeatmapURL, tt.wantHeatmap)
				}
			}
			assertEmptyDir(t, e.runner.scratch)
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{predictions.ErrMissingFilename, http.StatusBadRequest},
		{predictions.ErrUnsupportedType, http.StatusBadRequest},
		{predictions.ErrInvalidFileType, http.StatusBadRequest},
		{predictions.ErrUploadFailed, http.StatusBadRequest},
		{predictions.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("wrap: %w", pipeline.ErrInvalidInput), http.StatusBadRequest},
		{predictions.ErrPublishFailed, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := predictions.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus = %d, want %d", got, tt.want)
			}
		})
	}
}
