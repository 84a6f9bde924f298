package predictions

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/JaimeStill/pallor/internal/pipeline"
	"github.com/JaimeStill/pallor/internal/region"
	"github.com/JaimeStill/pallor/pkg/formatting"
	"github.com/JaimeStill/pallor/pkg/handlers"
	"github.com/JaimeStill/pallor/pkg/module"
)

// formOverhead is the allowance for multipart boundaries and headers on top
// of the file size limit.
const formOverhead = 64 << 10

// Handler provides HTTP endpoints for predictions.
type Handler struct {
	sys           System
	uploadDir     string
	maxUploadSize int64
	logger        *slog.Logger
}

// NewHandler creates a Handler that stages uploads in uploadDir and rejects
// files larger than maxUploadSize bytes.
func NewHandler(sys System, uploadDir string, maxUploadSize int64, logger *slog.Logger) *Handler {
	return &Handler{
		sys:           sys,
		uploadDir:     uploadDir,
		maxUploadSize: maxUploadSize,
		logger:        logger.With("handler", "predictions"),
	}
}

// Routes returns the route group definition for prediction endpoints.
func (h *Handler) Routes() module.Group {
	return module.Group{
		Prefix: "/predict",
		Routes: []module.Route{
			{Method: "POST", Pattern: "", Handler: h.Predict},
		},
	}
}

// Predict analyzes a multipart "file" upload. The explain query parameter
// requests a saliency heatmap.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+formOverhead)

	file, header, err := h.formFile(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer file.Close()

	if err := h.check(file, header); err != nil {
		h.fail(w, err)
		return
	}

	staged, err := h.stage(file, header.Filename)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer func() {
		if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("staged upload not removed", "path", staged, "error", err)
		}
	}()

	resp, err := h.sys.Predict(r.Context(), staged, h.explain(r))
	if err != nil {
		h.fail(w, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, fmt.Errorf("%w: %w", ErrFileTooLarge, err)
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMissingFilename, err)
	}
	if header.Filename == "" {
		file.Close()
		return nil, nil, ErrMissingFilename
	}
	return file, header, nil
}

// check applies the extension, content type, size, and header checks in the
// order clients see them reported.
func (h *Handler) check(file multipart.File, header *multipart.FileHeader) error {
	if !region.SupportedExtension(header.Filename) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(header.Filename))
	}
	if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("%w: %q", ErrInvalidFileType, ct)
	}
	if header.Size > h.maxUploadSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, header.Size)
	}

	_, format, err := image.DecodeConfig(file)
	if err != nil {
		return fmt.Errorf("%w: undecodable image header: %w", pipeline.ErrInvalidInput, err)
	}
	h.logger.Debug("upload accepted", "format", format, "size", header.Size)

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return nil
}

// stage copies the upload into uploadDir under a random name that keeps the
// original extension.
func (h *Handler) stage(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	target := filepath.Join(h.uploadDir, uuid.New().String()+strings.ToLower(filepath.Ext(filename)))
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	_, err = io.Copy(out, file)
	if err = errors.Join(err, out.Close()); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return target, nil
}

func (h *Handler) explain(r *http.Request) bool {
	raw := r.URL.Query().Get("explain")
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		h.logger.Warn("invalid explain parameter", "value", raw)
		return false
	}
	return v
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	handlers.RespondMessage(
		w, h.logger,
		MapHTTPStatus(err),
		ClientMessage(err, formatting.FormatBytes(h.maxUploadSize, 0)),
		err,
	)
}
