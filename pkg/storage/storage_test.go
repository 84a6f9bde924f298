package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JaimeStill/pallor/pkg/lifecycle"
	"github.com/JaimeStill/pallor/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=pallorstore;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/pallorstore;"

func newFilesystem(t *testing.T) storage.System {
	t.Helper()
	cfg := &storage.Config{Root: filepath.Join(t.TempDir(), "results")}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	sys, err := storage.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	lc := lifecycle.New()
	if err := sys.Start(lc); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := lc.WaitForStartup(); err != nil {
		t.Fatalf("startup: %v", err)
	}
	return sys
}

func TestNewAzure(t *testing.T) {
	tests := []struct {
		name    string
		conn    string
		wantErr bool
	}{
		{name: "valid", conn: azuriteConnString},
		{name: "invalid", conn: "not-a-connection-string", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &storage.Config{
				Backend:          storage.BackendAzure,
				ContainerName:    "results",
				ConnectionString: tt.conn,
			}
			_, err := storage.New(cfg, slog.Default())
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFilesystemRoundTrip(t *testing.T) {
	sys := newFilesystem(t)
	ctx := context.Background()

	if err := sys.Upload(ctx, "boxed_eye.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	exists, err := sys.Exists(ctx, "boxed_eye.jpg")
	if err != nil || !exists {
		t.Fatalf("exists: got %v, %v", exists, err)
	}

	blob, err := sys.Download(ctx, "boxed_eye.jpg")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(blob.Body)
	blob.Body.Close()

	if string(data) != "jpeg-bytes" {
		t.Errorf("body: got %q", data)
	}
	if blob.ContentType != "image/jpeg" {
		t.Errorf("content type: got %s", blob.ContentType)
	}
	if blob.ContentLength != int64(len("jpeg-bytes")) {
		t.Errorf("content length: got %d", blob.ContentLength)
	}

	if err := sys.Delete(ctx, "boxed_eye.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := sys.Download(ctx, "boxed_eye.jpg"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("download after delete: got %v, want ErrNotFound", err)
	}
	if err := sys.Delete(ctx, "boxed_eye.jpg"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestFilesystemRejectsKeys(t *testing.T) {
	sys := newFilesystem(t)
	ctx := context.Background()

	tests := []struct {
		key  string
		want error
	}{
		{key: "", want: storage.ErrEmptyKey},
		{key: "../escape.png", want: storage.ErrInvalidKey},
		{key: "a/../../escape.png", want: storage.ErrInvalidKey},
		{key: "/etc/passwd", want: storage.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if _, err := sys.Download(ctx, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: storage.ErrNotFound, want: http.StatusNotFound},
		{name: "empty key", err: storage.ErrEmptyKey, want: http.StatusBadRequest},
		{name: "invalid key", err: storage.ErrInvalidKey, want: http.StatusBadRequest},
		{name: "other", err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storage.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	if got := storage.ContentType("heatmap_eye.PNG"); got != "image/png" {
		t.Errorf("png: got %s", got)
	}
	if got := storage.ContentType("unknown.zzz"); got != "application/octet-stream" {
		t.Errorf("unknown: got %s", got)
	}
}
