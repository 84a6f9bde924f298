package models_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/pallor/internal/models"
	"github.com/JaimeStill/pallor/internal/tensor"
)

func newInferenceServer(t *testing.T, gradient bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /names", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"0": "palpebral", "1": "eye"})
	})
	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Shape []int     `json:"shape"`
			Data  []float32 `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Data) != tensor.Len {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]float32{"probability": 0.82})
	})
	mux.HandleFunc("POST /gradient", func(w http.ResponseWriter, r *http.Request) {
		if !gradient {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"shape":    tensor.Shape,
			"gradient": make([]float32, tensor.Len),
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func remoteConfig(t *testing.T, url string) *models.Config {
	t.Helper()
	cfg := &models.Config{Backend: models.BackendRemote, RemoteURL: url}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	return cfg
}

func TestLoadRemote(t *testing.T) {
	srv := newInferenceServer(t, true)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	set, err := models.Load(context.Background(), remoteConfig(t, srv.URL), logger)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer set.Close()

	names := set.Detector.Names()
	if names[0] != "palpebral" || names[1] != "eye" {
		t.Errorf("names: got %v", names)
	}

	in, err := tensor.New(make([]float32, tensor.Len))
	if err != nil {
		t.Fatalf("tensor: %v", err)
	}

	p, err := set.Classifier.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	if p != 0.82 {
		t.Errorf("probability: got %v, want 0.82", p)
	}

	grad, err := set.Classifier.Gradient(context.Background(), in)
	if err != nil {
		t.Fatalf("gradient failed: %v", err)
	}
	if len(grad) != tensor.Len {
		t.Errorf("gradient len: got %d, want %d", len(grad), tensor.Len)
	}
}

func TestRemoteGradientUnavailable(t *testing.T) {
	srv := newInferenceServer(t, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	set, err := models.Load(context.Background(), remoteConfig(t, srv.URL), logger)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer set.Close()

	in, _ := tensor.New(make([]float32, tensor.Len))
	if _, err := set.Classifier.Gradient(context.Background(), in); !errors.Is(err, models.ErrGradientUnavailable) {
		t.Errorf("got %v, want ErrGradientUnavailable", err)
	}
}

func TestLoadRemoteUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := models.Load(context.Background(), remoteConfig(t, srv.URL), logger)
	if !errors.Is(err, models.ErrModelUnavailable) {
		t.Errorf("got %v, want ErrModelUnavailable", err)
	}
}

func TestLoadONNXMissingFiles(t *testing.T) {
	cfg := &models.Config{Dir: t.TempDir()}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := models.Load(context.Background(), cfg, logger)
	if !errors.Is(err, models.ErrModelUnavailable) {
		t.Errorf("got %v, want ErrModelUnavailable", err)
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Setenv("TEST_MODELS_BACKEND", "remote")
	t.Setenv("TEST_MODELS_URL", "http://inference:9000")

	cfg := &models.Config{}
	env := &models.Env{Backend: "TEST_MODELS_BACKEND", RemoteURL: "TEST_MODELS_URL"}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.Backend != models.BackendRemote {
		t.Errorf("backend: got %s, want remote", cfg.Backend)
	}
	if cfg.DetectorPath() != "models/conjunctiva_detector.onnx" {
		t.Errorf("detector path: got %s", cfg.DetectorPath())
	}
	if cfg.GradientPath() != "" {
		t.Errorf("gradient path: got %s, want empty", cfg.GradientPath())
	}

	bad := &models.Config{Backend: models.BackendRemote}
	if err := bad.Finalize(nil); err == nil {
		t.Error("expected error for remote backend without url")
	}
}

func TestConfigConcurrent(t *testing.T) {
	tests := []struct {
		name    string
		cfg     models.Config
		wantErr bool
	}{
		{"onnx serialized", models.Config{Backend: models.BackendONNX}, false},
		{"onnx concurrent", models.Config{Backend: models.BackendONNX, Concurrent: true}, true},
		{"remote concurrent", models.Config{Backend: models.BackendRemote, RemoteURL: "http://inference:9000", Concurrent: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("Finalize error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("env cannot enable onnx concurrency", func(t *testing.T) {
		t.Setenv("TEST_MODELS_CONCURRENT", "true")
		cfg := &models.Config{}
		if err := cfg.Finalize(&models.Env{Concurrent: "TEST_MODELS_CONCURRENT"}); err == nil {
			t.Error("expected error for concurrent onnx backend")
		}
	})
}
