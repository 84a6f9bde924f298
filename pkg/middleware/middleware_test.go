package middleware_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/pallor/pkg/middleware"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func enabled(v bool) *bool { return &v }

func TestApplyOrder(t *testing.T) {
	var order []string
	var stack middleware.Stack

	stack.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "first")
			next.ServeHTTP(w, r)
		})
	})
	stack.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "second")
			next.ServeHTTP(w, r)
		})
	})

	handler := stack.Apply(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if strings.Join(order, ",") != "first,second,handler" {
		t.Errorf("order: got %v, want [first second handler]", order)
	}
	if stack.Len() != 2 {
		t.Errorf("len: got %d, want 2", stack.Len())
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        middleware.CORSConfig
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{
			name:       "disabled",
			cfg:        middleware.CORSConfig{Enabled: enabled(false), Origins: []string{"http://localhost"}},
			method:     "GET",
			origin:     "http://localhost",
			wantStatus: http.StatusOK,
		},
		{
			name:       "allowed origin",
			cfg:        middleware.CORSConfig{Origins: []string{"http://localhost:8000"}},
			method:     "GET",
			origin:     "http://localhost:8000",
			wantOrigin: "http://localhost:8000",
			wantStatus: http.StatusOK,
		},
		{
			name:       "disallowed origin",
			cfg:        middleware.CORSConfig{Origins: []string{"http://localhost"}},
			method:     "GET",
			origin:     "http://evil.example",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wildcard",
			cfg:        middleware.CORSConfig{Origins: []string{"*"}},
			method:     "POST",
			origin:     "http://any.example",
			wantOrigin: "http://any.example",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight",
			cfg:        middleware.CORSConfig{Origins: []string{"http://localhost"}},
			method:     "OPTIONS",
			origin:     "http://localhost",
			wantOrigin: "http://localhost",
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if err := cfg.Finalize(nil); err != nil {
				t.Fatalf("finalize: %v", err)
			}

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			middleware.CORS(&cfg)(http.HandlerFunc(ok)).ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow-origin: got %q, want %q", got, tt.wantOrigin)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORSCredentials(t *testing.T) {
	cfg := middleware.CORSConfig{Origins: []string{"http://localhost"}, AllowCredentials: true}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://localhost")
	middleware.CORS(&cfg)(http.HandlerFunc(ok)).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow-credentials: got %q, want true", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("allow-methods: got %q", got)
	}
}

func TestCORSMerge(t *testing.T) {
	base := middleware.CORSConfig{Origins: []string{"http://localhost"}}
	base.Merge(&middleware.CORSConfig{Enabled: enabled(false)})
	if err := base.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if base.IsEnabled() {
		t.Error("overlay should disable CORS")
	}
	if len(base.Origins) != 1 {
		t.Errorf("origins should survive merge: %v", base.Origins)
	}
}

func TestCORSEnv(t *testing.T) {
	t.Setenv("TEST_CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("TEST_CORS_ENABLED", "false")

	var cfg middleware.CORSConfig
	env := &middleware.CORSEnv{Origins: "TEST_CORS_ORIGINS", Enabled: "TEST_CORS_ENABLED"}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if len(cfg.Origins) != 2 || cfg.Origins[1] != "http://b.example" {
		t.Errorf("origins: got %v", cfg.Origins)
	}
	if cfg.IsEnabled() {
		t.Error("env should disable CORS")
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := middleware.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		io.WriteString(w, "too large")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/predict", nil))

	out := buf.String()
	if !strings.Contains(out, "status=413") {
		t.Errorf("log missing status: %s", out)
	}
	if !strings.Contains(out, "uri=/api/predict") {
		t.Errorf("log missing uri: %s", out)
	}
}

func TestRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := middleware.Recover(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
}
