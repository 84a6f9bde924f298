package config

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/JaimeStill/pallor/pkg/formatting"
	"github.com/JaimeStill/pallor/pkg/middleware"
	"github.com/JaimeStill/pallor/pkg/openapi"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "PALLOR_CORS_ENABLED",
	Origins:          "PALLOR_CORS_ORIGINS",
	AllowedMethods:   "PALLOR_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "PALLOR_CORS_ALLOWED_HEADERS",
	AllowCredentials: "PALLOR_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "PALLOR_CORS_MAX_AGE",
}

var openapiEnv = &openapi.ConfigEnv{
	Title:       "PALLOR_OPENAPI_TITLE",
	Description: "PALLOR_OPENAPI_DESCRIPTION",
}

var defaultOrigins = []string{
	"http://localhost",
	"http://localhost:8000",
	"http://127.0.0.1:8000",
}

// APIConfig holds API routing, upload, and CORS settings.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	UploadDir     string                `toml:"upload_dir"`
	CORS          middleware.CORSConfig `toml:"cors"`
	OpenAPI       openapi.Config        `toml:"openapi"`
}

// MaxUploadSizeBytes returns MaxUploadSize as a byte count.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 5 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and OpenAPI configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.OpenAPI.Finalize(openapiEnv); err != nil {
		return fmt.Errorf("openapi: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if overlay.UploadDir != "" {
		c.UploadDir = overlay.UploadDir
	}
	c.CORS.Merge(&overlay.CORS)
	c.OpenAPI.Merge(&overlay.OpenAPI)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "5MB"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	// local development policy when no origins are configured
	if c.CORS.Origins == nil {
		c.CORS.Origins = defaultOrigins
		c.CORS.AllowCredentials = true
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("PALLOR_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("PALLOR_API_MAX_UPLOAD_SIZE"); v != "" {
		c.MaxUploadSize = v
	}
	if v := os.Getenv("PALLOR_API_UPLOAD_DIR"); v != "" {
		c.UploadDir = v
	}
}

func (c *APIConfig) validate() error {
	if !strings.HasPrefix(c.BasePath, "/") || path.Clean(c.BasePath) != c.BasePath {
		return fmt.Errorf("invalid base_path: %q", c.BasePath)
	}
	if _, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	return nil
}
