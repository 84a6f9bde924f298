// Package config loads the service configuration from config.toml, an
// optional environment overlay, and PALLOR_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/pallor/internal/models"
	"github.com/JaimeStill/pallor/internal/pipeline"
	"github.com/JaimeStill/pallor/internal/region"
	"github.com/JaimeStill/pallor/pkg/storage"
	"github.com/JaimeStill/pallor/pkg/tracing"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvPallorEnv             = "PALLOR_ENV"
	EnvPallorConfig          = "PALLOR_CONFIG"
	EnvPallorShutdownTimeout = "PALLOR_SHUTDOWN_TIMEOUT"
	EnvPallorVersion         = "PALLOR_VERSION"
)

var storageEnv = &storage.Env{
	Backend:          "PALLOR_STORAGE_BACKEND",
	Root:             "PALLOR_STORAGE_ROOT",
	ContainerName:    "PALLOR_STORAGE_CONTAINER_NAME",
	ConnectionString: "PALLOR_STORAGE_CONNECTION_STRING",
}

var modelsEnv = &models.Env{
	Backend:        "PALLOR_MODELS_BACKEND",
	Dir:            "PALLOR_MODELS_DIR",
	Detector:       "PALLOR_MODELS_DETECTOR",
	Classifier:     "PALLOR_MODELS_CLASSIFIER",
	Gradient:       "PALLOR_MODELS_GRADIENT",
	NamesFile:      "PALLOR_MODELS_NAMES_FILE",
	RuntimeLibrary: "PALLOR_MODELS_RUNTIME_LIBRARY",
	RemoteURL:      "PALLOR_MODELS_REMOTE_URL",
	RemoteTimeout:  "PALLOR_MODELS_REMOTE_TIMEOUT",
	Concurrent:     "PALLOR_MODELS_CONCURRENT",
}

var pipelineEnv = &pipeline.Env{
	ResultsDir: "PALLOR_RESULTS_DIR",
	Region: &region.Env{
		Confidence:      "PALLOR_DETECT_CONFIDENCE",
		MaxDimension:    "PALLOR_MAX_DIMENSION",
		MaxFileSize:     "PALLOR_MAX_FILE_SIZE",
		AcceptedClasses: "PALLOR_ACCEPTED_CLASSES",
	},
}

var tracingEnv = &tracing.Env{
	Enabled:     "PALLOR_TRACING_ENABLED",
	Endpoint:    "PALLOR_TRACING_ENDPOINT",
	Insecure:    "PALLOR_TRACING_INSECURE",
	ServiceName: "PALLOR_TRACING_SERVICE_NAME",
	SampleRate:  "PALLOR_TRACING_SAMPLE_RATE",
}

// Config is the root configuration shared by the server and the CLI.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	API             APIConfig       `toml:"api"`
	Storage         storage.Config  `toml:"storage"`
	Models          models.Config   `toml:"models"`
	Pipeline        pipeline.Config `toml:"pipeline"`
	Tracing         tracing.Config  `toml:"tracing"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the PALLOR_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvPallorEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (PALLOR_CONFIG or config.toml, if present),
// applies any environment overlay, and finalizes all values. Without a
// config file, defaults and environment variables provide everything.
func Load() (*Config, error) {
	cfg := &Config{}

	base := BaseConfigFile
	if v := os.Getenv(EnvPallorConfig); v != "" {
		base = v
	}

	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(base); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sections.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.API.Merge(&overlay.API)
	c.Storage.Merge(&overlay.Storage)
	c.Models.Merge(&overlay.Models)
	c.Pipeline.Merge(&overlay.Pipeline)
	c.Tracing.Merge(&overlay.Tracing)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(serverEnv); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Models.Finalize(modelsEnv); err != nil {
		return fmt.Errorf("models: %w", err)
	}
	if err := c.Pipeline.Finalize(pipelineEnv); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Tracing.Finalize(tracingEnv); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return c.validateLayout()
}

// validateLayout rejects a filesystem storage root that is also the pipeline
// scratch directory; publishing removes scratch copies after upload.
func (c *Config) validateLayout() error {
	if c.Storage.Backend != storage.BackendFilesystem {
		return nil
	}
	root, err := filepath.Abs(c.Storage.Root)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	results, err := filepath.Abs(c.Pipeline.ResultsDir)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if root == results {
		return fmt.Errorf("pipeline.results_dir must differ from storage.root: %s", root)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvPallorShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvPallorVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

func overlayPath(base string) string {
	env := os.Getenv(EnvPallorEnv)
	if env == "" {
		return ""
	}

	path := filepath.Join(filepath.Dir(base), fmt.Sprintf(OverlayConfigPattern, env))
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
