package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Supported backends.
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Config selects and parameterizes the model backend.
type Config struct {
	Backend        string  `toml:"backend"`
	Dir            string  `toml:"dir"`
	Detector       string  `toml:"detector"`
	Classifier     string  `toml:"classifier"`
	Gradient       string  `toml:"gradient"`
	NamesFile      string  `toml:"names_file"`
	RuntimeLibrary string  `toml:"runtime_library"`
	InputSize      int     `toml:"input_size"`
	IoUThreshold   float64 `toml:"iou_threshold"`
	MaxDetections  int     `toml:"max_detections"`
	RemoteURL      string  `toml:"remote_url"`
	RemoteTimeout  string  `toml:"remote_timeout"`
	// Concurrent marks the engine as safe for concurrent inference.
	// When false every inference call is serialized per model.
	Concurrent bool `toml:"concurrent"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Backend        string
	Dir            string
	Detector       string
	Classifier     string
	Gradient       string
	NamesFile      string
	RuntimeLibrary string
	RemoteURL      string
	RemoteTimeout  string
	Concurrent     string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Dir != "" {
		c.Dir = overlay.Dir
	}
	if overlay.Detector != "" {
		c.Detector = overlay.Detector
	}
	if overlay.Classifier != "" {
		c.Classifier = overlay.Classifier
	}
	if overlay.Gradient != "" {
		c.Gradient = overlay.Gradient
	}
	if overlay.NamesFile != "" {
		c.NamesFile = overlay.NamesFile
	}
	if overlay.RuntimeLibrary != "" {
		c.RuntimeLibrary = overlay.RuntimeLibrary
	}
	if overlay.InputSize != 0 {
		c.InputSize = overlay.InputSize
	}
	if overlay.IoUThreshold != 0 {
		c.IoUThreshold = overlay.IoUThreshold
	}
	if overlay.MaxDetections != 0 {
		c.MaxDetections = overlay.MaxDetections
	}
	if overlay.RemoteURL != "" {
		c.RemoteURL = overlay.RemoteURL
	}
	if overlay.RemoteTimeout != "" {
		c.RemoteTimeout = overlay.RemoteTimeout
	}
	if overlay.Concurrent {
		c.Concurrent = true
	}
}

// DetectorPath resolves the detector model file against Dir.
func (c *Config) DetectorPath() string {
	return c.resolve(c.Detector)
}

// ClassifierPath resolves the classifier model file against Dir.
func (c *Config) ClassifierPath() string {
	return c.resolve(c.Classifier)
}

// GradientPath resolves the gradient graph file against Dir.
// Returns an empty string when no gradient graph is configured.
func (c *Config) GradientPath() string {
	if c.Gradient == "" {
		return ""
	}
	return c.resolve(c.Gradient)
}

// RemoteTimeoutDuration returns RemoteTimeout as a time.Duration.
func (c *Config) RemoteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RemoteTimeout)
	return d
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, name)
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendONNX
	}
	if c.Dir == "" {
		c.Dir = "models"
	}
	if c.Detector == "" {
		c.Detector = "conjunctiva_detector.onnx"
	}
	if c.Classifier == "" {
		c.Classifier = "anemia_model.onnx"
	}
	if c.InputSize == 0 {
		c.InputSize = 640
	}
	if c.IoUThreshold == 0 {
		c.IoUThreshold = 0.7
	}
	if c.MaxDetections == 0 {
		c.MaxDetections = 300
	}
	if c.RemoteTimeout == "" {
		c.RemoteTimeout = "30s"
	}
}

func (c *Config) loadEnv(env *Env) {
	set := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	set(env.Backend, &c.Backend)
	set(env.Dir, &c.Dir)
	set(env.Detector, &c.Detector)
	set(env.Classifier, &c.Classifier)
	set(env.Gradient, &c.Gradient)
	set(env.NamesFile, &c.NamesFile)
	set(env.RuntimeLibrary, &c.RuntimeLibrary)
	set(env.RemoteURL, &c.RemoteURL)
	set(env.RemoteTimeout, &c.RemoteTimeout)

	if env.Concurrent != "" {
		if v := os.Getenv(env.Concurrent); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Concurrent = b
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendONNX:
		if c.Concurrent {
			return fmt.Errorf("concurrent not supported by onnx backend: sessions bind one input and output tensor")
		}
	case BackendRemote:
		if c.RemoteURL == "" {
			return fmt.Errorf("remote_url required for remote backend")
		}
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("input_size must be a positive multiple of 32: %d", c.InputSize)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be in (0,1]: %v", c.IoUThreshold)
	}
	if _, err := time.ParseDuration(c.RemoteTimeout); err != nil {
		return fmt.Errorf("invalid remote_timeout: %w", err)
	}
	return nil
}
