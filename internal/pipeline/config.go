package pipeline

import (
	"fmt"
	"os"

	"github.com/JaimeStill/pallor/internal/enhance"
	"github.com/JaimeStill/pallor/internal/explain"
	"github.com/JaimeStill/pallor/internal/region"
)

// Config holds the results location and the per-stage settings.
type Config struct {
	ResultsDir string         `toml:"results_dir"`
	Region     region.Config  `toml:"region"`
	Enhance    enhance.Config `toml:"enhance"`
	Explain    explain.Config `toml:"explain"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	ResultsDir string
	Region     *region.Env
}

// Finalize applies defaults, environment variable overrides, and validation
// to the pipeline and every stage.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}

	var regionEnv *region.Env
	if env != nil {
		regionEnv = env.Region
	}
	if err := c.Region.Finalize(regionEnv); err != nil {
		return fmt.Errorf("region: %w", err)
	}
	if err := c.Enhance.Finalize(); err != nil {
		return fmt.Errorf("enhance: %w", err)
	}
	if err := c.Explain.Finalize(); err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.ResultsDir != "" {
		c.ResultsDir = overlay.ResultsDir
	}
	c.Region.Merge(&overlay.Region)
	c.Enhance.Merge(&overlay.Enhance)
	c.Explain.Merge(&overlay.Explain)
}

func (c *Config) loadDefaults() {
	if c.ResultsDir == "" {
		c.ResultsDir = "var/results"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.ResultsDir != "" {
		if v := os.Getenv(env.ResultsDir); v != "" {
			c.ResultsDir = v
		}
	}
}
