package region

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/JaimeStill/pallor/pkg/formatting"
)

// Config holds detector thresholds and input limits.
type Config struct {
	Confidence      float64  `toml:"detect_confidence"`
	MaxDimension    int      `toml:"max_dimension"`
	MaxFileSize     string   `toml:"max_file_size"`
	Size            int      `toml:"region_size"`
	AcceptedClasses []string `toml:"accepted_classes"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Confidence      string
	MaxDimension    string
	MaxFileSize     string
	AcceptedClasses string
}

// MaxFileSizeBytes returns MaxFileSize as a byte count.
func (c *Config) MaxFileSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 100 * 1024 * 1024
	}
	return size
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
	if overlay.Confidence != 0 {
		c.Confidence = overlay.Confidence
	}
	if overlay.MaxDimension != 0 {
		c.MaxDimension = overlay.MaxDimension
	}
	if overlay.MaxFileSize != "" {
		c.MaxFileSize = overlay.MaxFileSize
	}
	if overlay.Size != 0 {
		c.Size = overlay.Size
	}
	if overlay.AcceptedClasses != nil {
		c.AcceptedClasses = overlay.AcceptedClasses
	}
}

func (c *Config) loadDefaults() {
	if c.Confidence == 0 {
		c.Confidence = 0.25
	}
	if c.MaxDimension == 0 {
		c.MaxDimension = 2048
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = "100MB"
	}
	if c.Size == 0 {
		c.Size = 224
	}
	if len(c.AcceptedClasses) == 0 {
		c.AcceptedClasses = []string{"palpebral", "forniceal_palpebral", "eye"}
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Confidence != "" {
		if v := os.Getenv(env.Confidence); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.Confidence = f
			}
		}
	}
	if env.MaxDimension != "" {
		if v := os.Getenv(env.MaxDimension); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxDimension = n
			}
		}
	}
	if env.MaxFileSize != "" {
		if v := os.Getenv(env.MaxFileSize); v != "" {
			c.MaxFileSize = v
		}
	}
	if env.AcceptedClasses != "" {
		if v := os.Getenv(env.AcceptedClasses); v != "" {
			classes := strings.Split(v, ",")
			c.AcceptedClasses = make([]string, 0, len(classes))
			for _, class := range classes {
				if trimmed := strings.TrimSpace(class); trimmed != "" {
					c.AcceptedClasses = append(c.AcceptedClasses, trimmed)
				}
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("detect_confidence must be in (0,1): %v", c.Confidence)
	}
	if c.MaxDimension <= 0 {
		return fmt.Errorf("invalid max_dimension: %d", c.MaxDimension)
	}
	if _, err := formatting.ParseBytes(c.MaxFileSize); err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	if c.Size <= 0 {
		return fmt.Errorf("invalid region_size: %d", c.Size)
	}
	if len(c.AcceptedClasses) == 0 {
		return fmt.Errorf("accepted_classes required")
	}
	return nil
}
