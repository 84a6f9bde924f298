package explain

import (
	"fmt"

	"github.com/JaimeStill/pallor/pkg/formatting"
)

const (
	defaultLowPercentile = 40
	defaultThreshold     = 0.4
	defaultGrayWeight    = 0.45
	defaultHeatWeight    = 0.65
)

// Config holds saliency and overlay parameters. Fields where zero is a
// meaningful setting are pointers; nil means unset.
type Config struct {
	LowPercentile  *float64 `toml:"low_percentile"`
	HighPercentile float64  `toml:"high_percentile"`
	Threshold      *float64 `toml:"threshold"`
	BlurKernel     int      `toml:"blur_kernel"`
	BlurSigma      float64  `toml:"blur_sigma"`
	GrayWeight     *float64 `toml:"gray_weight"`
	HeatWeight     *float64 `toml:"heat_weight"`
	MaxOutputSize  string   `toml:"max_output_size"`
}

// Percentiles returns the normalization bounds.
func (c *Config) Percentiles() (low, high float64) {
	return valueOr(c.LowPercentile, defaultLowPercentile), c.HighPercentile
}

// Cutoff returns the saliency threshold.
func (c *Config) Cutoff() float64 {
	return valueOr(c.Threshold, defaultThreshold)
}

// Weights returns the grayscale and heat layer blend weights.
func (c *Config) Weights() (gray, heat float64) {
	return valueOr(c.GrayWeight, defaultGrayWeight), valueOr(c.HeatWeight, defaultHeatWeight)
}

// MaxOutputBytes returns MaxOutputSize as a byte count.
func (c *Config) MaxOutputBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxOutputSize)
	if err != nil {
		return 50 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults and validation.
func (c *Config) Finalize() error {
	c.loadDefaults()
	return c.validate()
}

// Merge overwrites non-zero and non-nil fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.LowPercentile != nil {
		c.LowPercentile = overlay.LowPercentile
	}
	if overlay.HighPercentile != 0 {
		c.HighPercentile = overlay.HighPercentile
	}
	if overlay.Threshold != nil {
		c.Threshold = overlay.Threshold
	}
	if overlay.BlurKernel != 0 {
		c.BlurKernel = overlay.BlurKernel
	}
	if overlay.BlurSigma != 0 {
		c.BlurSigma = overlay.BlurSigma
	}
	if overlay.GrayWeight != nil {
		c.GrayWeight = overlay.GrayWeight
	}
	if overlay.HeatWeight != nil {
		c.HeatWeight = overlay.HeatWeight
	}
	if overlay.MaxOutputSize != "" {
		c.MaxOutputSize = overlay.MaxOutputSize
	}
}

func (c *Config) loadDefaults() {
	if c.LowPercentile == nil {
		c.LowPercentile = pointer(defaultLowPercentile)
	}
	if c.HighPercentile == 0 {
		c.HighPercentile = 99
	}
	if c.Threshold == nil {
		c.Threshold = pointer(defaultThreshold)
	}
	if c.BlurKernel == 0 {
		c.BlurKernel = 7
	}
	if c.BlurSigma == 0 {
		c.BlurSigma = 1.5
	}
	if c.GrayWeight == nil {
		c.GrayWeight = pointer(defaultGrayWeight)
	}
	if c.HeatWeight == nil {
		c.HeatWeight = pointer(defaultHeatWeight)
	}
	if c.MaxOutputSize == "" {
		c.MaxOutputSize = "50MB"
	}
}

func (c *Config) validate() error {
	low, high := c.Percentiles()
	if low < 0 || high > 100 || low >= high {
		return fmt.Errorf("percentiles must satisfy 0 <= low < high <= 100: %v, %v", low, high)
	}
	if t := c.Cutoff(); t < 0 || t > 1 {
		return fmt.Errorf("threshold must be in [0,1]: %v", t)
	}
	if gray, heat := c.Weights(); gray < 0 || heat < 0 {
		return fmt.Errorf("blend weights must be non-negative: %v, %v", gray, heat)
	}
	if c.BlurKernel < 1 || c.BlurKernel%2 == 0 {
		return fmt.Errorf("blur_kernel must be a positive odd number: %d", c.BlurKernel)
	}
	if c.BlurSigma <= 0 {
		return fmt.Errorf("invalid blur_sigma: %v", c.BlurSigma)
	}
	if _, err := formatting.ParseBytes(c.MaxOutputSize); err != nil {
		return fmt.Errorf("invalid max_output_size: %w", err)
	}
	return nil
}

func pointer(v float64) *float64 {
	return &v
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
