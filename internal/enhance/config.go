package enhance

import "fmt"

// Config holds the enhancement parameters. Defaults reproduce the
// preprocessing the classifier was trained with.
type Config struct {
	ClipLimit       float64 `toml:"clip_limit"`
	TileGrid        int     `toml:"tile_grid"`
	DenoiseStrength float32 `toml:"denoise_strength"`
	DenoiseColor    float32 `toml:"denoise_color"`
	TemplateWindow  int     `toml:"template_window"`
	SearchWindow    int     `toml:"search_window"`
}

// Finalize applies defaults and validation.
func (c *Config) Finalize() error {
	c.loadDefaults()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.ClipLimit != 0 {
		c.ClipLimit = overlay.ClipLimit
	}
	if overlay.TileGrid != 0 {
		c.TileGrid = overlay.TileGrid
	}
	if overlay.DenoiseStrength != 0 {
		c.DenoiseStrength = overlay.DenoiseStrength
	}
	if overlay.DenoiseColor != 0 {
		c.DenoiseColor = overlay.DenoiseColor
	}
	if overlay.TemplateWindow != 0 {
		c.TemplateWindow = overlay.TemplateWindow
	}
	if overlay.SearchWindow != 0 {
		c.SearchWindow = overlay.SearchWindow
	}
}

func (c *Config) loadDefaults() {
	if c.ClipLimit == 0 {
		c.ClipLimit = 2.0
	}
	if c.TileGrid == 0 {
		c.TileGrid = 8
	}
	if c.DenoiseStrength == 0 {
		c.DenoiseStrength = 10
	}
	if c.DenoiseColor == 0 {
		c.DenoiseColor = 10
	}
	if c.TemplateWindow == 0 {
		c.TemplateWindow = 7
	}
	if c.SearchWindow == 0 {
		c.SearchWindow = 21
	}
}

func (c *Config) validate() error {
	if c.ClipLimit < 0 {
		return fmt.Errorf("invalid clip_limit: %v", c.ClipLimit)
	}
	if c.TileGrid < 1 {
		return fmt.Errorf("invalid tile_grid: %d", c.TileGrid)
	}
	if c.TemplateWindow%2 == 0 || c.SearchWindow%2 == 0 {
		return fmt.Errorf("template_window and search_window must be odd")
	}
	return nil
}
