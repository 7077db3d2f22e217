package pipeline

import (
	"image/color"

	"github.com/maskar-ai/go-maskar/colors"
	"github.com/maskar-ai/go-maskar/images"
	"github.com/maskar-ai/go-maskar/labels"
	"github.com/maskar-ai/go-maskar/masks"
	"github.com/maskar-ai/go-maskar/models/postprocess"
	"github.com/maskar-ai/go-maskar/models/yoloseg"
)

// Config is the recognized option surface of the live pipeline.
type Config struct {
	// Model describes the segmentation head geometry.
	Model yoloseg.Params `json:"model" yaml:"model"`
	// Filter holds confidence/IoU thresholds and the detection cap.
	Filter postprocess.FilterConfig `json:"filter" yaml:"filter"`

	// ClassAllowList restricts decoding to the named classes. Empty admits
	// every class the model knows. Names resolve through the label table.
	ClassAllowList []string `json:"class_allow_list" yaml:"class_allow_list"`

	// OutlineRadius is the circular neighborhood radius for edge masks.
	OutlineRadius int `json:"outline_radius" yaml:"outline_radius"`

	// AdaptiveColor samples the background behind each detection and picks
	// the maximal-contrast palette entry. Disabled, the first palette
	// entry is used for every detection.
	AdaptiveColor bool `json:"adaptive_color" yaml:"adaptive_color"`
	// ColorSamples is the background sampling budget per detection.
	ColorSamples int `json:"color_samples" yaml:"color_samples"`
	// OverlayAlpha is the requested overlay alpha before activation
	// scaling.
	OverlayAlpha uint8 `json:"overlay_alpha" yaml:"overlay_alpha"`
	// Palette lists the candidate overlay colors.
	Palette []color.NRGBA `json:"-" yaml:"-"`

	// HorizontalFOV is the capture camera's horizontal field of view in
	// degrees. It drives viewport rays and real-world size estimates; the
	// square model input makes the vertical field of view equal.
	HorizontalFOV float64 `json:"horizontal_fov" yaml:"horizontal_fov"`
}

// DefaultConfig returns the standard pipeline options.
func DefaultConfig() Config {
	return Config{
		Model:         yoloseg.COCOParams(),
		Filter:        postprocess.DefaultFilterConfig(),
		OutlineRadius: 2,
		AdaptiveColor: true,
		ColorSamples:  16,
		OverlayAlpha:  255,
		Palette:       colors.DefaultPalette(),
		HorizontalFOV: 60,
	}
}

// Clamp coerces invalid values into their valid ranges.
func (c *Config) Clamp() {
	c.Filter.Clamp()
	c.OutlineRadius = images.ClampInt(c.OutlineRadius, masks.MinOutlineRadius, masks.MaxOutlineRadius)
	if c.ColorSamples < 1 {
		c.ColorSamples = 1
	}
	if len(c.Palette) == 0 {
		c.Palette = colors.DefaultPalette()
	}
	if c.HorizontalFOV <= 0 || c.HorizontalFOV >= 180 {
		c.HorizontalFOV = 60
	}
	if c.Model.NumClasses < 1 || c.Model.NumMaskCoeffs < 1 || c.Model.NumAnchors < 1 ||
		c.Model.InputSize < 1 || c.Model.PrototypeSize < 1 {
		c.Model = yoloseg.COCOParams()
	}
}

// ResolveAllowList fills the filter's allowed-class ids from the configured
// class names.
func (c *Config) ResolveAllowList(table *labels.Set) error {
	if len(c.ClassAllowList) == 0 {
		c.Filter.AllowedClasses = nil
		return nil
	}
	ids, err := table.Resolve(c.ClassAllowList)
	if err != nil {
		return err
	}
	c.Filter.AllowedClasses = ids
	return nil
}
