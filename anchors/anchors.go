// Package anchors - Registry of world-anchored mask instances with
// quality-gated updates and distance-based render modes.
package anchors

import (
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/maskar-ai/go-maskar/spatial"
)

// RenderMode selects which of an anchor's bitmaps is displayed.
type RenderMode int

const (
	// ModeSolid displays the filled mask.
	ModeSolid RenderMode = iota
	// ModeOutline displays the edge-only mask.
	ModeOutline
)

// String returns the mode name for logs.
func (m RenderMode) String() string {
	switch m {
	case ModeSolid:
		return "solid"
	case ModeOutline:
		return "outline"
	default:
		return "unknown"
	}
}

// AnchoredMask is one persistent, world-placed mask instance. Its bitmaps
// are replaced wholesale on updates and never mutated in place.
type AnchoredMask struct {
	ID        uuid.UUID
	ClassName string
	Pose      spatial.Pose
	Solid     *image.NRGBA
	Outline   *image.NRGBA
	// Quality is the stored 0.7xconfidence + 0.3xcoverage score the anchor
	// was last updated with.
	Quality float32
	Mode    RenderMode
}

// Bitmap returns the bitmap bound to the current render mode.
func (a *AnchoredMask) Bitmap() *image.NRGBA {
	if a.Mode == ModeOutline {
		return a.Outline
	}
	return a.Solid
}

// Config holds the registry's tunable parameters. Distances are meters.
type Config struct {
	// SpawnDistance is the same-class dedup radius for explicit spawns;
	// auto-updates match within twice this radius.
	SpawnDistance float64 `json:"spawn_distance" yaml:"spawn_distance"`
	// UpdateInterval gates how often auto-updates run.
	UpdateInterval time.Duration `json:"update_interval" yaml:"update_interval"`
	// ImprovementThreshold is how much a new quality score must exceed the
	// stored one (strictly) before an auto-update replaces an anchor.
	ImprovementThreshold float64 `json:"improvement_threshold" yaml:"improvement_threshold"`
	// SurfaceOffset nudges anchors toward the viewer to avoid z-fighting
	// with the surface they were cast onto.
	SurfaceOffset float64 `json:"surface_offset" yaml:"surface_offset"`
	// OutlineDistance is the viewer distance below which anchors render as
	// outlines; at or beyond it they render solid.
	OutlineDistance float64 `json:"outline_distance" yaml:"outline_distance"`
	// BlendWidth widens the mode switch into a zone centered on
	// OutlineDistance; the blend factor is observable but the mode switch
	// stays hard at the midpoint.
	BlendWidth float64 `json:"blend_width" yaml:"blend_width"`
}

// DefaultConfig returns the standard registry parameters.
func DefaultConfig() Config {
	return Config{
		SpawnDistance:        0.25,
		UpdateInterval:       500 * time.Millisecond,
		ImprovementThreshold: 0.05,
		SurfaceOffset:        0.01,
		OutlineDistance:      1.0,
		BlendWidth:           0,
	}
}

// Clamp coerces invalid values into their valid ranges.
func (c *Config) Clamp() {
	if c.SpawnDistance <= 0 {
		c.SpawnDistance = 0.25
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 500 * time.Millisecond
	}
	if c.ImprovementThreshold < 0 {
		c.ImprovementThreshold = 0
	}
	if c.SurfaceOffset < 0 {
		c.SurfaceOffset = 0
	}
	if c.OutlineDistance < 0 {
		c.OutlineDistance = 0
	}
	if c.BlendWidth < 0 {
		c.BlendWidth = 0
	}
}
