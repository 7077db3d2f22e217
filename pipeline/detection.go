// Package pipeline - Assembles decoded detections, synthesized masks and
// overlay colors into the per-cycle live detection set.
package pipeline

import (
	"image"
	"image/color"

	"github.com/golang/geo/r3"

	"github.com/maskar-ai/go-maskar/images"
)

// LiveDetection is one detection of the current cycle, enriched with its
// rendered mask bitmaps, overlay color and optional world placement. The
// live set is replaced wholesale every cycle.
type LiveDetection struct {
	// Class is the model class id; ClassName its label-table name.
	Class     int
	ClassName string
	// Confidence is the winning class score.
	Confidence float32
	// Box is the detection box in model input-pixel space.
	Box images.RectF

	// NormWidth and NormHeight are the box size divided by the input
	// resolution; Coverage is their product.
	NormWidth  float32
	NormHeight float32
	Coverage   float32

	// WorldPoint is the raycast hit behind the box center. HasWorldPoint
	// is false when the raycast missed; the detection then stays visible
	// but cannot be anchored.
	WorldPoint    r3.Vector
	HasWorldPoint bool

	// EstimatedWidth and EstimatedHeight are the pinhole-projected
	// real-world box size in meters, valid only with a world point.
	EstimatedWidth  float64
	EstimatedHeight float64

	// Solid and Outline are the rendered mask bitmaps; both nil when the
	// crop was degenerate or synthesis failed.
	Solid   *image.NRGBA
	Outline *image.NRGBA
	// Overlay is the chosen mask color.
	Overlay color.NRGBA
}

// QualityScore blends confidence and coverage for anchor-update gating.
// Scores are comparable only between detections of the same class.
func (d LiveDetection) QualityScore() float32 {
	return 0.7*d.Confidence + 0.3*d.Coverage
}

// HasMask reports whether mask rendering produced bitmaps.
func (d LiveDetection) HasMask() bool {
	return d.Solid != nil
}
