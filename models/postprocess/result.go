// Package postprocess - Postprocessing utilities for detection heads.
package postprocess

import "github.com/maskar-ai/go-maskar/images"

// Result represents a single decoded detection candidate.
type Result struct {
	// The bounding box of the result in input-pixel space.
	Box images.RectF
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
	// Coefficients holds the per-instance mask coefficients used to blend
	// prototype planes into this detection's mask.
	Coefficients []float32
	// Anchor is the proposal-column index this result was decoded from.
	Anchor int
}
