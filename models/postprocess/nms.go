// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/maskar-ai/go-maskar/images"
)

// FilterConfig defines the candidate filtering parameters shared by the
// decoder and Non-Maximum Suppression.
type FilterConfig struct {
	// ConfidenceThreshold drops candidates whose best class score falls
	// below this value.
	ConfidenceThreshold float32
	// IoUThreshold is the overlap above which a lower-scored box of the same
	// class is suppressed.
	IoUThreshold float32
	// MaxDetections caps the surviving results per cycle. 0 means no cap.
	MaxDetections int
	// ClassAware restricts suppression to same-class pairs.
	ClassAware bool
	// AllowedClasses restricts decoding to these class ids. Nil or empty
	// admits every class.
	AllowedClasses []int
}

// DefaultFilterConfig returns the standard filtering parameters.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		ConfidenceThreshold: 0.75,
		IoUThreshold:        0.5,
		MaxDetections:       50,
		ClassAware:          true,
	}
}

// Clamp coerces out-of-range parameters into their valid ranges instead of
// failing, so a bad config degrades to sane behavior.
func (c *FilterConfig) Clamp() {
	c.ConfidenceThreshold = images.ClampF32(c.ConfidenceThreshold, 0, 1)
	c.IoUThreshold = images.ClampF32(c.IoUThreshold, 0, 1)
	if c.MaxDetections < 0 {
		c.MaxDetections = 0
	}
}

// Admits reports whether a class id passes the allow-list.
func (c *FilterConfig) Admits(class int) bool {
	if len(c.AllowedClasses) == 0 {
		return true
	}
	for _, id := range c.AllowedClasses {
		if id == class {
			return true
		}
	}
	return false
}

// SortByScore stable-sorts results by descending score in place. Equal
// scores keep their original relative order, so suppression outcomes are
// deterministic across runs.
func SortByScore(detections []Result) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Candidates are stable-sorted by descending score, then each surviving
// candidate suppresses every later candidate whose IoU with it exceeds
// the threshold. With ClassAware set, only same-class pairs suppress each
// other. The output stays sorted by descending score and is capped at
// MaxDetections.
//
// Running the result through the same call again changes nothing: every
// suppressing overlap was already removed.
//
// Arguments:
//   - detections: Slice of detection candidates, any order.
//   - config: Suppression parameters.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []Result, config FilterConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make([]Result, n)
	copy(sorted, detections)
	SortByScore(sorted)

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		if config.MaxDetections > 0 && len(filtered) >= config.MaxDetections {
			break
		}

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != sorted[j].Class {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
