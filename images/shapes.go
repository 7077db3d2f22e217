// Package images - Geometry and bitmap utilities shared by the pipeline.
package images

// RectF is a lightweight axis-aligned bounding box in input-pixel space.
type RectF struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// iouEpsilon keeps the IoU union denominator away from zero when both boxes
// are degenerate (zero area).
const iouEpsilon = 1e-9

// RectFromCenter builds a corner-form box from center coordinates and size,
// the layout used by the detection tensor's four box channels.
func RectFromCenter(cx, cy, w, h float32) RectF {
	return RectF{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Width returns the box width, 0 for inverted extents.
func (r RectF) Width() float32 {
	if r.X2 < r.X1 {
		return 0
	}
	return r.X2 - r.X1
}

// Height returns the box height, 0 for inverted extents.
func (r RectF) Height() float32 {
	if r.Y2 < r.Y1 {
		return 0
	}
	return r.Y2 - r.Y1
}

// Area returns the box area.
func (r RectF) Area() float32 {
	return r.Width() * r.Height()
}

// Center returns the box midpoint.
func (r RectF) Center() (float32, float32) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

// CalculateIoU computes the Intersection over Union of two boxes.
//
// IoU = Area of Intersection / Area of Union, a value in [0, 1]. Identical
// boxes score 1.0, disjoint boxes 0.0.
//
// See also:
//   - http://ronny.rest/tutorials/module/localization_001/iou
//
// The intersection corners come from the max of the starting coordinates and
// the min of the ending coordinates; a zero or negative extent means the
// boxes do not overlap at all. The union uses the Principle of
// Inclusion-Exclusion:
//
//	Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
//
// A small epsilon in the denominator lets two coincident zero-area boxes
// divide cleanly instead of producing NaN.
//
// Arguments:
//   - r (RectF): The first rectangle.
//   - o (RectF): The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
func CalculateIoU(r, o RectF) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea

	return interArea / (unionArea + iouEpsilon)
}

// RegionF is a normalized sub-region of an image, all fields in [0, 1]
// relative to the image extents.
type RegionF struct {
	X, Y, W, H float64
}

// ClampUnit constrains the region to the unit square, shrinking width and
// height so the region never extends past the right or bottom edge.
func (g RegionF) ClampUnit() RegionF {
	out := g
	out.X = clampF64(out.X, 0, 1)
	out.Y = clampF64(out.Y, 0, 1)
	out.W = clampF64(out.W, 0, 1-out.X)
	out.H = clampF64(out.H, 0, 1-out.Y)
	return out
}

func clampF64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInt constrains v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampF32 constrains v to [lo, hi].
func ClampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
