package masks

import "github.com/maskar-ai/go-maskar/images"

// CropSpec is an integer cell region of a mask grid. X1/Y1 are exclusive.
type CropSpec struct {
	X0, Y0, X1, Y1 int
}

// ComputeCrop rescales a detection box from input-pixel space into mask
// cell space and truncates to integer bounds, clamped to the grid.
//
// The scale is maskSize ÷ inputSize: a 100px box centered at (320,320) in a
// 640px input maps to a 25×25 cell region centered at (80,80) on a 160-cell
// grid. Boxes partly outside the input clamp to the grid edge; boxes fully
// outside produce an empty crop.
func ComputeCrop(box images.RectF, inputSize, maskSize int) CropSpec {
	if inputSize <= 0 || maskSize <= 0 {
		return CropSpec{}
	}
	scale := float32(maskSize) / float32(inputSize)

	spec := CropSpec{
		X0: int(box.X1 * scale),
		Y0: int(box.Y1 * scale),
		X1: int(box.X2 * scale),
		Y1: int(box.Y2 * scale),
	}
	spec.X0 = images.ClampInt(spec.X0, 0, maskSize)
	spec.Y0 = images.ClampInt(spec.Y0, 0, maskSize)
	spec.X1 = images.ClampInt(spec.X1, 0, maskSize)
	spec.Y1 = images.ClampInt(spec.Y1, 0, maskSize)
	return spec
}

// Empty reports a degenerate crop with no cells. The owning detection stays
// valid; it just gets no mask this cycle.
func (c CropSpec) Empty() bool {
	return c.X1 <= c.X0 || c.Y1 <= c.Y0
}

// Width returns the crop width in cells.
func (c CropSpec) Width() int {
	if c.X1 < c.X0 {
		return 0
	}
	return c.X1 - c.X0
}

// Height returns the crop height in cells.
func (c CropSpec) Height() int {
	if c.Y1 < c.Y0 {
		return 0
	}
	return c.Y1 - c.Y0
}
