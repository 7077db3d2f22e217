// Package masks - instance mask synthesis from prototype tensors.
//
// A segmentation head emits K low-resolution prototype planes per cycle and
// K blending coefficients per detection. The instance mask is the sigmoid of
// the coefficient-weighted sum of the planes, computed over the full M×M
// grid and then cropped to the detection's box.
package masks

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Mask is a square activation grid. Values are strictly inside (0,1) after
// sigmoid activation.
type Mask struct {
	// Data holds Size×Size activations in row-major order.
	Data []float32
	// Size is the square grid edge in cells.
	Size int
}

// At returns the activation at cell (x, y). Bounds are the caller's problem.
func (m Mask) At(x, y int) float32 {
	return m.Data[y*m.Size+x]
}

// Covered reports whether the cell belongs to the mask. The activation must
// strictly exceed 0.5: an all-zero coefficient vector produces exactly 0.5
// everywhere and covers nothing.
func (m Mask) Covered(x, y int) bool {
	return m.Data[y*m.Size+x] > maskThreshold
}

const (
	// maskThreshold is the activation cutoff for mask membership.
	maskThreshold = 0.5
	// solidAlphaScale scales activation into the solid-fill alpha channel.
	solidAlphaScale = 0.8
)

// Synthesize blends prototype planes with one detection's coefficients into
// a full-resolution activation grid.
//
// Each cell accumulates Σ_k coefficients[k] × prototype[k][cell], then a
// logistic sigmoid maps the sum into (0,1). Cost is O(M²×K) per detection,
// the dominant numeric cost of the pipeline.
//
// Arguments:
//   - coefficients: K per-detection blending weights.
//   - protos: Prototype tensor with shape [1, K, M, M] and float32 backing.
//
// Returns:
//   - Mask: The M×M activation grid.
//   - error: Shape, backing, or coefficient-count mismatch.
func Synthesize(coefficients []float32, protos *tensor.Dense) (Mask, error) {
	if protos == nil {
		return Mask{}, errors.New("prototype tensor is nil")
	}
	shape := protos.Shape()
	if len(shape) != 4 {
		return Mask{}, errors.Errorf("prototype tensor must be rank 4, got shape %v", shape)
	}
	if shape[0] != 1 {
		return Mask{}, errors.Errorf("prototype tensor batch dimension must be 1, got shape %v", shape)
	}
	if shape[2] != shape[3] {
		return Mask{}, errors.Errorf("prototype planes must be square, got shape %v", shape)
	}
	k, m := shape[1], shape[2]
	if len(coefficients) != k {
		return Mask{}, errors.Errorf("got %d coefficients for %d prototype planes", len(coefficients), k)
	}
	data, ok := protos.Data().([]float32)
	if !ok {
		return Mask{}, errors.Errorf("prototype tensor backing is %T, expected []float32", protos.Data())
	}

	cells := m * m
	out := make([]float32, cells)
	// Plane-major accumulation walks each prototype contiguously.
	for ki := 0; ki < k; ki++ {
		coeff := coefficients[ki]
		if coeff == 0 {
			continue
		}
		plane := data[ki*cells : (ki+1)*cells]
		for c := 0; c < cells; c++ {
			out[c] += coeff * plane[c]
		}
	}
	for c := 0; c < cells; c++ {
		out[c] = sigmoid(out[c])
	}

	return Mask{Data: out, Size: m}, nil
}

// sigmoid is the float32 logistic function.
func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + math32.Exp(-x))
}
