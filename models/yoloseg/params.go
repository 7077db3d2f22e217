// Package yoloseg - decoding for YOLOv8-style instance segmentation heads.
package yoloseg

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Params describes the output geometry of a segmentation head.
//
// The detection output is channel-major with logical shape
// [1, 4+NumClasses+NumMaskCoeffs, NumAnchors]: four box channels
// (center-x, center-y, width, height in input-pixel space), then the class
// scores, then the mask coefficients. The prototype output has shape
// [1, NumMaskCoeffs, PrototypeSize, PrototypeSize].
type Params struct {
	// NumClasses is the number of class-score channels.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// NumMaskCoeffs is the number of mask-coefficient channels.
	NumMaskCoeffs int `json:"num_mask_coeffs" yaml:"num_mask_coeffs"`
	// NumAnchors is the number of proposal columns.
	NumAnchors int `json:"num_anchors" yaml:"num_anchors"`
	// InputSize is the square model input edge in pixels.
	InputSize int `json:"input_size" yaml:"input_size"`
	// PrototypeSize is the square prototype plane edge in cells.
	PrototypeSize int `json:"prototype_size" yaml:"prototype_size"`
}

// COCOParams returns the geometry of the standard 640x640 COCO export:
// 80 classes, 32 coefficients, 8400 proposals, 160x160 prototypes.
func COCOParams() Params {
	return Params{
		NumClasses:    80,
		NumMaskCoeffs: 32,
		NumAnchors:    8400,
		InputSize:     640,
		PrototypeSize: 160,
	}
}

// Channels returns the per-proposal channel count 4+C+K.
func (p Params) Channels() int {
	return 4 + p.NumClasses + p.NumMaskCoeffs
}

// ValidateDetectionShape checks a detection tensor shape against the
// expected [1, 4+C+K, N] geometry.
func (p Params) ValidateDetectionShape(shape tensor.Shape) error {
	if len(shape) != 3 {
		return errors.Errorf("detection tensor must be rank 3, got shape %v", shape)
	}
	if shape[0] != 1 || shape[1] != p.Channels() || shape[2] != p.NumAnchors {
		return errors.Errorf("detection tensor shape %v does not match expected [1 %d %d]",
			shape, p.Channels(), p.NumAnchors)
	}
	return nil
}

// ValidatePrototypeShape checks a prototype tensor shape against the
// expected [1, K, M, M] geometry.
func (p Params) ValidatePrototypeShape(shape tensor.Shape) error {
	if len(shape) != 4 {
		return errors.Errorf("prototype tensor must be rank 4, got shape %v", shape)
	}
	if shape[0] != 1 || shape[1] != p.NumMaskCoeffs ||
		shape[2] != p.PrototypeSize || shape[3] != p.PrototypeSize {
		return errors.Errorf("prototype tensor shape %v does not match expected [1 %d %d %d]",
			shape, p.NumMaskCoeffs, p.PrototypeSize, p.PrototypeSize)
	}
	return nil
}
