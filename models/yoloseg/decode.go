package yoloseg

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/maskar-ai/go-maskar/images"
	"github.com/maskar-ai/go-maskar/models/postprocess"
)

// ParseCandidates scans every proposal column and keeps those whose best
// class score clears the confidence threshold and whose class passes the
// allow-list. No suppression happens here; candidates come back in
// proposal order.
//
// For each kept proposal the box channels, the arg-max class, and the
// trailing mask coefficients are extracted. Cost is O(N×C).
//
// Arguments:
//   - det: Detection tensor with shape [1, 4+C+K, N] and float32 backing.
//   - p: Head geometry the tensor is validated against.
//   - cfg: Confidence threshold and class allow-list.
//
// Returns:
//   - Candidates that passed filtering, in proposal order.
//   - error: Shape or backing mismatch. No proposals is not an error.
func ParseCandidates(det *tensor.Dense, p Params, cfg postprocess.FilterConfig) ([]postprocess.Result, error) {
	if det == nil {
		return nil, errors.New("detection tensor is nil")
	}
	if err := p.ValidateDetectionShape(det.Shape()); err != nil {
		return nil, err
	}
	data, ok := det.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("detection tensor backing is %T, expected []float32", det.Data())
	}

	n := p.NumAnchors
	results := make([]postprocess.Result, 0, 64)

	for i := 0; i < n; i++ {
		// Arg-max across the class-score channels.
		classID := 0
		maxScore := float32(0)
		for c := 0; c < p.NumClasses; c++ {
			score := data[(4+c)*n+i]
			if score > maxScore {
				maxScore = score
				classID = c
			}
		}

		if maxScore < cfg.ConfidenceThreshold {
			continue
		}
		if !cfg.Admits(classID) {
			continue
		}

		cx := data[0*n+i]
		cy := data[1*n+i]
		w := data[2*n+i]
		h := data[3*n+i]

		coeffs := make([]float32, p.NumMaskCoeffs)
		for k := 0; k < p.NumMaskCoeffs; k++ {
			coeffs[k] = data[(4+p.NumClasses+k)*n+i]
		}

		results = append(results, postprocess.Result{
			Box:          images.RectFromCenter(cx, cy, w, h),
			Score:        maxScore,
			Class:        classID,
			Coefficients: coeffs,
			Anchor:       i,
		})
	}

	return results, nil
}

// Decode runs the full decoding chain: candidate filtering, greedy
// same-class Non-Maximum Suppression, and the per-cycle detection cap.
// The output is sorted by descending confidence.
//
// Arguments:
//   - det: Detection tensor with shape [1, 4+C+K, N] and float32 backing.
//   - p: Head geometry the tensor is validated against.
//   - cfg: Filtering and suppression parameters.
//
// Returns:
//   - Filtered detections sorted by descending confidence.
//   - error: Shape or backing mismatch.
func Decode(det *tensor.Dense, p Params, cfg postprocess.FilterConfig) ([]postprocess.Result, error) {
	candidates, err := ParseCandidates(det, p, cfg)
	if err != nil {
		return nil, err
	}

	return postprocess.ApplyGreedyNMS(candidates, cfg), nil
}
