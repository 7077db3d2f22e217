package yoloseg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/maskar-ai/go-maskar/models/postprocess"
)

// testParams keeps synthetic tensors small: 3 classes, 4 coefficients,
// 16 proposal columns.
func testParams() Params {
	return Params{
		NumClasses:    3,
		NumMaskCoeffs: 4,
		NumAnchors:    16,
		InputSize:     640,
		PrototypeSize: 160,
	}
}

type proposal struct {
	anchor int
	class  int
	score  float32
	cx     float32
	cy     float32
	w      float32
	h      float32
	coeffs []float32
}

// buildDetectionTensor lays proposals out channel-major, the layout the
// head emits: data[channel*N + column].
func buildDetectionTensor(p Params, proposals []proposal) *tensor.Dense {
	data := make([]float32, p.Channels()*p.NumAnchors)
	n := p.NumAnchors
	for _, pr := range proposals {
		data[0*n+pr.anchor] = pr.cx
		data[1*n+pr.anchor] = pr.cy
		data[2*n+pr.anchor] = pr.w
		data[3*n+pr.anchor] = pr.h
		data[(4+pr.class)*n+pr.anchor] = pr.score
		for k, cv := range pr.coeffs {
			data[(4+p.NumClasses+k)*n+pr.anchor] = cv
		}
	}
	return tensor.New(tensor.WithShape(1, p.Channels(), p.NumAnchors), tensor.WithBacking(data))
}

func TestCOCOParams(t *testing.T) {
	p := COCOParams()
	assert.Equal(t, 80, p.NumClasses)
	assert.Equal(t, 32, p.NumMaskCoeffs)
	assert.Equal(t, 8400, p.NumAnchors)
	assert.Equal(t, 640, p.InputSize)
	assert.Equal(t, 160, p.PrototypeSize)
	assert.Equal(t, 116, p.Channels())
}

func TestParseCandidates_ExtractsFields(t *testing.T) {
	p := testParams()
	det := buildDetectionTensor(p, []proposal{
		{anchor: 5, class: 2, score: 0.9, cx: 320, cy: 320, w: 100, h: 100, coeffs: []float32{0.1, -0.2, 0.3, -0.4}},
	})

	out, err := ParseCandidates(det, p, postprocess.DefaultFilterConfig())
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, 5, r.Anchor)
	assert.Equal(t, 2, r.Class)
	assert.Equal(t, float32(0.9), r.Score)
	assert.Equal(t, float32(270), r.Box.X1)
	assert.Equal(t, float32(270), r.Box.Y1)
	assert.Equal(t, float32(370), r.Box.X2)
	assert.Equal(t, float32(370), r.Box.Y2)
	assert.Equal(t, []float32{0.1, -0.2, 0.3, -0.4}, r.Coefficients)
}

func TestParseCandidates_PicksArgMaxClass(t *testing.T) {
	p := testParams()
	// Two class channels populated on the same column; the higher one must win.
	data := make([]float32, p.Channels()*p.NumAnchors)
	n := p.NumAnchors
	data[(4+0)*n+3] = 0.78
	data[(4+1)*n+3] = 0.91
	data[2*n+3] = 10 // width
	data[3*n+3] = 10 // height
	det := tensor.New(tensor.WithShape(1, p.Channels(), p.NumAnchors), tensor.WithBacking(data))

	out, err := ParseCandidates(det, p, postprocess.DefaultFilterConfig())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Class)
	assert.Equal(t, float32(0.91), out[0].Score)
}

func TestParseCandidates_ThresholdBoundary(t *testing.T) {
	p := testParams()
	det := buildDetectionTensor(p, []proposal{
		{anchor: 0, class: 0, score: 0.75, cx: 100, cy: 100, w: 20, h: 20},
		{anchor: 1, class: 0, score: 0.7499, cx: 300, cy: 300, w: 20, h: 20},
	})

	out, err := ParseCandidates(det, p, postprocess.DefaultFilterConfig())
	require.NoError(t, err)
	require.Len(t, out, 1, "a score exactly at the threshold survives, below does not")
	assert.Equal(t, 0, out[0].Anchor)
}

func TestDecode_ThresholdMonotonic(t *testing.T) {
	p := testParams()
	var proposals []proposal
	scores := []float32{0.99, 0.9, 0.85, 0.8, 0.76, 0.6, 0.5, 0.3}
	for i, s := range scores {
		proposals = append(proposals, proposal{
			anchor: i, class: i % p.NumClasses, score: s,
			cx: float32(i*70 + 40), cy: 100, w: 30, h: 30,
		})
	}
	det := buildDetectionTensor(p, proposals)

	prev := len(scores) + 1
	for _, threshold := range []float32{0.0, 0.25, 0.5, 0.75, 0.9, 0.99, 1.0} {
		cfg := postprocess.DefaultFilterConfig()
		cfg.ConfidenceThreshold = threshold
		out, err := Decode(det, p, cfg)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(out), prev,
			"raising the threshold to %v must not increase the detection count", threshold)
		prev = len(out)
	}
}

func TestParseCandidates_AllowList(t *testing.T) {
	p := testParams()
	det := buildDetectionTensor(p, []proposal{
		{anchor: 0, class: 0, score: 0.9, cx: 100, cy: 100, w: 20, h: 20},
		{anchor: 1, class: 1, score: 0.9, cx: 300, cy: 300, w: 20, h: 20},
		{anchor: 2, class: 2, score: 0.9, cx: 500, cy: 500, w: 20, h: 20},
	})

	cfg := postprocess.DefaultFilterConfig()
	cfg.AllowedClasses = []int{1}
	out, err := ParseCandidates(det, p, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Class)
}

func TestDecode_SuppressesOverlap(t *testing.T) {
	p := testParams()
	det := buildDetectionTensor(p, []proposal{
		{anchor: 0, class: 1, score: 0.8, cx: 320, cy: 320, w: 100, h: 100},
		{anchor: 1, class: 1, score: 0.95, cx: 322, cy: 318, w: 100, h: 100},
		{anchor: 2, class: 1, score: 0.85, cx: 100, cy: 100, w: 40, h: 40},
	})

	out, err := Decode(det, p, postprocess.DefaultFilterConfig())
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Sorted by descending confidence; the overlapping 0.8 was suppressed.
	assert.Equal(t, float32(0.95), out[0].Score)
	assert.Equal(t, float32(0.85), out[1].Score)
}

func TestDecode_CapsOutput(t *testing.T) {
	p := testParams()
	var proposals []proposal
	for i := 0; i < 10; i++ {
		proposals = append(proposals, proposal{
			anchor: i, class: 0, score: 0.9,
			cx: float32(i*60 + 30), cy: 100, w: 20, h: 20,
		})
	}
	det := buildDetectionTensor(p, proposals)

	cfg := postprocess.DefaultFilterConfig()
	cfg.MaxDetections = 3
	out, err := Decode(det, p, cfg)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestDecode_ShapeValidation(t *testing.T) {
	p := testParams()

	_, err := Decode(nil, p, postprocess.DefaultFilterConfig())
	assert.Error(t, err, "nil tensor must error")

	// Right rank, wrong channel count.
	wrong := tensor.New(
		tensor.WithShape(1, p.Channels()+1, p.NumAnchors),
		tensor.WithBacking(make([]float32, (p.Channels()+1)*p.NumAnchors)),
	)
	_, err = Decode(wrong, p, postprocess.DefaultFilterConfig())
	assert.Error(t, err)

	// Wrong rank.
	flat := tensor.New(
		tensor.WithShape(p.Channels(), p.NumAnchors),
		tensor.WithBacking(make([]float32, p.Channels()*p.NumAnchors)),
	)
	_, err = Decode(flat, p, postprocess.DefaultFilterConfig())
	assert.Error(t, err)
}

func TestDecode_RejectsNonFloat32Backing(t *testing.T) {
	p := testParams()
	det := tensor.New(
		tensor.WithShape(1, p.Channels(), p.NumAnchors),
		tensor.WithBacking(make([]float64, p.Channels()*p.NumAnchors)),
	)
	_, err := Decode(det, p, postprocess.DefaultFilterConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float32")
}

func TestValidatePrototypeShape(t *testing.T) {
	p := testParams()

	good := tensor.New(
		tensor.WithShape(1, p.NumMaskCoeffs, p.PrototypeSize, p.PrototypeSize),
		tensor.WithBacking(make([]float32, p.NumMaskCoeffs*p.PrototypeSize*p.PrototypeSize)),
	)
	assert.NoError(t, p.ValidatePrototypeShape(good.Shape()))

	bad := tensor.New(
		tensor.WithShape(1, p.NumMaskCoeffs+1, p.PrototypeSize, p.PrototypeSize),
		tensor.WithBacking(make([]float32, (p.NumMaskCoeffs+1)*p.PrototypeSize*p.PrototypeSize)),
	)
	assert.Error(t, p.ValidatePrototypeShape(bad.Shape()))
}
