package pipeline

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/maskar-ai/go-maskar/colors"
	"github.com/maskar-ai/go-maskar/labels"
	"github.com/maskar-ai/go-maskar/logging"
	"github.com/maskar-ai/go-maskar/models/yoloseg"
	"github.com/maskar-ai/go-maskar/profiler"
	"github.com/maskar-ai/go-maskar/spatial"
)

// testParams keeps the synthetic tensors small: 3 classes, 4 coefficients,
// 8 anchor slots, 64px input, 16-cell prototype grid.
func testParams() yoloseg.Params {
	return yoloseg.Params{
		NumClasses:    3,
		NumMaskCoeffs: 4,
		NumAnchors:    8,
		InputSize:     64,
		PrototypeSize: 16,
	}
}

type proposal struct {
	cx, cy, w, h float32
	scores       []float32
	coeffs       []float32
}

// buildDetection fills a channel-major [1, 4+C+K, N] tensor from proposals;
// unmentioned anchor slots stay zero.
func buildDetection(p yoloseg.Params, proposals []proposal) *tensor.Dense {
	n := p.NumAnchors
	data := make([]float32, p.Channels()*n)
	for i, prop := range proposals {
		data[0*n+i] = prop.cx
		data[1*n+i] = prop.cy
		data[2*n+i] = prop.w
		data[3*n+i] = prop.h
		for c, s := range prop.scores {
			data[(4+c)*n+i] = s
		}
		for k, v := range prop.coeffs {
			data[(4+p.NumClasses+k)*n+i] = v
		}
	}
	return tensor.New(tensor.WithShape(1, p.Channels(), n), tensor.WithBacking(data))
}

// buildProtos fills every cell of prototype plane 0 with value; the other
// planes stay zero, so a coefficient vector of {1,0,0,0} reproduces value
// at every cell before the sigmoid.
func buildProtos(p yoloseg.Params, value float32) *tensor.Dense {
	m := p.PrototypeSize
	data := make([]float32, p.NumMaskCoeffs*m*m)
	for i := 0; i < m*m; i++ {
		data[i] = value
	}
	return tensor.New(tensor.WithShape(1, p.NumMaskCoeffs, m, m), tensor.WithBacking(data))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Model = testParams()
	return cfg
}

func testLabels() *labels.Set {
	return labels.NewSet([]string{"alpha", "beta", "gamma"})
}

// recordingCaster returns a fixed hit and records the viewport coordinates
// it was asked about.
type recordingCaster struct {
	hit    r3.Vector
	misses bool
	asked  [][2]float64
}

func (c *recordingCaster) CastViewport(u, v float64, _ spatial.Pose) (r3.Vector, bool) {
	c.asked = append(c.asked, [2]float64{u, v})
	if c.misses {
		return r3.Vector{}, false
	}
	return c.hit, true
}

// TestProcessCycleEndToEnd runs two detections through decode, synthesis,
// color selection and placement, checking every derived field.
func TestProcessCycleEndToEnd(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0, 0.9, 0}, coeffs: []float32{1, 0, 0, 0}},
		{cx: 10, cy: 10, w: 8, h: 8, scores: []float32{0.8, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})
	protos := buildProtos(params, 2.0) // sigmoid(2) ~ 0.88, everything covered

	caster := &recordingCaster{hit: r3.Vector{Z: 2}}
	p, err := NewPipeline(testConfig(), testLabels(), caster, logging.NewTestLogger(t))
	require.NoError(t, err)

	background := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, protos, capture, background)
	require.Len(t, live, 2)

	// Sorted by descending confidence.
	first, second := live[0], live[1]
	assert.Equal(t, 1, first.Class)
	assert.Equal(t, "beta", first.ClassName)
	assert.InDelta(t, 0.9, first.Confidence, 1e-6)
	assert.Equal(t, 0, second.Class)
	assert.Equal(t, "alpha", second.ClassName)

	// Normalized geometry: 16px of a 64px input.
	assert.InDelta(t, 0.25, first.NormWidth, 1e-6)
	assert.InDelta(t, 0.25, first.NormHeight, 1e-6)
	assert.InDelta(t, 0.0625, first.Coverage, 1e-6)

	// Mask bitmaps cover the box crop: [24,40) at scale 16/64 is 4x4.
	require.True(t, first.HasMask())
	assert.Equal(t, 4, first.Solid.Bounds().Dx())
	assert.Equal(t, 4, first.Solid.Bounds().Dy())
	require.NotNil(t, first.Outline)

	// World placement: box centers raycast in normalized coordinates.
	require.Len(t, caster.asked, 2)
	assert.InDelta(t, 0.5, caster.asked[0][0], 1e-6)
	assert.InDelta(t, 0.5, caster.asked[0][1], 1e-6)
	require.True(t, first.HasWorldPoint)
	assert.Equal(t, r3.Vector{Z: 2}, first.WorldPoint)

	// Pinhole size estimate: 2 x distance x tan(fov/2) x normalized extent.
	wantWidth := 2 * 2.0 * math.Tan(60*math.Pi/360.0) * 0.25
	assert.InDelta(t, wantWidth, first.EstimatedWidth, 1e-9)
	assert.InDelta(t, wantWidth, first.EstimatedHeight, 1e-9)

	// The overlay is a palette color carrying the configured alpha.
	assert.Equal(t, uint8(255), first.Overlay.A)
}

// TestProcessCycleDecodeFailure verifies a bad tensor degrades to an empty
// live set instead of a panic or error.
func TestProcessCycleDecodeFailure(t *testing.T) {
	p, err := NewPipeline(testConfig(), testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)

	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	assert.Nil(t, p.ProcessCycle(nil, nil, capture, nil))

	wrongShape := tensor.New(tensor.WithShape(1, 2, 3), tensor.WithBacking(make([]float32, 6)))
	assert.Nil(t, p.ProcessCycle(wrongShape, nil, capture, nil))
}

// TestProcessCycleBelowThreshold verifies sub-threshold proposals produce
// an empty live set.
func TestProcessCycleBelowThreshold(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0.5, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	p, err := NewPipeline(testConfig(), testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	assert.Nil(t, p.ProcessCycle(det, buildProtos(params, 2.0), capture, nil))
}

// TestProcessCycleDegenerateCrop verifies a detection whose box falls
// outside the input keeps its entry but carries no mask.
func TestProcessCycleDegenerateCrop(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: -100, cy: -100, w: 10, h: 10, scores: []float32{0.9, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	p, err := NewPipeline(testConfig(), testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, buildProtos(params, 2.0), capture, nil)

	require.Len(t, live, 1)
	assert.False(t, live[0].HasMask())
	assert.Nil(t, live[0].Solid)
	assert.Nil(t, live[0].Outline)
	assert.InDelta(t, 0.9, live[0].Confidence, 1e-6)
}

// TestProcessCycleSynthesisFailure verifies a missing prototype tensor
// keeps detections alive without masks.
func TestProcessCycleSynthesisFailure(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0.9, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	p, err := NewPipeline(testConfig(), testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, nil, capture, nil)

	require.Len(t, live, 1)
	assert.False(t, live[0].HasMask())
}

// TestProcessCycleRaycastMiss verifies a missed raycast keeps the
// detection but leaves it unanchorable.
func TestProcessCycleRaycastMiss(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0.9, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	caster := &recordingCaster{misses: true}
	p, err := NewPipeline(testConfig(), testLabels(), caster, logging.NewTestLogger(t))
	require.NoError(t, err)
	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, buildProtos(params, 2.0), capture, nil)

	require.Len(t, live, 1)
	assert.False(t, live[0].HasWorldPoint)
	assert.Zero(t, live[0].EstimatedWidth)
	assert.True(t, live[0].HasMask(), "mask does not depend on placement")
}

// TestProcessCycleWithoutRaycaster verifies a nil collaborator disables
// placement entirely.
func TestProcessCycleWithoutRaycaster(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0.9, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	p, err := NewPipeline(testConfig(), testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, buildProtos(params, 2.0), capture, nil)

	require.Len(t, live, 1)
	assert.False(t, live[0].HasWorldPoint)
}

// TestOverlayAdaptiveOff verifies the fixed-color path uses the first
// palette entry with the configured alpha.
func TestOverlayAdaptiveOff(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0.9, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	cfg := testConfig()
	cfg.AdaptiveColor = false
	cfg.OverlayAlpha = 180
	p, err := NewPipeline(cfg, testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)

	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, buildProtos(params, 2.0), capture, nil)
	require.Len(t, live, 1)

	want := colors.DefaultPalette()[0]
	want.A = 180
	assert.Equal(t, want, live[0].Overlay)
}

// TestOverlayAdaptivePicksContrast verifies the adaptive path answers with
// a palette entry maximizing LAB distance to the sampled background.
func TestOverlayAdaptivePicksContrast(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0.9, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	// Background identical to the first palette entry forces the adaptive
	// path away from it.
	first := colors.DefaultPalette()[0]
	background := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			background.SetNRGBA(x, y, first)
		}
	}

	p, err := NewPipeline(testConfig(), testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, buildProtos(params, 2.0), capture, background)
	require.Len(t, live, 1)

	got := live[0].Overlay
	assert.False(t, got.R == first.R && got.G == first.G && got.B == first.B,
		"adaptive selection should avoid the background color")
	assert.Equal(t, uint8(255), got.A)
}

// TestQualityScore checks the confidence/coverage blend.
func TestQualityScore(t *testing.T) {
	d := LiveDetection{Confidence: 0.8, Coverage: 0.5}
	assert.InDelta(t, 0.7*0.8+0.3*0.5, d.QualityScore(), 1e-6)

	zero := LiveDetection{}
	assert.Zero(t, zero.QualityScore())
}

// TestConfigClamp verifies invalid options are coerced, not rejected.
func TestConfigClamp(t *testing.T) {
	cfg := Config{OutlineRadius: -3, ColorSamples: 0, HorizontalFOV: 500}
	cfg.Clamp()

	assert.Equal(t, 1, cfg.OutlineRadius)
	assert.Equal(t, 1, cfg.ColorSamples)
	assert.Equal(t, 60.0, cfg.HorizontalFOV)
	assert.NotEmpty(t, cfg.Palette)
	assert.Equal(t, yoloseg.COCOParams(), cfg.Model)

	wide := Config{OutlineRadius: 99}
	wide.Clamp()
	assert.Equal(t, 15, wide.OutlineRadius)
}

// TestConfigAllowListResolution verifies names resolve to filter ids and
// unknown names fail pipeline construction.
func TestConfigAllowListResolution(t *testing.T) {
	cfg := testConfig()
	cfg.ClassAllowList = []string{"beta", "gamma"}
	p, err := NewPipeline(cfg, testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, p.Config().Filter.AllowedClasses)

	bad := testConfig()
	bad.ClassAllowList = []string{"unicorn"}
	_, err = NewPipeline(bad, testLabels(), nil, logging.NewTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unicorn")
}

// TestDispatcher verifies the scheduler adapter processes a cycle and
// hands the live set to the sink.
func TestDispatcher(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0.9, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})
	protos := buildProtos(params, 2.0)

	p, err := NewPipeline(testConfig(), testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	p.SetBackground(image.NewNRGBA(image.Rect(0, 0, 64, 64)))

	var got []LiveDetection
	dispatch := p.Dispatcher(func(live []LiveDetection) { got = live })
	dispatch(det, protos, spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation()))
	require.Len(t, got, 1)
	assert.Equal(t, "alpha", got[0].ClassName)

	// A nil sink is tolerated.
	p.Dispatcher(nil)(det, protos, spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation()))
}

// TestProfilerIntegration verifies an attached profiler sees one decode
// timing per cycle, one synthesis and render timing per masked detection,
// and the cycle's detection count.
func TestProfilerIntegration(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0, 0.9, 0}, coeffs: []float32{1, 0, 0, 0}},
		{cx: 10, cy: 10, w: 8, h: 8, scores: []float32{0.8, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	p, err := NewPipeline(testConfig(), testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)

	prof := profiler.NewPipelineProfiler(profiler.DefaultConfig())
	p.SetProfiler(prof)

	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, buildProtos(params, 2.0), capture, nil)
	require.Len(t, live, 2)

	decode, ok := prof.StageStats(profiler.StageDecode)
	require.True(t, ok)
	assert.Equal(t, int64(1), decode.Count)

	synth, ok := prof.StageStats(profiler.StageSynthesize)
	require.True(t, ok)
	assert.Equal(t, int64(2), synth.Count)

	render, ok := prof.StageStats(profiler.StageRender)
	require.True(t, ok)
	assert.Equal(t, int64(2), render.Count)

	count, ok := prof.MetricStats(profiler.MetricDetections)
	require.True(t, ok)
	assert.Equal(t, 2.0, count.Last)

	// Detaching stops recording.
	p.SetProfiler(nil)
	p.ProcessCycle(det, buildProtos(params, 2.0), capture, nil)
	decode, _ = prof.StageStats(profiler.StageDecode)
	assert.Equal(t, int64(1), decode.Count)
}

// TestAllowListFiltersClasses verifies end-to-end that a configured
// allow-list drops other classes during decode.
func TestAllowListFiltersClasses(t *testing.T) {
	params := testParams()
	det := buildDetection(params, []proposal{
		{cx: 32, cy: 32, w: 16, h: 16, scores: []float32{0, 0.9, 0}, coeffs: []float32{1, 0, 0, 0}},
		{cx: 10, cy: 10, w: 8, h: 8, scores: []float32{0.8, 0, 0}, coeffs: []float32{1, 0, 0, 0}},
	})

	cfg := testConfig()
	cfg.ClassAllowList = []string{"beta"}
	p, err := NewPipeline(cfg, testLabels(), nil, logging.NewTestLogger(t))
	require.NoError(t, err)

	capture := spatial.NewPose(r3.Vector{}, spatial.IdentityOrientation())
	live := p.ProcessCycle(det, buildProtos(params, 2.0), capture, nil)
	require.Len(t, live, 1)
	assert.Equal(t, "beta", live[0].ClassName)
}
