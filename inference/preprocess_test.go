package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// TestFillCHWPlaneLayout verifies channel-major ordering: the full red
// plane, then green, then blue.
func TestFillCHWPlaneLayout(t *testing.T) {
	img := uniformImage(2, 2, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	dst := make([]float32, 12)
	require.NoError(t, FillCHW(img, 2, dst))

	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, dst[i], 1e-6, "red plane index %d", i)
	}
	for i := 4; i < 12; i++ {
		assert.InDelta(t, 0.0, dst[i], 1e-6, "green/blue plane index %d", i)
	}
}

// TestFillCHWNormalization verifies 8-bit channels map to value/255.
func TestFillCHWNormalization(t *testing.T) {
	img := uniformImage(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	dst := make([]float32, 48)
	require.NoError(t, FillCHW(img, 4, dst))

	assert.InDelta(t, float32(200)/255.0, dst[0], 1e-6)
	assert.InDelta(t, float32(100)/255.0, dst[16], 1e-6)
	assert.InDelta(t, float32(50)/255.0, dst[32], 1e-6)
}

// TestFillCHWResizes verifies a differently sized source is resampled to
// the network input size. A uniform source stays uniform through the
// resampler.
func TestFillCHWResizes(t *testing.T) {
	img := uniformImage(100, 50, color.NRGBA{R: 30, G: 60, B: 90, A: 255})
	dst := make([]float32, 3*8*8)
	require.NoError(t, FillCHW(img, 8, dst))

	for i := 0; i < 64; i++ {
		assert.InDelta(t, float32(30)/255.0, dst[i], 0.01)
		assert.InDelta(t, float32(60)/255.0, dst[64+i], 0.01)
		assert.InDelta(t, float32(90)/255.0, dst[128+i], 0.01)
	}
}

// TestFillCHWSubImage verifies a source with a non-zero origin is read from
// its own origin, not from (0,0).
func TestFillCHWSubImage(t *testing.T) {
	base := uniformImage(10, 10, color.NRGBA{R: 255, A: 255})
	for y := 5; y < 10; y++ {
		for x := 5; x < 10; x++ {
			base.SetNRGBA(x, y, color.NRGBA{G: 255, A: 255})
		}
	}
	sub := base.SubImage(image.Rect(5, 5, 10, 10))

	dst := make([]float32, 3*5*5)
	require.NoError(t, FillCHW(sub, 5, dst))
	assert.InDelta(t, 0.0, dst[0], 1e-6, "red plane should be empty")
	assert.InDelta(t, 1.0, dst[25], 1e-6, "green plane should be full")
}

// TestFillCHWValidation covers the error paths.
func TestFillCHWValidation(t *testing.T) {
	img := uniformImage(4, 4, color.NRGBA{A: 255})

	err := FillCHW(img, 4, make([]float32, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs")

	assert.Error(t, FillCHW(nil, 4, make([]float32, 48)))
	assert.Error(t, FillCHW(img, 0, make([]float32, 48)))
}

// TestImageToTensor verifies the produced tensor shape and backing.
func TestImageToTensor(t *testing.T) {
	img := uniformImage(16, 16, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	in, err := ImageToTensor(img, 16)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 16, 16}, []int(in.Shape()))
	data, ok := in.Data().([]float32)
	require.True(t, ok)
	require.Len(t, data, 3*16*16)
	assert.InDelta(t, 1.0, data[0], 1e-6)

	_, err = ImageToTensor(img, 0)
	assert.Error(t, err)

	_, err = ImageToTensor(nil, 16)
	assert.Error(t, err)
}
