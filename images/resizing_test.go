package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestImage() image.Image {
	// Create a simple 100x100 red image.
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}

	return img
}

// Helper functions to create test data for different formats
func getJPEGBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, getTestImage(), nil)
	require.NoError(t, err)
	return buf.Bytes()
}

func getPNGBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	err := png.Encode(&buf, getTestImage())
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, err := Decode(getJPEGBytes(t), FormatJPEG)
	assert.NoError(t, err, "Decode should not error for valid JPEG input")
	assert.NotNil(t, img)
	assert.Equal(t, 100, img.Bounds().Dx())

	img, err = Decode(getPNGBytes(t), FormatPNG)
	assert.NoError(t, err, "Decode should not error for valid PNG input")
	assert.NotNil(t, img)

	// Invalid bytes for the declared format
	img, err = Decode([]byte("not an image"), FormatJPEG)
	assert.Error(t, err, "Decode should error for invalid JPEG input")
	assert.Nil(t, img)

	// Empty data
	img, err = Decode(nil, FormatPNG)
	assert.Error(t, err, "Decode should error with empty image data")
	assert.Nil(t, img)
	assert.Contains(t, err.Error(), "empty image data")
}

// Test the unified DecodeAndResize interface
func TestDecodeAndResize(t *testing.T) {
	tests := []struct {
		name       string
		format     ImageFormat
		getBytes   func(t *testing.T) []byte
		targetW    int
		targetH    int
		shouldFail bool
	}{
		{
			name:     "JPEG resize success",
			format:   FormatJPEG,
			getBytes: getJPEGBytes,
			targetW:  64, targetH: 64,
			shouldFail: false,
		},
		{
			name:     "PNG resize success",
			format:   FormatPNG,
			getBytes: getPNGBytes,
			targetW:  32, targetH: 32,
			shouldFail: false,
		},
		{
			name:     "Upscale success",
			format:   FormatPNG,
			getBytes: getPNGBytes,
			targetW:  640, targetH: 640,
			shouldFail: false,
		},
		{
			name:     "Invalid dimensions",
			format:   FormatJPEG,
			getBytes: getJPEGBytes,
			targetW:  0, targetH: 0,
			shouldFail: true,
		},
		{
			name:     "Negative dimensions",
			format:   FormatJPEG,
			getBytes: getJPEGBytes,
			targetW:  -10, targetH: 50,
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imageBytes := tt.getBytes(t)

			img, err := DecodeAndResize(imageBytes, tt.targetW, tt.targetH, tt.format)

			if tt.shouldFail {
				assert.Error(t, err)
				assert.Nil(t, img)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, img)
				assert.Equal(t, tt.targetW, img.Bounds().Dx())
				assert.Equal(t, tt.targetH, img.Bounds().Dy())
			}
		})
	}
}

func TestDecodeAndResize_UnsupportedFormat(t *testing.T) {
	img, err := DecodeAndResize(getJPEGBytes(t), 50, 50, FormatUnknown)
	assert.Error(t, err, "Should error with unsupported format")
	assert.Nil(t, img)
	assert.Contains(t, err.Error(), "unsupported image format")
}

func TestResizeImage_NoOpWhenSameSize(t *testing.T) {
	src := getTestImage()
	out := ResizeImage(src, 100, 100)
	assert.Equal(t, src, out, "same-size resize should return the input untouched")
}

func TestUpscaleNearest_PreservesHardEdges(t *testing.T) {
	// A 2x2 checkerboard upscaled 4x should contain only the original two
	// colors, never a blend.
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{0, 0, 0, 255}
	src.SetRGBA(0, 0, white)
	src.SetRGBA(1, 1, white)
	src.SetRGBA(1, 0, black)
	src.SetRGBA(0, 1, black)

	out := UpscaleNearest(src, 8, 8)
	require.Equal(t, 8, out.Bounds().Dx())

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			r, g, b, _ := out.At(x, y).RGBA()
			pure := (r == 0xFFFF && g == 0xFFFF && b == 0xFFFF) || (r == 0 && g == 0 && b == 0)
			assert.True(t, pure, "pixel (%d,%d) should be pure black or white, got (%d,%d,%d)", x, y, r, g, b)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJPEG, DetectFormat(getJPEGBytes(t)))
	assert.Equal(t, FormatPNG, DetectFormat(getPNGBytes(t)))
	assert.Equal(t, FormatUnknown, DetectFormat([]byte("plain text")))
	assert.Equal(t, FormatUnknown, DetectFormat(nil))
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJPEG, FormatForPath("frames/0001.jpg"))
	assert.Equal(t, FormatJPEG, FormatForPath("frames/0001.JPEG"))
	assert.Equal(t, FormatPNG, FormatForPath("frames/0001.png"))
	assert.Equal(t, FormatUnknown, FormatForPath("frames/0001.webm"))
}

func TestToRGBA(t *testing.T) {
	// Already RGBA at origin: no copy.
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.Same(t, src, ToRGBA(src))

	// Other representations get converted.
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	out := ToRGBA(gray)
	require.NotNil(t, out)
	assert.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
}

// Benchmark different target sizes to understand scaling performance
func BenchmarkDecodeAndResize(b *testing.B) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, getTestImage(), nil); err != nil {
		b.Fatal(err)
	}
	jpegBytes := buf.Bytes()

	sizes := []struct {
		name string
		w, h int
	}{
		{"Small_64x64", 64, 64},
		{"Medium_224x224", 224, 224},
		{"ModelInput_640x640", 640, 640},
	}

	for _, size := range sizes {
		b.Run(size.name, func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				img, err := DecodeAndResize(jpegBytes, size.w, size.h, FormatJPEG)
				if err != nil {
					b.Fatal(err)
				}
				_ = img
			}
		})
	}
}
