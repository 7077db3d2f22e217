package images

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Decode decodes raw image bytes of the given format into a Go-native
// image.Image.
//
// Arguments:
//   - data: The encoded image bytes.
//   - format: The declared format of the bytes.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if the bytes do not decode as the declared format.
func Decode(data []byte, format ImageFormat) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}

	switch format {
	case FormatJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode JPEG")
		}
		return img, nil
	case FormatPNG:
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode PNG")
		}
		return img, nil
	default:
		return nil, errors.Errorf("unsupported image format: %s", format)
	}
}

// ResizeImage scales an image to the given dimensions with bilinear
// interpolation, the usual choice for model input preprocessing.
func ResizeImage(img image.Image, width, height int) image.Image {
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}

// UpscaleNearest scales an image with nearest-neighbor interpolation.
// Mask overlays use this so binary cell edges stay hard instead of
// feathering into half-transparent gradients.
func UpscaleNearest(img image.Image, width, height int) image.Image {
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.NearestNeighbor)
}

// DecodeAndResize decodes image bytes and scales the result to the given
// dimensions in one call.
//
// Arguments:
//   - data: The encoded image bytes.
//   - width: The width to resize the image to.
//   - height: The height to resize the image to.
//   - format: The declared format of the bytes.
//
// Returns:
//   - image.Image: The decoded, resized image.
//   - error: An error if decoding fails or the dimensions are invalid.
func DecodeAndResize(data []byte, width, height int, format ImageFormat) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	img, err := Decode(data, format)
	if err != nil {
		return nil, err
	}

	return ResizeImage(img, width, height), nil
}

// ToRGBA converts any image.Image into *image.RGBA with a zero origin,
// copying only when the underlying representation differs.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
	return out
}
