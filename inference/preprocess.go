package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// FillCHW writes an image into dst as normalized channel-major float32
// planes (all red values, then green, then blue), resizing to size x size
// first. This is the layout segmentation backends expect for their input.
//
// Arguments:
//   - img: The image to convert.
//   - size: The square side length of the network input.
//   - dst: The destination slice to populate.
//
// Returns:
//   - error: An error if the destination is too small.
func FillCHW(img image.Image, size int, dst []float32) error {
	if img == nil {
		return errors.New("nil source image")
	}
	if size < 1 {
		return errors.Errorf("invalid input size %d", size)
	}
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination only holds %d floats, needs %d (make sure it's the right shape)",
			len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	// Resize to the network input size using the Lanczos3 algorithm.
	if b := img.Bounds(); b.Dx() != size || b.Dy() != size {
		img = resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	}

	origin := img.Bounds().Min
	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(origin.X+x, origin.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}

// ImageToTensor converts an image into a [1, 3, size, size] float32 input
// tensor ready for Device.Begin.
func ImageToTensor(img image.Image, size int) (*tensor.Dense, error) {
	if size < 1 {
		return nil, errors.Errorf("invalid input size %d", size)
	}
	data := make([]float32, 3*size*size)
	if err := FillCHW(img, size, data); err != nil {
		return nil, err
	}
	return tensor.New(tensor.WithShape(1, 3, size, size), tensor.WithBacking(data)), nil
}
