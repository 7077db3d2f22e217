package masks

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/maskar-ai/go-maskar/images"
)

const (
	// MinOutlineRadius and MaxOutlineRadius bound the configurable outline
	// thickness in mask cells.
	MinOutlineRadius = 1
	MaxOutlineRadius = 15
)

// circleOffsets enumerates the non-zero cell offsets inside a circular
// neighborhood of the given radius.
func circleOffsets(radius int) [][2]int {
	offsets := make([][2]int, 0, (2*radius+1)*(2*radius+1))
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if dx*dx+dy*dy <= r2 {
				offsets = append(offsets, [2]int{dx, dy})
			}
		}
	}
	return offsets
}

// isEdge reports whether a covered cell touches the outside of the mask
// within the neighborhood. Cells beyond the grid boundary count as outside,
// so the image border always reads as an edge.
func isEdge(m Mask, x, y int, offsets [][2]int) bool {
	for _, d := range offsets {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= m.Size || ny >= m.Size || !m.Covered(nx, ny) {
			return true
		}
	}
	return false
}

// EdgeMask marks every covered cell that has a non-covered neighbor within
// a circular radius. Non-covered cells are never edges. The radius is
// clamped to [MinOutlineRadius, MaxOutlineRadius].
func EdgeMask(m Mask, radius int) []bool {
	radius = images.ClampInt(radius, MinOutlineRadius, MaxOutlineRadius)
	offsets := circleOffsets(radius)

	edges := make([]bool, m.Size*m.Size)
	for y := 0; y < m.Size; y++ {
		for x := 0; x < m.Size; x++ {
			if !m.Covered(x, y) {
				continue
			}
			edges[y*m.Size+x] = isEdge(m, x, y, offsets)
		}
	}
	return edges
}

// Rasterize paints the crop region of a mask into a bitmap. Covered cells
// become overlay-colored pixels with alpha = activation × 0.8 scaled by the
// overlay's own alpha; everything else stays transparent. Rows are stored
// vertically flipped relative to mask-row order to match downstream image
// coordinate conventions.
//
// An empty crop returns nil: the detection survives, it just has no bitmap.
func Rasterize(m Mask, crop CropSpec, overlay color.NRGBA) *image.NRGBA {
	if crop.Empty() {
		return nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, crop.Width(), crop.Height()))
	height := crop.Height()

	for my := crop.Y0; my < crop.Y1; my++ {
		oy := height - 1 - (my - crop.Y0)
		for mx := crop.X0; mx < crop.X1; mx++ {
			act := m.At(mx, my)
			if act <= maskThreshold {
				continue
			}
			img.SetNRGBA(mx-crop.X0, oy, color.NRGBA{
				R: overlay.R,
				G: overlay.G,
				B: overlay.B,
				A: uint8(act * solidAlphaScale * float32(overlay.A)),
			})
		}
	}
	return img
}

// RenderBoth produces the solid and outline bitmaps for one crop region in
// a single pass, sharing the per-cell edge test. The outline bitmap keeps
// only the cells EdgeMask would mark; both use Rasterize's pixel rule.
//
// Distance-based mode switching swaps between the two bitmaps, so both are
// always produced together.
func RenderBoth(m Mask, crop CropSpec, overlay color.NRGBA, outlineRadius int) (solid, outline *image.NRGBA) {
	if crop.Empty() {
		return nil, nil
	}

	radius := images.ClampInt(outlineRadius, MinOutlineRadius, MaxOutlineRadius)
	offsets := circleOffsets(radius)

	bounds := image.Rect(0, 0, crop.Width(), crop.Height())
	solid = image.NewNRGBA(bounds)
	outline = image.NewNRGBA(bounds)
	height := crop.Height()

	for my := crop.Y0; my < crop.Y1; my++ {
		oy := height - 1 - (my - crop.Y0)
		for mx := crop.X0; mx < crop.X1; mx++ {
			act := m.At(mx, my)
			if act <= maskThreshold {
				continue
			}
			px := color.NRGBA{
				R: overlay.R,
				G: overlay.G,
				B: overlay.B,
				A: uint8(act * solidAlphaScale * float32(overlay.A)),
			}
			ox := mx - crop.X0
			solid.SetNRGBA(ox, oy, px)
			if isEdge(m, mx, my, offsets) {
				outline.SetNRGBA(ox, oy, px)
			}
		}
	}
	return solid, outline
}

// Upscale scales a mask bitmap to display resolution with nearest-neighbor
// sampling so cell edges stay hard. Nil in, nil out.
func Upscale(bitmap *image.NRGBA, width, height int) *image.NRGBA {
	if bitmap == nil {
		return nil
	}
	scaled := images.UpscaleNearest(bitmap, width, height)
	if out, ok := scaled.(*image.NRGBA); ok {
		return out
	}
	out := image.NewNRGBA(image.Rect(0, 0, scaled.Bounds().Dx(), scaled.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return out
}
