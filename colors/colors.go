// Package colors - perceptual overlay color selection.
//
// Overlay colors are picked for maximal perceptual contrast against the
// sampled background: candidates are compared in CIE LAB space, where
// Euclidean distance (Delta-E) approximates how different two colors look
// to a human, rather than in RGB where channel distance and perceived
// difference diverge badly.
package colors

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/maskar-ai/go-maskar/images"
)

// NeutralGray is the fallback when background sampling finds nothing usable.
var NeutralGray = color.NRGBA{R: 128, G: 128, B: 128, A: 255}

// toColorful converts an 8-bit color into go-colorful's sRGB representation.
// The LAB conversion chain (linearization, XYZ under D65, LAB) lives inside
// DistanceLab.
func toColorful(c color.NRGBA) colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// DeltaE is the Euclidean distance between two colors in CIE LAB space.
// Identical colors score 0; larger is more visually distinct.
func DeltaE(a, b color.NRGBA) float64 {
	return toColorful(a).DistanceLab(toColorful(b))
}

// SampleBackground estimates the dominant background color under a
// detection by averaging a grid of up to sampleCount points inside the
// normalized region. Returns NeutralGray when the image, region, or sample
// budget yields no valid samples.
func SampleBackground(img image.Image, region images.RegionF, sampleCount int) color.NRGBA {
	if img == nil || sampleCount <= 0 {
		return NeutralGray
	}
	region = region.ClampUnit()
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || region.W <= 0 || region.H <= 0 {
		return NeutralGray
	}

	// A side×side grid keeps side² ≤ sampleCount.
	side := int(math.Floor(math.Sqrt(float64(sampleCount))))
	if side < 1 {
		side = 1
	}

	var rSum, gSum, bSum, count uint64
	for iy := 0; iy < side; iy++ {
		for ix := 0; ix < side; ix++ {
			// Sample at cell centers of the grid laid over the region.
			nx := region.X + (float64(ix)+0.5)/float64(side)*region.W
			ny := region.Y + (float64(iy)+0.5)/float64(side)*region.H
			px := bounds.Min.X + int(nx*float64(w))
			py := bounds.Min.Y + int(ny*float64(h))
			if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py >= bounds.Max.Y {
				continue
			}
			r, g, b, _ := img.At(px, py).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
			count++
		}
	}
	if count == 0 {
		return NeutralGray
	}

	return color.NRGBA{
		R: uint8(rSum / count),
		G: uint8(gSum / count),
		B: uint8(bSum / count),
		A: 255,
	}
}

// BestContrast returns the palette entry with the largest Delta-E against
// the background, carrying the requested alpha. Ties break toward the
// earlier palette entry (strictly-greater comparison), so selection is
// deterministic. An empty palette degrades to NeutralGray.
func BestContrast(background color.NRGBA, palette []color.NRGBA, alpha uint8) color.NRGBA {
	if len(palette) == 0 {
		out := NeutralGray
		out.A = alpha
		return out
	}

	bg := toColorful(background)
	best := palette[0]
	bestDist := bg.DistanceLab(toColorful(palette[0]))
	for _, cand := range palette[1:] {
		if d := bg.DistanceLab(toColorful(cand)); d > bestDist {
			best = cand
			bestDist = d
		}
	}

	best.A = alpha
	return best
}

// DefaultPalette returns the built-in high-saturation overlay candidates.
func DefaultPalette() []color.NRGBA {
	return []color.NRGBA{
		{R: 0, G: 255, B: 0, A: 255},   // green
		{R: 255, G: 0, B: 255, A: 255}, // magenta
		{R: 0, G: 255, B: 255, A: 255}, // cyan
		{R: 255, G: 255, B: 0, A: 255}, // yellow
		{R: 255, G: 128, B: 0, A: 255}, // orange
		{R: 0, G: 128, B: 255, A: 255}, // azure
	}
}
