package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// Ray is a half-line in world space.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// ViewportRay builds the world-space ray through a normalized viewport
// point (origin top-left) for a pinhole viewer with the given horizontal
// field of view in degrees. The viewport is treated as square; local +Z is
// the viewing direction.
func ViewportRay(u, v float64, capture Pose, hfovDegrees float64) Ray {
	half := math.Tan(hfovDegrees * math.Pi / 360.0)
	local := r3.Vector{
		X: (2*u - 1) * half,
		Y: (1 - 2*v) * half,
		Z: 1,
	}
	return Ray{
		Origin:    capture.Position,
		Direction: Rotate(capture.Orientation, local.Normalize()),
	}
}

// Raycaster is the world-sensing collaborator contract: it resolves a
// normalized viewport point (u,v in [0,1], origin top-left), cast from the
// capture-time viewer pose, into a world-space surface point.
//
// The second return reports whether anything was hit. Misses are routine,
// not errors: a detection without a world point stays live for the current
// cycle but can never be anchored.
type Raycaster interface {
	CastViewport(u, v float64, capture Pose) (r3.Vector, bool)
}

// RaycasterFunc adapts a plain function to the Raycaster interface.
type RaycasterFunc func(u, v float64, capture Pose) (r3.Vector, bool)

// CastViewport implements Raycaster.
func (f RaycasterFunc) CastViewport(u, v float64, capture Pose) (r3.Vector, bool) {
	return f(u, v, capture)
}

// PlaneRaycaster returns a Raycaster that intersects viewport rays with a
// horizontal plane at the given height. It projects the viewport point
// through a simple pinhole at the capture pose using the horizontal field
// of view (degrees). Useful as a stand-in collaborator in demos and tests
// when no real depth service is wired.
func PlaneRaycaster(planeY, hfovDegrees float64) Raycaster {
	return RaycasterFunc(func(u, v float64, capture Pose) (r3.Vector, bool) {
		ray := ViewportRay(u, v, capture, hfovDegrees)
		if ray.Direction.Y >= -1e-9 {
			// Parallel to or pointing away from the plane.
			return r3.Vector{}, false
		}
		t := (planeY - ray.Origin.Y) / ray.Direction.Y
		if t <= 0 {
			return r3.Vector{}, false
		}
		return ray.Origin.Add(ray.Direction.Mul(t)), true
	})
}
