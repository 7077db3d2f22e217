// Package spatial - world-space poses and the raycast collaborator contract.
package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a world-space position and orientation.
type Pose struct {
	Position    r3.Vector
	Orientation quat.Number
}

// NewPose builds a pose from a position and orientation.
func NewPose(position r3.Vector, orientation quat.Number) Pose {
	return Pose{Position: position, Orientation: orientation}
}

// IdentityOrientation is the no-rotation quaternion.
func IdentityOrientation() quat.Number {
	return quat.Number{Real: 1}
}

// DistanceTo returns the Euclidean distance between two pose positions.
func (p Pose) DistanceTo(q Pose) float64 {
	return p.Position.Sub(q.Position).Norm()
}

// Rotate applies a rotation quaternion to a vector: q v q*.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// LookAt returns the orientation that points local +Z from one position
// toward another, keeping local +Y as close to world up as the direction
// allows. Anchored masks use this to face the viewer.
//
// Coincident positions return the identity orientation. A straight up or
// down direction falls back to world +Z as the up reference.
func LookAt(from, at r3.Vector) quat.Number {
	forward := at.Sub(from)
	if forward.Norm() < 1e-12 {
		return IdentityOrientation()
	}
	forward = forward.Normalize()

	up := r3.Vector{Y: 1}
	right := up.Cross(forward)
	if right.Norm() < 1e-9 {
		// Looking straight along world up; any horizontal right works.
		up = r3.Vector{Z: 1}
		right = up.Cross(forward)
	}
	right = right.Normalize()
	up = forward.Cross(right)

	return matrixToQuat(right, up, forward)
}

// matrixToQuat converts a rotation matrix given as three orthonormal
// column vectors (the images of world +X, +Y, +Z) into a unit quaternion
// using Shepperd's method: branch on the largest diagonal term to keep the
// divisor well away from zero.
func matrixToQuat(right, up, forward r3.Vector) quat.Number {
	m00, m01, m02 := right.X, up.X, forward.X
	m10, m11, m12 := right.Y, up.Y, forward.Y
	m20, m21, m22 := right.Z, up.Z, forward.Z

	trace := m00 + m11 + m22
	var q quat.Number
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1.0) * 2
		q.Real = 0.25 * s
		q.Imag = (m21 - m12) / s
		q.Jmag = (m02 - m20) / s
		q.Kmag = (m10 - m01) / s
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1.0+m00-m11-m22) * 2
		q.Real = (m21 - m12) / s
		q.Imag = 0.25 * s
		q.Jmag = (m01 + m10) / s
		q.Kmag = (m02 + m20) / s
	case m11 > m22:
		s := math.Sqrt(1.0+m11-m00-m22) * 2
		q.Real = (m02 - m20) / s
		q.Imag = (m01 + m10) / s
		q.Jmag = 0.25 * s
		q.Kmag = (m12 + m21) / s
	default:
		s := math.Sqrt(1.0+m22-m00-m11) * 2
		q.Real = (m10 - m01) / s
		q.Imag = (m02 + m20) / s
		q.Jmag = (m12 + m21) / s
		q.Kmag = 0.25 * s
	}
	return q
}

// OffsetToward moves a point a fixed distance along the direction to a
// target. Coincident points come back unchanged. Anchor placement uses
// this to lift a mask off the detected surface toward the viewer.
func OffsetToward(point, target r3.Vector, distance float64) r3.Vector {
	dir := target.Sub(point)
	n := dir.Norm()
	if n < 1e-12 || distance == 0 {
		return point
	}
	return point.Add(dir.Mul(distance / n))
}
