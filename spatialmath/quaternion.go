// Package spatialmath provides the quaternion and vector operations used by
// the motion alignment and transition code.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// If two quaternions are closer than this in dot product, slerp falls back to
// a normalized lerp to avoid dividing by a vanishing sine.
const slerpEpsilon = 0.9995

// Norm returns the norm of the imaginary components of the quaternion.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// QuatNorm returns the full four-component norm of the quaternion.
func QuatNorm(q quat.Number) float64 {
	return math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Normalize scales the quaternion to unit norm. A degenerate all-zero
// quaternion normalizes to the identity.
func Normalize(q quat.Number) quat.Number {
	n := QuatNorm(q)
	if n < 1e-10 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing
// the same orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// OrientationBetween returns the rotation taking q1 to q2.
func OrientationBetween(q1, q2 quat.Number) quat.Number {
	return quat.Mul(q2, quat.Conj(q1))
}

// Yaw returns the rotation about the vertical (+Z) axis encoded in q,
// in radians. Roll and pitch do not contribute.
// See https://en.wikipedia.org/wiki/Conversion_between_quaternions_and_Euler_angles
func Yaw(q quat.Number) float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}

// YawQuaternion extracts the yaw-only component of q as a unit quaternion,
// discarding roll and pitch entirely.
func YawQuaternion(q quat.Number) quat.Number {
	half := Yaw(q) / 2
	return quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
}

// Rotate rotates the vector v by the unit quaternion q.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Slerp performs a spherical interpolation between q1 and q2 by the given
// amount in [0, 1], taking the shorter arc. Near-parallel quaternions are
// interpolated linearly and re-normalized.
func Slerp(q1, q2 quat.Number, by float64) quat.Number {
	dot := q1.Real*q2.Real + q1.Imag*q2.Imag + q1.Jmag*q2.Jmag + q1.Kmag*q2.Kmag
	if dot < 0 {
		q2 = Flip(q2)
		dot = -dot
	}
	if dot > slerpEpsilon {
		return Normalize(quat.Add(q1, quat.Scale(by, quat.Sub(q2, q1))))
	}

	theta0 := math.Acos(dot)
	theta := theta0 * by
	sinTheta0 := math.Sin(theta0)

	s1 := math.Cos(theta) - dot*math.Sin(theta)/sinTheta0
	s2 := math.Sin(theta) / sinTheta0
	return quat.Add(quat.Scale(s1, q1), quat.Scale(s2, q2))
}

// Lerp linearly interpolates between two vectors by the given amount.
func Lerp(v1, v2 r3.Vector, by float64) r3.Vector {
	return v1.Add(v2.Sub(v1).Mul(by))
}
