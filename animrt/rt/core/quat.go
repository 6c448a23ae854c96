package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const epsilon = 1e-6

// QuatFromAxisAngle builds a rotation of angle radians around axis. The
// axis does not need to be normalized; a zero axis yields identity.
func QuatFromAxisAngle(axis mgl32.Vec3, angle float32) mgl32.Quat {
	l := axis.Len()
	if l < epsilon {
		return mgl32.QuatIdent()
	}
	return mgl32.QuatRotate(angle, axis.Mul(1/l))
}

// QuatFromAxisCosAngle builds a rotation around a normalized axis from the
// cosine of the rotation angle.
func QuatFromAxisCosAngle(axis mgl32.Vec3, cos float32) mgl32.Quat {
	cos = mgl32.Clamp(cos, -1, 1)
	halfCos := float32(math.Sqrt(float64((1 + cos) * 0.5)))
	halfSin := float32(math.Sqrt(float64((1 - cos) * 0.5)))
	return mgl32.Quat{W: halfCos, V: axis.Mul(halfSin)}
}

// QuatFromVectors returns the shortest rotation bringing from onto to.
// Degenerate inputs yield identity. Opposite vectors turn half a circle
// around an axis orthogonal to from.
func QuatFromVectors(from, to mgl32.Vec3) mgl32.Quat {
	if from.Len() < epsilon || to.Len() < epsilon {
		return mgl32.QuatIdent()
	}
	norm := float32(math.Sqrt(float64(from.LenSqr() * to.LenSqr())))
	w := norm + from.Dot(to)
	if w < epsilon*norm {
		var axis mgl32.Vec3
		if math.Abs(float64(from.X())) > math.Abs(float64(from.Z())) {
			axis = mgl32.Vec3{-from.Y(), from.X(), 0}
		} else {
			axis = mgl32.Vec3{0, -from.Z(), from.Y()}
		}
		return mgl32.Quat{W: 0, V: axis.Normalize()}
	}
	return mgl32.Quat{W: w, V: from.Cross(to)}.Normalize()
}

// PositiveW negates q when its w component is negative, so that a lerp
// toward identity takes the shortest path.
func PositiveW(q mgl32.Quat) mgl32.Quat {
	if q.W < 0 {
		return mgl32.Quat{W: -q.W, V: q.V.Mul(-1)}
	}
	return q
}

// WeightQuat nlerps identity toward q by weight in [0,1].
func WeightQuat(q mgl32.Quat, weight float32) mgl32.Quat {
	q = PositiveW(q)
	if weight >= 1 {
		return q
	}
	if weight <= 0 {
		return mgl32.QuatIdent()
	}
	return mgl32.QuatNlerp(mgl32.QuatIdent(), q, weight)
}
