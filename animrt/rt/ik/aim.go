package ik

import (
	"github.com/gekko3d/skelanim/animrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// AimJob rotates a joint so that its Forward axis points at Target. Joint,
// Target and Pole are in model space, Forward, Offset and Up in joint space.
//
// Offset moves the aiming origin away from the joint, like eyes in front of
// a head joint. Up is rolled into the plane defined by the target direction
// and Pole.
type AimJob struct {
	Joint   mgl32.Mat4
	Target  mgl32.Vec3
	Forward mgl32.Vec3
	Offset  mgl32.Vec3
	Up      mgl32.Vec3
	Pole    mgl32.Vec3
	Twist   float32
	Weight  float32

	// Correction is to be post-multiplied onto the joint's local rotation.
	Correction mgl32.Quat
	// Reached is false when the target is too close to the joint to be
	// aimed at with Offset.
	Reached bool
}

// NewAimJob returns a job aiming the x axis with y up and full weight.
func NewAimJob() AimJob {
	return AimJob{
		Joint:   mgl32.Ident4(),
		Forward: mgl32.Vec3{1, 0, 0},
		Up:      mgl32.Vec3{0, 1, 0},
		Pole:    mgl32.Vec3{0, 1, 0},
		Weight:  1,
	}
}

func (j *AimJob) Validate() bool {
	return isNormalized(j.Forward) && isNormalized(j.Up)
}

// offsettedForward returns the forward ray origin at offset, extended until
// it crosses the sphere centered on the joint whose radius is the target
// distance. ok is false when offset lies outside of that sphere.
func offsettedForward(forward, offset, target mgl32.Vec3) (mgl32.Vec3, bool) {
	aoLen := forward.Dot(offset)
	acLen2 := offset.LenSqr() - aoLen*aoLen
	r2 := target.LenSqr()
	if acLen2 > r2 {
		return mgl32.Vec3{}, false
	}
	aiLen := sqrt(r2 - acLen2)
	return offset.Add(forward.Mul(aiLen - aoLen)), true
}

func (j *AimJob) Run() bool {
	if !j.Validate() {
		return false
	}

	invJoint := j.Joint.Inv()
	toTarget := core.TransformPoint(invJoint, j.Target)
	toTargetLen2 := toTarget.LenSqr()

	forward, ok := offsettedForward(j.Forward, j.Offset, toTarget)
	j.Reached = ok
	if !ok || toTargetLen2 == 0 {
		j.Correction = mgl32.QuatIdent()
		return true
	}

	toTargetRot := core.QuatFromVectors(forward, toTarget)

	correctedUp := toTargetRot.Rotate(j.Up)
	pole := core.TransformVector(invJoint, j.Pole)
	refNormal := pole.Cross(toTarget)
	jointNormal := correctedUp.Cross(toTarget)
	refLen2, jointLen2 := refNormal.LenSqr(), jointNormal.LenSqr()

	axis := toTarget.Mul(1 / sqrt(toTargetLen2))
	rotatePlane := mgl32.QuatIdent()
	if refLen2 > 1e-12 && jointLen2 > 1e-12 {
		cos := jointNormal.Dot(refNormal) / sqrt(refLen2*jointLen2)
		flipped := axis
		if refNormal.Dot(correctedUp) < 0 {
			flipped = axis.Mul(-1)
		}
		rotatePlane = core.QuatFromAxisCosAngle(flipped, cos)
	}

	twisted := rotatePlane.Mul(toTargetRot)
	if j.Twist != 0 {
		twisted = core.QuatFromAxisAngle(axis, j.Twist).Mul(twisted)
	}
	j.Correction = core.WeightQuat(twisted, j.Weight)
	return true
}
