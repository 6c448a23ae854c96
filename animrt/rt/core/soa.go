package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SoaWidth is the number of joints packed in one SoA entry.
const SoaWidth = 4

// NumSoa returns the number of SoA entries needed to hold n joints.
func NumSoa(n int) int {
	return (n + SoaWidth - 1) / SoaWidth
}

// SoaFloat3 stores 4 vectors, component by component.
type SoaFloat3 struct {
	X, Y, Z [SoaWidth]float32
}

// SoaQuat stores 4 quaternions, component by component.
type SoaQuat struct {
	X, Y, Z, W [SoaWidth]float32
}

// SoaTransform stores the local transforms of 4 joints.
type SoaTransform struct {
	Translation SoaFloat3
	Rotation    SoaQuat
	Scale       SoaFloat3
}

func SoaIdentity() SoaTransform {
	return SoaTransform{
		Rotation: SoaQuat{W: [SoaWidth]float32{1, 1, 1, 1}},
		Scale: SoaFloat3{
			X: [SoaWidth]float32{1, 1, 1, 1},
			Y: [SoaWidth]float32{1, 1, 1, 1},
			Z: [SoaWidth]float32{1, 1, 1, 1},
		},
	}
}

func SplatFloat3(v mgl32.Vec3) SoaFloat3 {
	var s SoaFloat3
	for i := 0; i < SoaWidth; i++ {
		s.SetLane(i, v)
	}
	return s
}

func (s *SoaFloat3) Lane(i int) mgl32.Vec3 {
	return mgl32.Vec3{s.X[i], s.Y[i], s.Z[i]}
}

func (s *SoaFloat3) SetLane(i int, v mgl32.Vec3) {
	s.X[i], s.Y[i], s.Z[i] = v[0], v[1], v[2]
}

func (q *SoaQuat) Lane(i int) mgl32.Quat {
	return mgl32.Quat{W: q.W[i], V: mgl32.Vec3{q.X[i], q.Y[i], q.Z[i]}}
}

func (q *SoaQuat) SetLane(i int, v mgl32.Quat) {
	q.X[i], q.Y[i], q.Z[i], q.W[i] = v.V[0], v.V[1], v.V[2], v.W
}

// Normalize normalizes every lane. Degenerate lanes become identity.
func (q *SoaQuat) Normalize() {
	for i := 0; i < SoaWidth; i++ {
		len2 := q.X[i]*q.X[i] + q.Y[i]*q.Y[i] + q.Z[i]*q.Z[i] + q.W[i]*q.W[i]
		if len2 < 1e-16 {
			q.X[i], q.Y[i], q.Z[i], q.W[i] = 0, 0, 0, 1
			continue
		}
		inv := float32(1 / math.Sqrt(float64(len2)))
		q.X[i] *= inv
		q.Y[i] *= inv
		q.Z[i] *= inv
		q.W[i] *= inv
	}
}

func (t *SoaTransform) Lane(i int) Transform {
	return Transform{
		Position: t.Translation.Lane(i),
		Rotation: t.Rotation.Lane(i),
		Scale:    t.Scale.Lane(i),
	}
}

func (t *SoaTransform) SetLane(i int, tr Transform) {
	t.Translation.SetLane(i, tr.Position)
	t.Rotation.SetLane(i, tr.Rotation)
	t.Scale.SetLane(i, tr.Scale)
}

// LerpFloat3 linearly interpolates a and b lane by lane.
func LerpFloat3(a, b *SoaFloat3, alpha *[SoaWidth]float32, out *SoaFloat3) {
	for i := 0; i < SoaWidth; i++ {
		out.X[i] = a.X[i] + (b.X[i]-a.X[i])*alpha[i]
		out.Y[i] = a.Y[i] + (b.Y[i]-a.Y[i])*alpha[i]
		out.Z[i] = a.Z[i] + (b.Z[i]-a.Z[i])*alpha[i]
	}
}

// NLerpQuat interpolates a and b component-wise and renormalizes. Both
// inputs are expected in the same hemisphere.
func NLerpQuat(a, b *SoaQuat, alpha *[SoaWidth]float32, out *SoaQuat) {
	for i := 0; i < SoaWidth; i++ {
		out.X[i] = a.X[i] + (b.X[i]-a.X[i])*alpha[i]
		out.Y[i] = a.Y[i] + (b.Y[i]-a.Y[i])*alpha[i]
		out.Z[i] = a.Z[i] + (b.Z[i]-a.Z[i])*alpha[i]
		out.W[i] = a.W[i] + (b.W[i]-a.W[i])*alpha[i]
	}
	out.Normalize()
}

// JointTransform reads the transform of joint from a SoA pose.
func JointTransform(pose []SoaTransform, joint int) Transform {
	return pose[joint/SoaWidth].Lane(joint % SoaWidth)
}

// SetJointTransform writes the transform of joint into a SoA pose.
func SetJointTransform(pose []SoaTransform, joint int, t Transform) {
	pose[joint/SoaWidth].SetLane(joint%SoaWidth, t)
}

// JointMatrix builds the local matrix of joint from a SoA pose.
func JointMatrix(pose []SoaTransform, joint int) mgl32.Mat4 {
	return JointTransform(pose, joint).Matrix()
}

func FillIdentity(pose []SoaTransform) {
	for i := range pose {
		pose[i] = SoaIdentity()
	}
}
