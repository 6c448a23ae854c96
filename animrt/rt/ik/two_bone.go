package ik

import (
	"math"

	"github.com/gekko3d/skelanim/animrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// TwoBoneJob bends a start/mid/end joint chain, such as a shoulder, elbow
// and wrist, so that the end joint reaches Target. All positions and
// vectors are in model space except MidAxis, which is in mid joint space.
//
// Run outputs local rotation corrections to post-multiply onto the start
// and mid joints' local rotations.
type TwoBoneJob struct {
	Start, Mid, End mgl32.Mat4
	Target          mgl32.Vec3
	// Pole orients the plane the chain bends in.
	Pole mgl32.Vec3
	// MidAxis is the normalized axis the mid joint bends around.
	MidAxis mgl32.Vec3
	// Twist rotates the chain around the start to target axis, in radians.
	Twist float32
	// Soften in [0,1] is the ratio of the chain length from which the
	// extension slows down as the target moves away. 1 disables it.
	Soften float32
	Weight float32

	StartCorrection mgl32.Quat
	MidCorrection   mgl32.Quat
	// Reached is set when the end joint lands on the target with full
	// weight.
	Reached bool
}

// NewTwoBoneJob returns a job with full weight, no softening and a mid
// joint bending around its z axis.
func NewTwoBoneJob() TwoBoneJob {
	return TwoBoneJob{
		Start:   mgl32.Ident4(),
		Mid:     mgl32.Ident4(),
		End:     mgl32.Ident4(),
		Pole:    mgl32.Vec3{0, 1, 0},
		MidAxis: mgl32.Vec3{0, 0, 1},
		Soften:  1,
		Weight:  1,
	}
}

func (j *TwoBoneJob) Validate() bool {
	return isNormalized(j.MidAxis)
}

func isNormalized(v mgl32.Vec3) bool {
	return math.Abs(float64(v.LenSqr()-1)) < 1e-3
}

// twoBoneSetup holds the chain geometry in start and mid joint spaces.
type twoBoneSetup struct {
	invStart mgl32.Mat4

	startMidMs mgl32.Vec3
	midEndMs   mgl32.Vec3

	startMidSs mgl32.Vec3
	startEndSs mgl32.Vec3

	startMidSsLen2 float32
	midEndSsLen2   float32
	startEndSsLen2 float32
}

func newTwoBoneSetup(j *TwoBoneJob) twoBoneSetup {
	invStart := j.Start.Inv()
	invMid := j.Mid.Inv()

	startMs := core.TransformPoint(invMid, core.Translation(j.Start))
	endMs := core.TransformPoint(invMid, core.Translation(j.End))
	midSs := core.TransformPoint(invStart, core.Translation(j.Mid))
	endSs := core.TransformPoint(invStart, core.Translation(j.End))
	midEndSs := endSs.Sub(midSs)

	return twoBoneSetup{
		invStart:       invStart,
		startMidMs:     startMs.Mul(-1),
		midEndMs:       endMs,
		startMidSs:     midSs,
		startEndSs:     endSs,
		startMidSsLen2: midSs.LenSqr(),
		midEndSsLen2:   midEndSs.LenSqr(),
		startEndSsLen2: endSs.LenSqr(),
	}
}

func (j *TwoBoneJob) Run() bool {
	if !j.Validate() {
		return false
	}
	j.StartCorrection, j.MidCorrection, j.Reached = mgl32.QuatIdent(), mgl32.QuatIdent(), false
	if j.Weight <= 0 {
		return true
	}

	s := newTwoBoneSetup(j)
	if s.startMidSsLen2*s.midEndSsLen2 < 1e-12 {
		return true
	}

	target, targetLen2, reached := j.softenTarget(&s)
	mid := j.midRotation(&s, targetLen2)
	start := j.startRotation(&s, mid, target, targetLen2)

	j.StartCorrection = core.WeightQuat(start, j.Weight)
	j.MidCorrection = core.WeightQuat(mid, j.Weight)
	j.Reached = reached && j.Weight >= 1
	return true
}

// softenTarget returns the target in start joint space, pulled toward the
// start joint when it lies in the softened zone. reached is false when the
// target is out of reach or too close to be reached.
func (j *TwoBoneJob) softenTarget(s *twoBoneSetup) (mgl32.Vec3, float32, bool) {
	target := core.TransformPoint(s.invStart, j.Target)
	targetLen2 := target.LenSqr()

	startMidLen := sqrt(s.startMidSsLen2)
	midEndLen := sqrt(s.midEndSsLen2)
	targetLen := sqrt(targetLen2)

	diff := float32(math.Abs(float64(startMidLen - midEndLen)))
	chain := startMidLen + midEndLen
	da := chain * mgl32.Clamp(j.Soften, 0, 1)
	ds := chain - da

	reached := targetLen <= chain && targetLen >= diff
	if targetLen > da && targetLen > diff && ds > 1e-4 {
		// 1 - 3^4 / (alpha + 3)^4 approximates an exponential decay.
		alpha := (targetLen - da) / ds
		op := 3 + alpha
		ratio := 81 / (op * op * op * op)
		softLen := da + ds - ds*ratio
		target = target.Mul(softLen / targetLen)
		targetLen2 = softLen * softLen
		reached = false
	}
	return target, targetLen2, reached
}

// midRotation bends the mid joint so that the start to end distance
// matches the target distance, using the law of cosines.
func (j *TwoBoneJob) midRotation(s *twoBoneSetup, targetLen2 float32) mgl32.Quat {
	sum := s.startMidSsLen2 + s.midEndSsLen2
	halfRcp := 0.5 / sqrt(s.startMidSsLen2*s.midEndSsLen2)
	corrected := acos((sum - targetLen2) * halfRcp)
	initial := acos((sum - s.startEndSsLen2) * halfRcp)

	// The initial angle is measured on the other side when the chain is bent
	// against the mid axis.
	bentSide := s.startMidMs.Cross(j.MidAxis)
	if bentSide.Dot(s.midEndMs) < 0 {
		initial = -initial
	}
	return core.QuatFromAxisAngle(j.MidAxis, corrected-initial)
}

// startRotation turns the start joint so that the bent chain points at the
// target, then rolls it around the target axis into the pole plane.
func (j *TwoBoneJob) startRotation(s *twoBoneSetup, mid mgl32.Quat, target mgl32.Vec3, targetLen2 float32) mgl32.Quat {
	pole := core.TransformVector(s.invStart, j.Pole)

	midEndFinal := core.TransformVector(s.invStart, core.TransformVector(j.Mid, mid.Rotate(s.midEndMs)))
	startEndFinal := s.startMidSs.Add(midEndFinal)
	toTarget := core.QuatFromVectors(startEndFinal, target)

	if targetLen2 <= 0 {
		return toTarget
	}

	refNormal := target.Cross(pole)
	midAxis := core.TransformVector(s.invStart, core.TransformVector(j.Mid, j.MidAxis))
	jointNormal := toTarget.Rotate(midAxis)
	refLen2, jointLen2 := refNormal.LenSqr(), jointNormal.LenSqr()
	if refLen2 < 1e-12 || jointLen2 < 1e-12 {
		return toTarget
	}

	cos := refNormal.Dot(jointNormal) / sqrt(refLen2*jointLen2)
	axis := target.Mul(1 / sqrt(targetLen2))
	flipped := axis
	if jointNormal.Dot(pole) < 0 {
		flipped = axis.Mul(-1)
	}
	rotatePlane := core.QuatFromAxisCosAngle(flipped, cos)

	if j.Twist != 0 {
		twist := core.QuatFromAxisAngle(axis, j.Twist)
		return twist.Mul(rotatePlane).Mul(toTarget)
	}
	return rotatePlane.Mul(toTarget)
}

func sqrt(f float32) float32 {
	return float32(math.Sqrt(float64(f)))
}

func acos(f float32) float32 {
	return float32(math.Acos(float64(mgl32.Clamp(f, -1, 1))))
}
