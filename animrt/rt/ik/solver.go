package ik

import (
	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

var (
	ErrJointIndex = errors.New("ik: joint index out of range")
	ErrChainOrder = errors.New("ik: joints are not an ancestor ordered chain")
	ErrAxis       = errors.New("ik: axis must be non zero")
	ErrRaycast    = errors.New("ik: floor solver needs a raycast function")
	ErrNoLegs     = errors.New("ik: floor solver needs at least one leg")
	ErrEmptyChain = errors.New("ik: empty aim chain")
)

// Solver corrects a pose after it has been sampled, blended and converted
// to model space. Validate is called once against the skeleton before any
// Solve. Solve updates the models of the joints it changes and reports
// whether its targets were reached.
type Solver interface {
	Validate(s *skeleton.Skeleton) error
	Solve(p *Pose) bool
}

func checkJoint(s *skeleton.Skeleton, joint int) error {
	if joint < 0 || joint >= s.NumJoints() {
		return errors.Wrapf(ErrJointIndex, "joint %d of %d", joint, s.NumJoints())
	}
	return nil
}

// checkChain verifies that each joint is a strict ancestor of the previous
// one.
func checkChain(s *skeleton.Skeleton, joints ...int) error {
	for i, j := range joints {
		if err := checkJoint(s, j); err != nil {
			return err
		}
		if i > 0 && !s.IsAncestor(j, joints[i-1]) {
			return errors.Wrapf(ErrChainOrder, "%q is not an ancestor of %q", s.Names()[j], s.Names()[joints[i-1]])
		}
	}
	return nil
}

func checkAxis(name string, v mgl32.Vec3) error {
	if v.LenSqr() < 1e-12 {
		return errors.Wrapf(ErrAxis, "%s", name)
	}
	return nil
}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if l := v.Len(); l > 0 {
		return v.Mul(1 / l)
	}
	return v
}

// TwoBoneSolver drives a TwoBoneJob on three joints of a pose. Target and
// Pole are in model space; they can be changed between Solve calls.
type TwoBoneSolver struct {
	Start, Mid, End int
	Target          mgl32.Vec3
	Pole            mgl32.Vec3
	MidAxis         mgl32.Vec3
	Twist           float32
	Soften          float32
	Weight          float32
}

func (t *TwoBoneSolver) Validate(s *skeleton.Skeleton) error {
	if err := checkChain(s, t.End, t.Mid, t.Start); err != nil {
		return err
	}
	return checkAxis("mid axis", t.MidAxis)
}

func (t *TwoBoneSolver) Solve(p *Pose) bool {
	job := TwoBoneJob{
		Start:   p.Model(t.Start),
		Mid:     p.Model(t.Mid),
		End:     p.Model(t.End),
		Target:  t.Target,
		Pole:    t.Pole,
		MidAxis: normalize(t.MidAxis),
		Twist:   t.Twist,
		Soften:  t.Soften,
		Weight:  t.Weight,
	}
	if !job.Run() {
		return false
	}
	p.RotateLocal(t.Start, job.StartCorrection)
	p.RotateLocal(t.Mid, job.MidCorrection)
	p.Propagate(t.Start)
	return job.Reached
}

// AimChainSolver orients a chain of joints, listed from child to parent
// (head, neck, spine...), so that Forward of the first joint points at
// Target. Every joint but the last one gets JointWeight of the remaining
// correction; the last one gets full weight so that the chain ends aiming
// at the target. Weight scales the whole chain.
type AimChainSolver struct {
	Joints      []int
	Target      mgl32.Vec3
	Forward     mgl32.Vec3
	Offset      mgl32.Vec3
	Up          mgl32.Vec3
	Pole        mgl32.Vec3
	Twist       float32
	JointWeight float32
	Weight      float32
}

func (a *AimChainSolver) Validate(s *skeleton.Skeleton) error {
	if len(a.Joints) == 0 {
		return ErrEmptyChain
	}
	if err := checkChain(s, a.Joints...); err != nil {
		return err
	}
	if err := checkAxis("forward", a.Forward); err != nil {
		return err
	}
	return checkAxis("up", a.Up)
}

func (a *AimChainSolver) Solve(p *Pose) bool {
	forward := normalize(a.Forward)
	offset := a.Offset
	reached := true

	for i, joint := range a.Joints {
		last := i == len(a.Joints)-1
		weight := a.Weight
		if !last {
			weight *= a.JointWeight
		}
		job := AimJob{
			Joint:   p.Model(joint),
			Target:  a.Target,
			Forward: forward,
			Offset:  offset,
			Up:      normalize(a.Up),
			Pole:    a.Pole,
			Twist:   a.Twist,
			Weight:  weight,
		}
		if !job.Run() {
			return false
		}
		reached = reached && job.Reached
		p.RotateLocal(joint, job.Correction)

		if !last {
			// Express forward and offset in the next joint's space, taking
			// the correction just applied into account.
			corrected := p.Model(joint).Mul4(job.Correction.Mat4())
			toNext := p.Model(a.Joints[i+1]).Inv().Mul4(corrected)
			forward = normalize(core.TransformVector(toNext, forward))
			offset = core.TransformPoint(toNext, offset)
		}
	}
	p.Propagate(a.Joints[len(a.Joints)-1])
	return reached
}
