package ik

import (
	"math"

	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// RaycastHit is the result of a RaycastFunc. Point and Normal are in the
// pose's model space.
type RaycastHit struct {
	Hit    bool
	Point  mgl32.Vec3
	Normal mgl32.Vec3
}

// RaycastFunc casts a ray from origin along the normalized dir against the
// environment.
type RaycastFunc func(origin, dir mgl32.Vec3) RaycastHit

// Leg is a hip/knee/ankle chain placed on the floor by FloorSolver.
type Leg struct {
	Hip, Knee, Ankle int
	// KneeAxis is the axis, in knee joint space, the knee bends around.
	KneeAxis mgl32.Vec3
	// Pole orients the knee, in model space. When zero the knee keeps
	// bending toward its current side.
	Pole   mgl32.Vec3
	Soften float32
	// AnkleUp and AnkleForward are the ankle joint space axes aligned with
	// the floor normal and kept facing forward when ankles are aligned.
	AnkleUp      mgl32.Vec3
	AnkleForward mgl32.Vec3
}

// FloorSolver keeps feet on uneven ground. For each leg it casts a ray down
// through the ankle, lowers or raises Pelvis so that every foot can reach
// the ground, bends the legs so that ankles rest FootHeight above the hit
// points, and optionally aligns ankles with the floor normal.
type FloorSolver struct {
	Legs []Leg
	// Pelvis is moved along Up by the offset the legs need. NoParent
	// disables the offset.
	Pelvis  int
	Up      mgl32.Vec3
	Raycast RaycastFunc
	// RayHeight is how far above the ankle rays start.
	RayHeight   float32
	FootHeight  float32
	AlignAnkles bool
	Weight      float32
}

func (f *FloorSolver) Validate(s *skeleton.Skeleton) error {
	if f.Raycast == nil {
		return ErrRaycast
	}
	if len(f.Legs) == 0 {
		return ErrNoLegs
	}
	if err := checkAxis("up", f.Up); err != nil {
		return err
	}
	for i, leg := range f.Legs {
		if err := checkChain(s, leg.Ankle, leg.Knee, leg.Hip); err != nil {
			return errors.Wrapf(err, "leg %d", i)
		}
		if f.Pelvis != skeleton.NoParent {
			if err := checkChain(s, leg.Hip, f.Pelvis); err != nil {
				return errors.Wrapf(err, "leg %d pelvis", i)
			}
		}
		if err := checkAxis("knee axis", leg.KneeAxis); err != nil {
			return errors.Wrapf(err, "leg %d", i)
		}
		if f.AlignAnkles {
			if err := checkAxis("ankle up", leg.AnkleUp); err != nil {
				return errors.Wrapf(err, "leg %d", i)
			}
			if err := checkAxis("ankle forward", leg.AnkleForward); err != nil {
				return errors.Wrapf(err, "leg %d", i)
			}
		}
	}
	return nil
}

type legContact struct {
	hit    bool
	target mgl32.Vec3
	normal mgl32.Vec3
}

func (f *FloorSolver) Solve(p *Pose) bool {
	up := normalize(f.Up)
	contacts := make([]legContact, len(f.Legs))

	// Ankle targets and the vertical offset the pelvis needs for the lowest
	// one to be reachable.
	offset := float32(math.Inf(1))
	for i, leg := range f.Legs {
		ankle := core.Translation(p.Model(leg.Ankle))
		hit := f.Raycast(ankle.Add(up.Mul(f.RayHeight)), up.Mul(-1))
		if !hit.Hit {
			continue
		}
		normal := normalize(hit.Normal)
		if normal.LenSqr() == 0 {
			normal = up
		}
		target := hit.Point.Add(normal.Mul(f.FootHeight))
		contacts[i] = legContact{hit: true, target: target, normal: normal}
		offset = min(offset, target.Sub(ankle).Dot(up))
	}

	if f.Pelvis != skeleton.NoParent && !math.IsInf(float64(offset), 1) {
		p.TranslateModel(f.Pelvis, up.Mul(offset*mgl32.Clamp(f.Weight, 0, 1)))
		p.Propagate(f.Pelvis)
	}

	reached := true
	for i, leg := range f.Legs {
		c := contacts[i]
		if !c.hit {
			continue
		}
		if !f.placeLeg(p, leg, c) {
			reached = false
		}
		if f.AlignAnkles {
			f.alignAnkle(p, leg, c)
		}
	}
	return reached
}

func (f *FloorSolver) placeLeg(p *Pose, leg Leg, c legContact) bool {
	pole := leg.Pole
	if pole.LenSqr() == 0 {
		hip := core.Translation(p.Model(leg.Hip))
		knee := core.Translation(p.Model(leg.Knee))
		ankle := core.Translation(p.Model(leg.Ankle))
		pole = knee.Sub(hip.Add(ankle).Mul(0.5))
	}
	soften := leg.Soften
	if soften == 0 {
		soften = 1
	}
	solver := TwoBoneSolver{
		Start:   leg.Hip,
		Mid:     leg.Knee,
		End:     leg.Ankle,
		Target:  c.target,
		Pole:    pole,
		MidAxis: leg.KneeAxis,
		Soften:  soften,
		Weight:  f.Weight,
	}
	return solver.Solve(p)
}

// alignAnkle turns the ankle so that AnkleUp follows the floor normal while
// AnkleForward keeps its current heading.
func (f *FloorSolver) alignAnkle(p *Pose, leg Leg, c legContact) {
	model := p.Model(leg.Ankle)
	ankle := core.Translation(model)
	job := AimJob{
		Joint:   model,
		Target:  ankle.Add(c.normal),
		Forward: normalize(leg.AnkleUp),
		Up:      normalize(leg.AnkleForward),
		Pole:    core.TransformVector(model, leg.AnkleForward),
		Weight:  f.Weight,
	}
	if job.Run() {
		p.RotateLocal(leg.Ankle, job.Correction)
		p.Propagate(leg.Ankle)
	}
}
