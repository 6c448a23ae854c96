// Package ik corrects joint rotations of an animated pose so that end
// effectors reach targets.
package ik

import (
	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/pose"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
)

// Pose holds the local and model transforms IK solvers read and correct.
// Models include the root transform.
type Pose struct {
	skeleton *skeleton.Skeleton
	locals   []core.SoaTransform
	models   []mgl32.Mat4
	root     mgl32.Mat4
}

// NewPose allocates a pose of s initialized to the rest pose.
func NewPose(s *skeleton.Skeleton) *Pose {
	p := &Pose{
		skeleton: s,
		locals:   make([]core.SoaTransform, s.NumSoaJoints()),
		models:   make([]mgl32.Mat4, s.NumJoints()),
		root:     mgl32.Ident4(),
	}
	copy(p.locals, s.RestPoses())
	p.Update()
	return p
}

func (p *Pose) Skeleton() *skeleton.Skeleton { return p.skeleton }

// Locals returns the SoA local transforms, writable by the caller. Call
// Update after changing them.
func (p *Pose) Locals() []core.SoaTransform { return p.locals }

func (p *Pose) Models() []mgl32.Mat4 { return p.models }

func (p *Pose) Model(joint int) mgl32.Mat4 { return p.models[joint] }

func (p *Pose) Root() mgl32.Mat4 { return p.root }

// SetRoot sets the transform of root joints' parent. Models are refreshed
// on the next Update.
func (p *Pose) SetRoot(root mgl32.Mat4) { p.root = root }

// ParentModel returns the model matrix of joint's parent, or the root
// transform.
func (p *Pose) ParentModel(joint int) mgl32.Mat4 {
	if parent := p.skeleton.Parent(joint); parent != skeleton.NoParent {
		return p.models[parent]
	}
	return p.root
}

// Update recomputes every model matrix.
func (p *Pose) Update() bool {
	job := pose.LocalToModelJob{Skeleton: p.skeleton, Root: &p.root, Input: p.locals, Output: p.models}
	return job.Run()
}

// Propagate recomputes the model matrices of joint and its descendants.
func (p *Pose) Propagate(joint int) bool {
	job := pose.LocalToModelJob{
		Skeleton:    p.skeleton,
		Root:        &p.root,
		Input:       p.locals,
		Output:      p.models,
		From:        joint,
		SubtreeOnly: true,
	}
	return job.Run()
}

// RotateLocal post-multiplies the local rotation of joint by correction.
// Models are left untouched.
func (p *Pose) RotateLocal(joint int, correction mgl32.Quat) {
	t := core.JointTransform(p.locals, joint)
	t.Rotation = t.Rotation.Mul(correction).Normalize()
	core.SetJointTransform(p.locals, joint, t)
}

// TranslateModel moves joint by offset, expressed in model space, by
// updating its local translation. Models are left untouched.
func (p *Pose) TranslateModel(joint int, offset mgl32.Vec3) {
	local := core.TransformVector(p.ParentModel(joint).Inv(), offset)
	t := core.JointTransform(p.locals, joint)
	t.Position = t.Position.Add(local)
	core.SetJointTransform(p.locals, joint, t)
}
