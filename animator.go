// Package skelanim drives skeletal animation for many entities: each
// Animator samples and blends its animations, converts the pose to model
// space and applies IK corrections once per frame.
package skelanim

import (
	"time"

	"github.com/gekko3d/skelanim/animrt/rt/animation"
	"github.com/gekko3d/skelanim/animrt/rt/blend"
	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/ik"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

var ErrSkeletonMismatch = errors.New("skelanim: blend tree built for another skeleton")

type solverEntry struct {
	name    string
	solver  ik.Solver
	reached bool
}

// Animator is the animation pipeline of one entity. It is not safe for
// concurrent use, but distinct animators can be updated in parallel.
type Animator struct {
	name     string
	skeleton *skeleton.Skeleton
	tree     *blend.Tree
	pose     *ik.Pose
	solvers  []solverEntry
	logger   Logger
	raycast  ik.RaycastFunc
}

type AnimatorOption func(*Animator)

func WithLogger(l Logger) AnimatorOption {
	return func(a *Animator) { a.logger = orNop(l) }
}

// WithName sets the name animator logs are scoped with.
func WithName(name string) AnimatorOption {
	return func(a *Animator) { a.name = name }
}

func WithRoot(root mgl32.Mat4) AnimatorOption {
	return func(a *Animator) { a.pose.SetRoot(root) }
}

// WithRaycast sets the floor query of floor solvers built from a Config.
func WithRaycast(fn ik.RaycastFunc) AnimatorOption {
	return func(a *Animator) { a.raycast = fn }
}

func NewAnimator(s *skeleton.Skeleton, tree *blend.Tree, opts ...AnimatorOption) (*Animator, error) {
	if tree.Skeleton() != s {
		return nil, ErrSkeletonMismatch
	}
	a := &Animator{
		skeleton: s,
		tree:     tree,
		pose:     ik.NewPose(s),
		logger:   NewNopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = withScope(a.logger, a.name)
	a.pose.Update()
	return a, nil
}

// AddSolver validates s against the skeleton and schedules it after the
// solvers already added. An invalid solver is logged and skipped.
func (a *Animator) AddSolver(name string, s ik.Solver) bool {
	if err := s.Validate(a.skeleton); err != nil {
		a.logger.Errorf("skipping solver %q: %v", name, err)
		return false
	}
	a.solvers = append(a.solvers, solverEntry{name: name, solver: s})
	return true
}

// Update advances the animations by dt and recomputes the pose: blending,
// model space conversion, then IK in registration order.
func (a *Animator) Update(dt time.Duration) bool {
	if err := a.tree.Evaluate(float32(dt.Seconds()), a.pose.Locals()); err != nil {
		a.logger.Errorf("blend tree evaluation failed: %v", err)
		return false
	}
	if !a.pose.Update() {
		a.logger.Errorf("local to model conversion failed")
		return false
	}
	for i := range a.solvers {
		e := &a.solvers[i]
		e.reached = e.solver.Solve(a.pose)
		if !e.reached && a.logger.DebugEnabled() {
			a.logger.Debugf("solver %q did not reach its target", e.name)
		}
	}
	return true
}

// Reached reports whether every solver reached its target on the last
// Update.
func (a *Animator) Reached() bool {
	for _, e := range a.solvers {
		if !e.reached {
			return false
		}
	}
	return true
}

// Solver returns the solver added under name, or nil.
func (a *Animator) Solver(name string) ik.Solver {
	for _, e := range a.solvers {
		if e.name == name {
			return e.solver
		}
	}
	return nil
}

func (a *Animator) NumSolvers() int { return len(a.solvers) }

// ReplaceAnimation rebinds the clips playing old to anim.
func (a *Animator) ReplaceAnimation(old, anim *animation.Animation) (int, error) {
	n, err := a.tree.ReplaceAnimation(old, anim)
	if err != nil {
		return 0, errors.Wrapf(err, "animator %q", a.name)
	}
	if n > 0 {
		a.logger.Infof("rebound %d clips to %q", n, anim.Name())
	}
	return n, nil
}

func (a *Animator) Name() string { return a.name }

func (a *Animator) Skeleton() *skeleton.Skeleton { return a.skeleton }

func (a *Animator) Tree() *blend.Tree { return a.tree }

func (a *Animator) Pose() *ik.Pose { return a.pose }

func (a *Animator) Locals() []core.SoaTransform { return a.pose.Locals() }

// Models returns the model matrices of the last Update, root included.
func (a *Animator) Models() []mgl32.Mat4 { return a.pose.Models() }

func (a *Animator) SetRoot(root mgl32.Mat4) { a.pose.SetRoot(root) }
