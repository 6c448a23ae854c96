package skelanim

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gekko3d/skelanim/animrt/rt/animation"
	"github.com/gekko3d/skelanim/animrt/rt/blend"
	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/ik"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translated(x, y, z float32) core.Transform {
	t := core.IdentityTransform()
	t.Position = mgl32.Vec3{x, y, z}
	return t
}

// shoulder at the origin, elbow at (0,1,0), wrist at (1,1,0)
func armSkeleton(t *testing.T) *skeleton.Skeleton {
	t.Helper()
	s, err := skeleton.New([]skeleton.Joint{
		{Name: "shoulder", Parent: skeleton.NoParent, Rest: core.IdentityTransform()},
		{Name: "elbow", Parent: 0, Rest: translated(0, 1, 0)},
		{Name: "wrist", Parent: 1, Rest: translated(1, 0, 0)},
	})
	require.NoError(t, err)
	return s
}

// liftRaw moves the shoulder from z=0 to z=lift over one second and keeps
// the rest of the arm in its rest pose.
func liftRaw(name string, lift float32) *animation.RawAnimation {
	return &animation.RawAnimation{
		Name:     name,
		Duration: 1,
		Tracks: []animation.JointTrack{
			{Translations: []animation.TranslationKey{{Time: 0}, {Time: 1, Value: mgl32.Vec3{0, 0, lift}}}},
			{Translations: []animation.TranslationKey{{Time: 0, Value: mgl32.Vec3{0, 1, 0}}}},
			{Translations: []animation.TranslationKey{{Time: 0, Value: mgl32.Vec3{1, 0, 0}}}},
		},
	}
}

func liftAnim(t *testing.T, name string, lift float32) *animation.Animation {
	t.Helper()
	anim, err := animation.Builder{}.Build(liftRaw(name, lift))
	require.NoError(t, err)
	return anim
}

func newArmAnimator(t *testing.T, s *skeleton.Skeleton, anim *animation.Animation, opts ...AnimatorOption) *Animator {
	t.Helper()
	tree, err := blend.NewTree(s, blend.NewOverride("root", 1, blend.NewClip("lift", anim, 1)))
	require.NoError(t, err)
	a, err := NewAnimator(s, tree, opts...)
	require.NoError(t, err)
	return a
}

func modelPosition(a *Animator, joint int) mgl32.Vec3 {
	return core.Translation(a.Models()[joint])
}

func assertNear(t *testing.T, expected, got mgl32.Vec3, tolerance float32, msg string) {
	t.Helper()
	if got.Sub(expected).Len() > tolerance {
		t.Errorf("%s: expected %v, got %v", msg, expected, got)
	}
}

func TestAnimatorStartsInRestPose(t *testing.T) {
	s := armSkeleton(t)
	a := newArmAnimator(t, s, liftAnim(t, "lift", 1))

	assert.Equal(t, s, a.Skeleton())
	assertNear(t, mgl32.Vec3{1, 1, 0}, modelPosition(a, 2), 1e-6, "wrist")
}

func TestAnimatorSkeletonMismatch(t *testing.T) {
	s := armSkeleton(t)
	other := armSkeleton(t)
	tree, err := blend.NewTree(s, blend.NewClip("lift", liftAnim(t, "lift", 1), 1))
	require.NoError(t, err)

	_, err = NewAnimator(other, tree)
	assert.True(t, errors.Is(err, ErrSkeletonMismatch))
}

func TestAnimatorUpdateSamplesAndConverts(t *testing.T) {
	s := armSkeleton(t)
	a := newArmAnimator(t, s, liftAnim(t, "lift", 1))

	require.True(t, a.Update(500*time.Millisecond))
	assertNear(t, mgl32.Vec3{0, 0, 0.5}, modelPosition(a, 0), 1e-3, "shoulder")
	assertNear(t, mgl32.Vec3{1, 1, 0.5}, modelPosition(a, 2), 1e-3, "wrist")

	a.SetRoot(mgl32.Translate3D(2, 0, 0))
	require.True(t, a.Update(0))
	assertNear(t, mgl32.Vec3{3, 1, 0.5}, modelPosition(a, 2), 1e-3, "wrist with root")
	assertNear(t, mgl32.Vec3{0, 0, 0.5}, core.JointTransform(a.Locals(), 0).Position, 1e-3, "shoulder local")
}

func TestAnimatorSolversRunAfterBlending(t *testing.T) {
	s := armSkeleton(t)
	a := newArmAnimator(t, s, liftAnim(t, "lift", 1), WithName("hero"))

	target := mgl32.Vec3{0.5, 1.2, 0.8}
	require.True(t, a.AddSolver("arm", &ik.TwoBoneSolver{
		Start: 0, Mid: 1, End: 2,
		Target:  target,
		Pole:    mgl32.Vec3{0, 1, 0},
		MidAxis: mgl32.Vec3{0, 0, 1},
		Soften:  1,
		Weight:  1,
	}))
	assert.Equal(t, 1, a.NumSolvers())
	assert.NotNil(t, a.Solver("arm"))
	assert.Nil(t, a.Solver("leg"))

	require.True(t, a.Update(500*time.Millisecond))
	assert.True(t, a.Reached())
	assertNear(t, mgl32.Vec3{0, 0, 0.5}, modelPosition(a, 0), 1e-3, "shoulder keeps the animated position")
	assertNear(t, target, modelPosition(a, 2), 2e-3, "wrist on target")

	// The blend tree overwrites the IK corrections of the previous frame.
	a.Solver("arm").(*ik.TwoBoneSolver).Weight = 0
	require.True(t, a.Update(0))
	assertNear(t, mgl32.Vec3{1, 1, 0.5}, modelPosition(a, 2), 1e-3, "wrist without IK")
}

func TestAnimatorSkipsInvalidSolver(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewWriterLogger(&out, &errOut, "test", false)

	s := armSkeleton(t)
	a := newArmAnimator(t, s, liftAnim(t, "lift", 1), WithLogger(logger), WithName("hero"))

	ok := a.AddSolver("backwards", &ik.TwoBoneSolver{
		Start: 2, Mid: 1, End: 0,
		MidAxis: mgl32.Vec3{0, 0, 1},
	})
	assert.False(t, ok)
	assert.Equal(t, 0, a.NumSolvers())
	assert.Contains(t, errOut.String(), `hero: skipping solver "backwards"`)

	require.True(t, a.Update(time.Second/4))
	assert.True(t, a.Reached())
}

func TestAnimatorReplaceAnimation(t *testing.T) {
	var out bytes.Buffer
	logger := NewWriterLogger(&out, &out, "", false)

	s := armSkeleton(t)
	first := liftAnim(t, "lift", 1)
	a := newArmAnimator(t, s, first, WithLogger(logger))
	require.True(t, a.Update(500*time.Millisecond))

	second := liftAnim(t, "lift_high", 2)
	n, err := a.ReplaceAnimation(first, second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, strings.Contains(out.String(), `rebound 1 clips to "lift_high"`))

	require.True(t, a.Update(0))
	assertNear(t, mgl32.Vec3{0, 0, 1}, modelPosition(a, 0), 1e-3, "shoulder with the new clip")

	short := &animation.RawAnimation{Name: "short", Duration: 1, Tracks: make([]animation.JointTrack, 2)}
	anim, err := animation.Builder{}.Build(short)
	require.NoError(t, err)
	_, err = a.ReplaceAnimation(second, anim)
	assert.True(t, errors.Is(err, blend.ErrTrackCount))
}
