package skelanim

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeAdvance(t *testing.T) {
	var clock Time
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	clock.advance(start)
	assert.Equal(t, time.Duration(0), clock.Dt)
	assert.Equal(t, uint64(1), clock.Frame)

	clock.advance(start.Add(16 * time.Millisecond))
	assert.Equal(t, 16*time.Millisecond, clock.Dt)
	assert.Equal(t, uint64(2), clock.Frame)

	clock.advance(start)
	assert.Equal(t, time.Duration(0), clock.Dt, "time going backward")
	assert.Equal(t, start, clock.Time)
}

func TestSystemTickUpdatesAllAnimators(t *testing.T) {
	s := armSkeleton(t)
	anim := liftAnim(t, "lift", 1)

	system := NewSystem(3, nil)
	animators := make([]*Animator, 10)
	for i := range animators {
		animators[i] = newArmAnimator(t, s, anim)
		system.Add(animators[i])
	}
	require.Len(t, system.Animators(), 10)

	start := time.Now()
	assert.Equal(t, 0, system.Tick(start))
	for _, a := range animators {
		assertNear(t, mgl32.Vec3{0, 0, 0}, modelPosition(a, 0), 1e-3, "first frame")
	}

	assert.Equal(t, 0, system.Tick(start.Add(250*time.Millisecond)))
	assert.Equal(t, 250*time.Millisecond, system.Time.Dt)
	assert.Equal(t, uint64(2), system.Time.Frame)
	for _, a := range animators {
		assertNear(t, mgl32.Vec3{0, 0, 0.25}, modelPosition(a, 0), 1e-3, "second frame")
	}
}

func TestSystemRemove(t *testing.T) {
	s := armSkeleton(t)
	anim := liftAnim(t, "lift", 1)
	kept := newArmAnimator(t, s, anim)
	removed := newArmAnimator(t, s, anim)

	system := NewSystem(0, nil)
	system.Add(kept)
	system.Add(removed)
	assert.False(t, system.Add(kept), "already registered")
	require.Len(t, system.Animators(), 2)
	assert.True(t, system.Remove(removed))
	assert.False(t, system.Remove(removed))
	assert.Equal(t, []*Animator{kept}, system.Animators())

	system.Update(500 * time.Millisecond)
	assertNear(t, mgl32.Vec3{0, 0, 0.5}, modelPosition(kept, 0), 1e-3, "kept")
	assertNear(t, mgl32.Vec3{0, 0, 0}, modelPosition(removed, 0), 1e-6, "removed")
}

func TestSystemEmpty(t *testing.T) {
	system := NewSystem(4, nil)
	assert.Equal(t, 0, system.Tick(time.Now()))
}
