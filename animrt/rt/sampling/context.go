// Package sampling evaluates an Animation at a given ratio into a SoA local
// pose, reusing per-stream state between consecutive calls.
package sampling

import (
	"github.com/gekko3d/skelanim/animrt/rt/animation"
	"github.com/gekko3d/skelanim/animrt/rt/core"
)

// State tells how a Context relates to the animation it last sampled.
type State int

const (
	// Unbound contexts hold no usable cursor and seed on the next run.
	Unbound State = iota
	// Seeded contexts have just been positioned on the first keys of every
	// track.
	Seeded
	// Stepping contexts have moved forward from a previous ratio.
	Stepping
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Seeded:
		return "seeded"
	case Stepping:
		return "stepping"
	}
	return "unknown"
}

// keyCursor walks one key channel forward. cache holds, per track, the
// index of the left and right keys bracketing the current ratio.
type keyCursor struct {
	next     int
	cache    []int
	outdated []bool
	ratios   []keyRatios
}

// keyRatios are the left and right key ratios of the 4 lanes of a SoA group.
type keyRatios struct {
	left, right [core.SoaWidth]float32
}

func newKeyCursor(maxSoa int) keyCursor {
	return keyCursor{
		cache:    make([]int, 2*maxSoa*core.SoaWidth),
		outdated: make([]bool, maxSoa),
		ratios:   make([]keyRatios, maxSoa),
	}
}

// seed positions the cursor on the first two keys of every track. The
// builder stores those first, track by track.
func (c *keyCursor) seed(numSoa int) {
	numPadded := numSoa * core.SoaWidth
	for t := 0; t < numPadded; t++ {
		c.cache[2*t] = t
		c.cache[2*t+1] = numPadded + t
	}
	c.next = 2 * numPadded
	for g := 0; g < numSoa; g++ {
		c.outdated[g] = true
	}
}

// advance consumes every key whose predecessor lies at or before ratio.
// Keys are stored in increasing order of their predecessor's ratio, so the
// walk stops at the first key that isn't needed yet.
func (c *keyCursor) advance(n int, ratio float32, ratioAt func(int) float32, trackAt func(int) int) {
	for c.next < n {
		track := trackAt(c.next)
		if ratioAt(c.cache[2*track+1]) > ratio {
			break
		}
		c.cache[2*track] = c.cache[2*track+1]
		c.cache[2*track+1] = c.next
		c.outdated[track/core.SoaWidth] = true
		c.next++
	}
}

// refresh reloads the ratios of outdated groups and calls load for each of
// their lanes with the left and right key indices.
func (c *keyCursor) refresh(numSoa int, ratioAt func(int) float32, load func(group, lane, left, right int)) {
	for g := 0; g < numSoa; g++ {
		if !c.outdated[g] {
			continue
		}
		c.outdated[g] = false
		for l := 0; l < core.SoaWidth; l++ {
			t := g*core.SoaWidth + l
			left, right := c.cache[2*t], c.cache[2*t+1]
			c.ratios[g].left[l] = ratioAt(left)
			c.ratios[g].right[l] = ratioAt(right)
			load(g, l, left, right)
		}
	}
}

// alpha computes the interpolation factor of every lane of group g.
func (c *keyCursor) alpha(g int, ratio float32) [core.SoaWidth]float32 {
	var a [core.SoaWidth]float32
	r := &c.ratios[g]
	for l := 0; l < core.SoaWidth; l++ {
		d := r.right[l] - r.left[l]
		if d > 0 {
			a[l] = (ratio - r.left[l]) / d
		}
	}
	return a
}

// Context is the mutable state of one sampling stream: key cursors and the
// decompressed keys around the current ratio. A context is bound to the
// last animation it sampled and is owned by one caller at a time.
type Context struct {
	maxTracks int
	state     State
	anim      *animation.Animation
	ratio     float32

	translations keyCursor
	rotations    keyCursor
	scales       keyCursor

	translationKeys [][2]core.SoaFloat3
	rotationKeys    [][2]core.SoaQuat
	scaleKeys       [][2]core.SoaFloat3
}

// NewContext allocates a context able to sample animations of up to
// maxTracks tracks.
func NewContext(maxTracks int) *Context {
	c := &Context{}
	c.Resize(maxTracks)
	return c
}

// Resize reallocates the context for maxTracks tracks. The context becomes
// unbound.
func (c *Context) Resize(maxTracks int) {
	if maxTracks < 0 {
		maxTracks = 0
	}
	maxSoa := core.NumSoa(maxTracks)
	c.maxTracks = maxTracks
	c.translations = newKeyCursor(maxSoa)
	c.rotations = newKeyCursor(maxSoa)
	c.scales = newKeyCursor(maxSoa)
	c.translationKeys = make([][2]core.SoaFloat3, maxSoa)
	c.rotationKeys = make([][2]core.SoaQuat, maxSoa)
	c.scaleKeys = make([][2]core.SoaFloat3, maxSoa)
	c.Invalidate()
}

// Invalidate unbinds the context, forcing the next run to seed again. It
// must be called when the bound animation is mutated or replaced in place.
func (c *Context) Invalidate() {
	c.state = Unbound
	c.anim = nil
	c.ratio = 0
}

func (c *Context) MaxTracks() int { return c.maxTracks }

func (c *Context) MaxSoaTracks() int { return core.NumSoa(c.maxTracks) }

func (c *Context) State() State { return c.state }

// Animation returns the animation the context is bound to, nil when
// unbound.
func (c *Context) Animation() *animation.Animation { return c.anim }

// Ratio returns the last sampled ratio.
func (c *Context) Ratio() float32 { return c.ratio }

// update moves the cursors to ratio, seeding them when the context is
// unbound, bound to another animation, or asked to go backward.
func (c *Context) update(anim *animation.Animation, ratio float32) {
	numSoa := anim.NumSoaTracks()
	if c.state == Unbound || c.anim != anim || ratio < c.ratio {
		c.anim = anim
		c.translations.seed(numSoa)
		c.rotations.seed(numSoa)
		c.scales.seed(numSoa)
		c.state = Seeded
	} else {
		c.state = Stepping
	}
	c.ratio = ratio

	tk, rk, sk := anim.TranslationKeys(), anim.RotationKeys(), anim.ScaleKeys()
	tRatio := func(i int) float32 { return tk[i].Ratio }
	rRatio := func(i int) float32 { return rk[i].Ratio }
	sRatio := func(i int) float32 { return sk[i].Ratio }

	c.translations.advance(len(tk), ratio, tRatio, func(i int) int { return int(tk[i].Track) })
	c.rotations.advance(len(rk), ratio, rRatio, func(i int) int { return int(rk[i].Track()) })
	c.scales.advance(len(sk), ratio, sRatio, func(i int) int { return int(sk[i].Track) })

	c.translations.refresh(numSoa, tRatio, func(g, l, left, right int) {
		c.translationKeys[g][0].SetLane(l, tk[left].Vec3())
		c.translationKeys[g][1].SetLane(l, tk[right].Vec3())
	})
	c.rotations.refresh(numSoa, rRatio, func(g, l, left, right int) {
		c.rotationKeys[g][0].SetLane(l, rk[left].Quat())
		c.rotationKeys[g][1].SetLane(l, rk[right].Quat())
	})
	c.scales.refresh(numSoa, sRatio, func(g, l, left, right int) {
		c.scaleKeys[g][0].SetLane(l, sk[left].Vec3())
		c.scaleKeys[g][1].SetLane(l, sk[right].Vec3())
	})
}
