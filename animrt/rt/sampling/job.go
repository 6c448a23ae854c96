package sampling

import (
	"math"

	"github.com/gekko3d/skelanim/animrt/rt/animation"
	"github.com/gekko3d/skelanim/animrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// Job samples Animation at Ratio into Output, one SoA entry per 4 tracks.
// Ratio is clamped to [0,1]. Output entries past the animation's SoA track
// count are left untouched.
type Job struct {
	Animation *animation.Animation
	Context   *Context
	Ratio     float32
	Output    []core.SoaTransform
}

// Validate reports whether Run can process the job.
func (j *Job) Validate() bool {
	if j.Animation == nil || j.Context == nil {
		return false
	}
	maxSoa := j.Context.MaxSoaTracks()
	return maxSoa > 0 &&
		len(j.Output) >= maxSoa &&
		maxSoa >= j.Animation.NumSoaTracks()
}

// Run samples the animation. It returns false, leaving Output and Context
// unchanged, when the job is invalid.
func (j *Job) Run() bool {
	if !j.Validate() {
		return false
	}

	ratio := j.Ratio
	if math.IsNaN(float64(ratio)) {
		ratio = 0
	}
	ratio = mgl32.Clamp(ratio, 0, 1)

	ctx := j.Context
	ctx.update(j.Animation, ratio)

	for g := 0; g < j.Animation.NumSoaTracks(); g++ {
		out := &j.Output[g]

		alpha := ctx.translations.alpha(g, ratio)
		core.LerpFloat3(&ctx.translationKeys[g][0], &ctx.translationKeys[g][1], &alpha, &out.Translation)

		alpha = ctx.rotations.alpha(g, ratio)
		core.NLerpQuat(&ctx.rotationKeys[g][0], &ctx.rotationKeys[g][1], &alpha, &out.Rotation)

		alpha = ctx.scales.alpha(g, ratio)
		core.LerpFloat3(&ctx.scaleKeys[g][0], &ctx.scaleKeys[g][1], &alpha, &out.Scale)
	}
	return true
}
