package blend

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Playback tracks the position of a clip in ratio units.
type Playback struct {
	Ratio float32
	Speed float32
	Loop  bool
}

// Advance moves the cursor by dt seconds of an animation lasting duration
// seconds and returns the new ratio. Looping cursors wrap in both
// directions, others stop at the ends.
func (p *Playback) Advance(dt, duration float32) float32 {
	if duration > 0 {
		p.Ratio += dt * p.Speed / duration
	}
	if p.Loop {
		p.Ratio -= float32(math.Floor(float64(p.Ratio)))
	} else {
		p.Ratio = mgl32.Clamp(p.Ratio, 0, 1)
	}
	return p.Ratio
}

// Reset moves the cursor back to the start.
func (p *Playback) Reset() {
	p.Ratio = 0
}
