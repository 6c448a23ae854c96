package animation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Tolerances bounds the error Optimize may introduce per channel.
// Translation and Scale are distances, Rotation is an angle in radians.
type Tolerances struct {
	Translation float32
	Rotation    float32
	Scale       float32
}

var DefaultTolerances = Tolerances{
	Translation: 1e-3,
	Rotation:    0.1 * math.Pi / 180,
	Scale:       1e-3,
}

// Optimize returns a copy of raw without the keys that interpolating their
// neighbours reproduces within tol. First and last keys are always kept.
// raw is expected to be valid.
func Optimize(raw *RawAnimation, tol Tolerances) *RawAnimation {
	out := &RawAnimation{
		Name:     raw.Name,
		Duration: raw.Duration,
		Tracks:   make([]JointTrack, len(raw.Tracks)),
	}
	for i := range raw.Tracks {
		src := &raw.Tracks[i]
		dst := &out.Tracks[i]
		dst.Translations = reduce(src.Translations,
			func(k TranslationKey) float32 { return k.Time },
			func(a, b, k TranslationKey, alpha float32) bool {
				return lerp3(a.Value, b.Value, alpha).Sub(k.Value).Len() <= tol.Translation
			})
		dst.Rotations = reduce(src.Rotations,
			func(k RotationKey) float32 { return k.Time },
			func(a, b, k RotationKey, alpha float32) bool {
				return quatAngle(nlerpShortest(a.Value, b.Value, alpha), k.Value) <= tol.Rotation
			})
		dst.Scales = reduce(src.Scales,
			func(k ScaleKey) float32 { return k.Time },
			func(a, b, k ScaleKey, alpha float32) bool {
				return lerp3(a.Value, b.Value, alpha).Sub(k.Value).Len() <= tol.Scale
			})
	}
	return out
}

// reduce greedily extends the segment starting at the last kept key while
// every key it skips stays within tolerance.
func reduce[K any](keys []K, timeOf func(K) float32, fits func(a, b, k K, alpha float32) bool) []K {
	if len(keys) <= 2 {
		return append([]K(nil), keys...)
	}
	out := []K{keys[0]}
	last := 0
	for next := 2; next < len(keys); next++ {
		a, b := keys[last], keys[next]
		ok := true
		for k := last + 1; k < next && ok; k++ {
			ok = fits(a, b, keys[k], alphaAt(timeOf(a), timeOf(b), timeOf(keys[k])))
		}
		if !ok {
			last = next - 1
			out = append(out, keys[last])
		}
	}
	return append(out, keys[len(keys)-1])
}

// quatAngle returns the angle of the rotation between a and b.
func quatAngle(a, b mgl32.Quat) float32 {
	d := math.Abs(float64(a.Normalize().Dot(b.Normalize())))
	return float32(2 * math.Acos(math.Min(1, d)))
}
