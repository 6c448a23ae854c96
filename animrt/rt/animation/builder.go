package animation

import (
	"cmp"
	"slices"

	"github.com/gekko3d/skelanim/animrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// Builder converts a RawAnimation to a runtime Animation. It holds no state
// and can be reused.
type Builder struct{}

// sortingKey is a key waiting for its final storage position. prevRatio is
// the ratio of the previous key of the same track, -1 for the first key.
type sortingKey[V any] struct {
	track     int
	prevRatio float32
	ratio     float32
	value     V
}

func compareSortingKeys[V any](a, b sortingKey[V]) int {
	if c := cmp.Compare(a.prevRatio, b.prevRatio); c != 0 {
		return c
	}
	return cmp.Compare(a.track, b.track)
}

// Build validates raw and returns the compressed animation. Nothing is
// allocated when raw is invalid.
func (Builder) Build(raw *RawAnimation) (*Animation, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	numTracks := len(raw.Tracks)
	numPadded := core.NumSoa(numTracks) * core.SoaWidth

	var (
		translations []sortingKey[mgl32.Vec3]
		rotations    []sortingKey[mgl32.Quat]
		scales       []sortingKey[mgl32.Vec3]
	)
	identity := core.IdentityTransform()
	for i := 0; i < numPadded; i++ {
		var tr JointTrack
		if i < numTracks {
			tr = raw.Tracks[i]
		}
		translations = copyTrack(translations, i, raw.Duration, identity.Position,
			len(tr.Translations), func(k int) (float32, mgl32.Vec3) { return tr.Translations[k].Time, tr.Translations[k].Value })

		rots := fixupHemispheres(tr.Rotations)
		rotations = copyTrack(rotations, i, raw.Duration, identity.Rotation,
			len(rots), func(k int) (float32, mgl32.Quat) { return rots[k].Time, rots[k].Value })

		scales = copyTrack(scales, i, raw.Duration, identity.Scale,
			len(tr.Scales), func(k int) (float32, mgl32.Vec3) { return tr.Scales[k].Time, tr.Scales[k].Value })
	}

	slices.SortStableFunc(translations, compareSortingKeys[mgl32.Vec3])
	slices.SortStableFunc(rotations, compareSortingKeys[mgl32.Quat])
	slices.SortStableFunc(scales, compareSortingKeys[mgl32.Vec3])

	anim := newAnimation(raw.Name, raw.Duration, numTracks, len(translations), len(rotations), len(scales))
	for i, k := range translations {
		anim.translations[i] = Float3Key{Ratio: k.ratio, Track: uint16(k.track), Value: EncodeFloat3(k.value)}
	}
	for i, k := range rotations {
		anim.rotations[i] = newQuatKey(k.ratio, k.track, k.value)
	}
	for i, k := range scales {
		anim.scales[i] = Float3Key{Ratio: k.ratio, Track: uint16(k.track), Value: EncodeFloat3(k.value)}
	}
	return anim, nil
}

// copyTrack appends the n keys of one channel as ratios, adding keys at
// ratio 0 and 1 when the channel doesn't start at 0 or end at duration. An
// empty channel gets two identity keys.
func copyTrack[V any](dst []sortingKey[V], track int, duration float32, identity V, n int, keyAt func(int) (float32, V)) []sortingKey[V] {
	if n == 0 {
		return append(dst,
			sortingKey[V]{track: track, prevRatio: -1, ratio: 0, value: identity},
			sortingKey[V]{track: track, prevRatio: 0, ratio: 1, value: identity})
	}

	prev := float32(-1)
	if t, v := keyAt(0); t != 0 {
		dst = append(dst, sortingKey[V]{track: track, prevRatio: prev, ratio: 0, value: v})
		prev = 0
	}
	for k := 0; k < n; k++ {
		t, v := keyAt(k)
		ratio := t / duration
		if t == duration {
			ratio = 1
		}
		dst = append(dst, sortingKey[V]{track: track, prevRatio: prev, ratio: ratio, value: v})
		prev = ratio
	}
	if t, v := keyAt(n - 1); t != duration {
		dst = append(dst, sortingKey[V]{track: track, prevRatio: prev, ratio: 1, value: v})
	}
	return dst
}

// fixupHemispheres returns normalized copies of keys where each rotation is
// negated when it lies in the opposite hemisphere of the previous one, so
// that lerping consecutive keys takes the shortest path.
func fixupHemispheres(keys []RotationKey) []RotationKey {
	if len(keys) == 0 {
		return nil
	}
	out := make([]RotationKey, len(keys))
	for i, k := range keys {
		q := k.Value.Normalize()
		if i > 0 && q.Dot(out[i-1].Value) < 0 {
			q = q.Scale(-1)
		}
		out[i] = RotationKey{Time: k.Time, Value: q}
	}
	return out
}
