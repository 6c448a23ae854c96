package animation

import (
	"github.com/gekko3d/skelanim/animrt/rt/core"

	"github.com/pkg/errors"
)

// MakeAdditive returns a copy of raw where every key is expressed relative
// to a reference pose: translations are offsets, rotations are
// conj(reference) * rotation and scales are ratios. reference holds one
// transform per track; when nil the first key of each channel is used.
//
// An additive animation applied with full weight on top of the reference
// pose reproduces raw.
func MakeAdditive(raw *RawAnimation, reference []core.Transform) (*RawAnimation, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	if reference != nil && len(reference) < len(raw.Tracks) {
		return nil, errors.Errorf("animation: %d reference transforms for %d tracks", len(reference), len(raw.Tracks))
	}

	out := &RawAnimation{
		Name:     raw.Name,
		Duration: raw.Duration,
		Tracks:   make([]JointTrack, len(raw.Tracks)),
	}
	for i := range raw.Tracks {
		src := &raw.Tracks[i]
		ref := core.IdentityTransform()
		if reference != nil {
			ref = reference[i]
		} else {
			if len(src.Translations) > 0 {
				ref.Position = src.Translations[0].Value
			}
			if len(src.Rotations) > 0 {
				ref.Rotation = src.Rotations[0].Value.Normalize()
			}
			if len(src.Scales) > 0 {
				ref.Scale = src.Scales[0].Value
			}
		}

		dst := &out.Tracks[i]
		dst.Translations = make([]TranslationKey, len(src.Translations))
		for k, key := range src.Translations {
			dst.Translations[k] = TranslationKey{Time: key.Time, Value: key.Value.Sub(ref.Position)}
		}
		invRef := ref.Rotation.Conjugate()
		dst.Rotations = make([]RotationKey, len(src.Rotations))
		for k, key := range src.Rotations {
			dst.Rotations[k] = RotationKey{Time: key.Time, Value: invRef.Mul(key.Value.Normalize())}
		}
		dst.Scales = make([]ScaleKey, len(src.Scales))
		for k, key := range src.Scales {
			v := key.Value
			for c := 0; c < 3; c++ {
				if ref.Scale[c] != 0 {
					v[c] /= ref.Scale[c]
				}
			}
			dst.Scales[k] = ScaleKey{Time: key.Time, Value: v}
		}
	}
	return out, nil
}
