package animation

import (
	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

var (
	ErrInvalidDuration = errors.New("animation: duration must be positive")
	ErrTooManyTracks   = errors.New("animation: too many tracks")
	ErrKeyOrder        = errors.New("animation: keys must be strictly increasing in time")
	ErrKeyRange        = errors.New("animation: key time outside of [0, duration]")
)

type TranslationKey struct {
	Time  float32
	Value mgl32.Vec3
}

type RotationKey struct {
	Time  float32
	Value mgl32.Quat
}

type ScaleKey struct {
	Time  float32
	Value mgl32.Vec3
}

// JointTrack holds the authoring keys of one joint. Keys of each channel
// must be sorted by time.
type JointTrack struct {
	Translations []TranslationKey
	Rotations    []RotationKey
	Scales       []ScaleKey
}

// RawAnimation is the uncompressed authoring format produced by importers.
// Track i animates joint i.
type RawAnimation struct {
	Name     string
	Duration float32
	Tracks   []JointTrack
}

func (r *RawAnimation) NumTracks() int { return len(r.Tracks) }

// Validate reports the first reason r can't be built, or nil.
func (r *RawAnimation) Validate() error {
	if !(r.Duration > 0) {
		return errors.Wrapf(ErrInvalidDuration, "%q duration %v", r.Name, r.Duration)
	}
	if len(r.Tracks) > skeleton.MaxJoints {
		return errors.Wrapf(ErrTooManyTracks, "%q has %d tracks, max %d", r.Name, len(r.Tracks), skeleton.MaxJoints)
	}
	for i := range r.Tracks {
		tr := &r.Tracks[i]
		if err := validateTimes(len(tr.Translations), func(k int) float32 { return tr.Translations[k].Time }, r.Duration); err != nil {
			return errors.Wrapf(err, "track %d translations", i)
		}
		if err := validateTimes(len(tr.Rotations), func(k int) float32 { return tr.Rotations[k].Time }, r.Duration); err != nil {
			return errors.Wrapf(err, "track %d rotations", i)
		}
		if err := validateTimes(len(tr.Scales), func(k int) float32 { return tr.Scales[k].Time }, r.Duration); err != nil {
			return errors.Wrapf(err, "track %d scales", i)
		}
	}
	return nil
}

func validateTimes(n int, timeAt func(int) float32, duration float32) error {
	prev := float32(-1)
	for k := 0; k < n; k++ {
		t := timeAt(k)
		if !(t >= 0 && t <= duration) {
			return errors.Wrapf(ErrKeyRange, "key %d at %v", k, t)
		}
		if t <= prev {
			return errors.Wrapf(ErrKeyOrder, "key %d at %v after %v", k, t, prev)
		}
		prev = t
	}
	return nil
}

// Sample evaluates track at time by linear interpolation of the raw keys
// (rotations are nlerped). Empty channels evaluate to identity.
func (r *RawAnimation) Sample(track int, time float32) core.Transform {
	tr := &r.Tracks[track]
	out := core.IdentityTransform()
	if k := tr.Translations; len(k) > 0 {
		i := bracket(len(k), func(i int) float32 { return k[i].Time }, time)
		j := min(i+1, len(k)-1)
		out.Position = lerp3(k[i].Value, k[j].Value, alphaAt(k[i].Time, k[j].Time, time))
	}
	if k := tr.Rotations; len(k) > 0 {
		i := bracket(len(k), func(i int) float32 { return k[i].Time }, time)
		j := min(i+1, len(k)-1)
		out.Rotation = nlerpShortest(k[i].Value, k[j].Value, alphaAt(k[i].Time, k[j].Time, time))
	}
	if k := tr.Scales; len(k) > 0 {
		i := bracket(len(k), func(i int) float32 { return k[i].Time }, time)
		j := min(i+1, len(k)-1)
		out.Scale = lerp3(k[i].Value, k[j].Value, alphaAt(k[i].Time, k[j].Time, time))
	}
	return out
}

// bracket returns the index of the last key whose time is <= time, or 0.
func bracket(n int, timeAt func(int) float32, time float32) int {
	i := 0
	for i+1 < n && timeAt(i+1) <= time {
		i++
	}
	return i
}

func alphaAt(t0, t1, time float32) float32 {
	if t1 <= t0 {
		return 0
	}
	return mgl32.Clamp((time-t0)/(t1-t0), 0, 1)
}

func lerp3(a, b mgl32.Vec3, alpha float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(alpha))
}

func nlerpShortest(a, b mgl32.Quat, alpha float32) mgl32.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl32.QuatNlerp(a, b, alpha)
}
