// Package animation holds the runtime keyframe storage, the builder that
// produces it from authoring data and its binary encoding.
package animation

import (
	"unsafe"

	"github.com/gekko3d/skelanim/animrt/rt/core"
)

// Animation is an immutable set of compressed keyframes. It is safe to share
// between any number of sampling contexts.
//
// Each channel stores keys in the order forward playback needs them: a key
// comes after every key whose ratio is lower than its predecessor's ratio in
// the same track, ties broken by track index. The first two keys of every
// track are stored first, track by track.
type Animation struct {
	name         string
	duration     float32
	numTracks    int
	translations []Float3Key
	rotations    []QuatKey
	scales       []Float3Key
}

// newAnimation allocates key storage sized exactly for the given counts.
// Translations and scales share one backing array; rotations and the name
// are separate allocations since their element types differ.
func newAnimation(name string, duration float32, numTracks, numTranslations, numRotations, numScales int) *Animation {
	float3 := make([]Float3Key, numTranslations+numScales)
	return &Animation{
		name:         name,
		duration:     duration,
		numTracks:    numTracks,
		translations: float3[:numTranslations:numTranslations],
		rotations:    make([]QuatKey, numRotations),
		scales:       float3[numTranslations:],
	}
}

func (a *Animation) Name() string { return a.name }

// Duration is the animation length in seconds.
func (a *Animation) Duration() float32 { return a.duration }

func (a *Animation) NumTracks() int { return a.numTracks }

func (a *Animation) NumSoaTracks() int { return core.NumSoa(a.numTracks) }

// TranslationKeys returns the translation keys. Callers must not modify them.
func (a *Animation) TranslationKeys() []Float3Key { return a.translations }

// RotationKeys returns the rotation keys. Callers must not modify them.
func (a *Animation) RotationKeys() []QuatKey { return a.rotations }

// ScaleKeys returns the scale keys. Callers must not modify them.
func (a *Animation) ScaleKeys() []Float3Key { return a.scales }

// Size returns the memory used by the animation and its keys, in bytes.
func (a *Animation) Size() int {
	return int(unsafe.Sizeof(*a)) + len(a.name) +
		(len(a.translations)+len(a.scales))*int(unsafe.Sizeof(Float3Key{})) +
		len(a.rotations)*int(unsafe.Sizeof(QuatKey{}))
}
