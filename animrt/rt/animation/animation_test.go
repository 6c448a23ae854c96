package animation

import (
	"bytes"
	"encoding/binary"
	"math"
	"runtime"
	"testing"

	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRaw() *RawAnimation {
	return &RawAnimation{
		Name:     "walk",
		Duration: 2,
		Tracks: []JointTrack{
			{
				Translations: []TranslationKey{{Time: 0.5, Value: mgl32.Vec3{1, 2, 4}}, {Time: 1.6, Value: mgl32.Vec3{2, 4, 8}}},
				Rotations: []RotationKey{
					{Time: 0, Value: mgl32.QuatIdent()},
					{Time: 1, Value: mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})},
					{Time: 2, Value: mgl32.QuatRotate(mgl32.DegToRad(180), mgl32.Vec3{0, 1, 0})},
				},
			},
			{
				Scales: []ScaleKey{{Time: 1, Value: mgl32.Vec3{2, 2, 2}}},
			},
			{},
		},
	}
}

func TestBuildPadsEveryTrack(t *testing.T) {
	anim, err := Builder{}.Build(testRaw())
	require.NoError(t, err)

	assert.Equal(t, "walk", anim.Name())
	assert.Equal(t, float32(2), anim.Duration())
	assert.Equal(t, 3, anim.NumTracks())
	assert.Equal(t, 1, anim.NumSoaTracks())

	check := func(name string, n int, ratioAt func(int) float32, trackAt func(int) int) {
		first := make(map[int]float32)
		last := make(map[int]float32)
		for i := 0; i < n; i++ {
			tr := trackAt(i)
			if _, ok := first[tr]; !ok {
				first[tr] = ratioAt(i)
			}
			last[tr] = ratioAt(i)
		}
		require.Len(t, first, 4, "%s: every padded track needs keys", name)
		for tr := 0; tr < 4; tr++ {
			assert.Equal(t, float32(0), first[tr], "%s track %d first ratio", name, tr)
			assert.Equal(t, float32(1), last[tr], "%s track %d last ratio", name, tr)
		}
	}
	tk, rk, sk := anim.TranslationKeys(), anim.RotationKeys(), anim.ScaleKeys()
	check("translations", len(tk), func(i int) float32 { return tk[i].Ratio }, func(i int) int { return int(tk[i].Track) })
	check("rotations", len(rk), func(i int) float32 { return rk[i].Ratio }, func(i int) int { return int(rk[i].Track()) })
	check("scales", len(sk), func(i int) float32 { return sk[i].Ratio }, func(i int) int { return int(sk[i].Track) })

	// Track 0 translations get a ratio 0 and a ratio 1 key copied from the
	// first and last authored keys.
	assert.Len(t, tk, 4*2+2)
	assert.Equal(t, mgl32.Vec3{1, 2, 4}, tk[0].Vec3())

	// Single scale key duplicated at both ends, identity everywhere else.
	for _, k := range sk {
		if k.Track == 1 {
			assert.Equal(t, mgl32.Vec3{2, 2, 2}, k.Vec3())
		} else {
			assert.Equal(t, mgl32.Vec3{1, 1, 1}, k.Vec3())
		}
	}
}

func TestBuildKeyOrder(t *testing.T) {
	anim, err := Builder{}.Build(testRaw())
	require.NoError(t, err)

	// First keys of all tracks, then second keys of all tracks.
	keys := anim.RotationKeys()
	for i := 0; i < 8; i++ {
		assert.Equal(t, uint16(i%4), keys[i].Track(), "key %d", i)
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, float32(0), keys[i].Ratio)
	}

	// Remaining keys are ordered by the ratio of their predecessor.
	prev := map[uint16]float32{}
	for i := 0; i < 8; i++ {
		prev[keys[i].Track()] = keys[i].Ratio
	}
	last := float32(-1)
	for i := 8; i < len(keys); i++ {
		p := prev[keys[i].Track()]
		assert.GreaterOrEqual(t, p, last)
		last = p
		prev[keys[i].Track()] = keys[i].Ratio
	}
}

func TestBuildValidation(t *testing.T) {
	raw := testRaw()
	raw.Duration = 0
	anim, err := Builder{}.Build(raw)
	assert.Nil(t, anim)
	assert.True(t, errors.Is(err, ErrInvalidDuration))

	raw = testRaw()
	raw.Duration = -1
	_, err = Builder{}.Build(raw)
	assert.True(t, errors.Is(err, ErrInvalidDuration))

	raw = &RawAnimation{Duration: 1, Tracks: make([]JointTrack, skeleton.MaxJoints+1)}
	_, err = Builder{}.Build(raw)
	assert.True(t, errors.Is(err, ErrTooManyTracks))

	raw = testRaw()
	raw.Tracks[0].Translations[1].Time = 0.5
	anim, err = Builder{}.Build(raw)
	assert.Nil(t, anim)
	assert.True(t, errors.Is(err, ErrKeyOrder), "equal times: %v", err)

	raw = testRaw()
	raw.Tracks[0].Rotations[0].Time = 1.5
	_, err = Builder{}.Build(raw)
	assert.True(t, errors.Is(err, ErrKeyOrder), "decreasing times: %v", err)

	raw = testRaw()
	raw.Tracks[1].Scales[0].Time = 2.5
	_, err = Builder{}.Build(raw)
	assert.True(t, errors.Is(err, ErrKeyRange), "key after duration: %v", err)

	raw = testRaw()
	raw.Tracks[1].Scales[0].Time = -0.1
	_, err = Builder{}.Build(raw)
	assert.True(t, errors.Is(err, ErrKeyRange), "negative key: %v", err)

	// A key exactly at duration is accepted.
	raw = testRaw()
	raw.Tracks[1].Scales[0].Time = 2
	_, err = Builder{}.Build(raw)
	assert.NoError(t, err)
}

func TestBuildFixesHemispheres(t *testing.T) {
	q := mgl32.QuatRotate(mgl32.DegToRad(10), mgl32.Vec3{1, 0, 0})
	in := []RotationKey{
		{Time: 0, Value: q},
		{Time: 1, Value: q.Scale(-1)},
		{Time: 2, Value: q.Scale(2)},
	}
	out := fixupHemispheres(in)

	require.Len(t, out, 3)
	assert.Equal(t, q.Scale(-1), in[1].Value, "input must not be mutated")
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i].Value.Dot(out[i-1].Value), float32(0))
		assert.InDelta(t, 1, out[i].Value.Len(), 1e-5)
	}
}

func TestQuaternionRoundTrip(t *testing.T) {
	axes := []mgl32.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}, {-1, 2, 3}, {0.3, -0.7, 0.2}}
	for _, axis := range axes {
		for deg := float32(-360); deg <= 360; deg += 15 {
			q := mgl32.QuatRotate(mgl32.DegToRad(deg), axis.Normalize())
			largest, sign, value := CompressQuat(q)
			got := DecompressQuat(largest, sign, value)

			assert.InDelta(t, 1, got.Len(), 1e-4, "length for %v", q)
			assert.InDelta(t, q.W, got.W, 1e-3)
			for c := 0; c < 3; c++ {
				assert.InDelta(t, q.V[c], got.V[c], 1e-3, "axis %v angle %v", axis, deg)
			}
		}
	}

	k := newQuatKey(0.25, 1234, mgl32.QuatRotate(1, mgl32.Vec3{0, 0, 1}))
	assert.Equal(t, uint16(1234), k.Track())
	assert.Equal(t, float32(0.25), k.Ratio)
}

func TestHalfFloat3(t *testing.T) {
	v := mgl32.Vec3{1.5, -3, 6}
	assert.Equal(t, v, DecodeFloat3(EncodeFloat3(v)))

	got := DecodeFloat3(EncodeFloat3(mgl32.Vec3{0.1, 100.3, -7.77}))
	assert.InDelta(t, 0.1, got[0], 1e-3)
	assert.InDelta(t, 100.3, got[1], 0.1)
	assert.InDelta(t, -7.77, got[2], 1e-2)
}

func TestBinaryRoundTrip(t *testing.T) {
	anim, err := Builder{}.Build(testRaw())
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := anim.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, anim.Name(), got.Name())
	assert.Equal(t, anim.Duration(), got.Duration())
	assert.Equal(t, anim.NumTracks(), got.NumTracks())
	assert.Equal(t, anim.TranslationKeys(), got.TranslationKeys())
	assert.Equal(t, anim.RotationKeys(), got.RotationKeys())
	assert.Equal(t, anim.ScaleKeys(), got.ScaleKeys())
}

func TestBinaryRejects(t *testing.T) {
	anim, err := Builder{}.Build(testRaw())
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = anim.WriteTo(&buf)
	require.NoError(t, err)
	data := buf.Bytes()

	badTag := append([]byte(nil), data...)
	badTag[0] = 'X'
	_, err = Read(bytes.NewReader(badTag))
	assert.True(t, errors.Is(err, ErrInvalidTag))

	badVersion := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(badVersion[len(Tag):], Version+1)
	got, err := Read(bytes.NewReader(badVersion))
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))

	_, err = Read(bytes.NewReader(data[:len(data)-3]))
	assert.Error(t, err)

	badDuration := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(badDuration[len(Tag)+4:], math.Float32bits(-1))
	_, err = Read(bytes.NewReader(badDuration))
	assert.True(t, errors.Is(err, ErrCorrupted))
}

func TestBinaryRejectsKeyOrder(t *testing.T) {
	anim, err := Builder{}.Build(testRaw())
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = anim.WriteTo(&buf)
	require.NoError(t, err)
	data := buf.Bytes()

	translationsAt := len(Tag) + 16 + len(anim.Name()) + 12
	rotationsAt := translationsAt + len(anim.TranslationKeys())*float3KeySize
	numT := len(anim.TranslationKeys())

	swap := func(at, i, j, size int) []byte {
		out := append([]byte(nil), data...)
		a := out[at+i*size : at+(i+1)*size]
		b := out[at+j*size : at+(j+1)*size]
		tmp := append([]byte(nil), a...)
		copy(a, b)
		copy(b, tmp)
		return out
	}

	endsEarly := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(endsEarly[translationsAt+(numT-1)*float3KeySize:], math.Float32bits(0.9))

	for name, corrupted := range map[string][]byte{
		"first keys swapped":    swap(translationsAt, 0, 1, float3KeySize),
		"second keys swapped":   swap(translationsAt, 4, 5, float3KeySize),
		"track keys reversed":   swap(translationsAt, numT-2, numT-1, float3KeySize),
		"rotation keys swapped": swap(rotationsAt, 0, 1, quatKeySize),
		"track ends early":      endsEarly,
	} {
		got, err := Read(bytes.NewReader(corrupted))
		assert.Nil(t, got, name)
		assert.True(t, errors.Is(err, ErrCorrupted), "%s: %v", name, err)
	}
}

func TestBinaryKeyCountsDontPreallocate(t *testing.T) {
	// A header announcing 1<<24 keys per channel, with no key data.
	head := make([]byte, len(Tag)+16+12)
	copy(head, Tag)
	le := binary.LittleEndian
	le.PutUint32(head[len(Tag):], Version)
	le.PutUint32(head[len(Tag)+4:], math.Float32bits(1))
	le.PutUint32(head[len(Tag)+8:], 1)
	le.PutUint32(head[len(Tag)+12:], 0)
	for i := 0; i < 3; i++ {
		le.PutUint32(head[len(Tag)+16+4*i:], 1<<24)
	}

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := Read(bytes.NewReader(head))
	runtime.ReadMemStats(&after)

	assert.Error(t, err)
	if allocated := after.TotalAlloc - before.TotalAlloc; allocated > 1<<20 {
		t.Errorf("Expected a small allocation for a %d byte input, got %d bytes", len(head), allocated)
	}
}

func TestMakeAdditive(t *testing.T) {
	raw := testRaw()
	add, err := MakeAdditive(raw, nil)
	require.NoError(t, err)

	assert.Equal(t, mgl32.Vec3{}, add.Tracks[0].Translations[0].Value)
	assert.Equal(t, mgl32.Vec3{1, 2, 4}, add.Tracks[0].Translations[1].Value)
	assert.True(t, add.Tracks[0].Rotations[0].Value.Sub(mgl32.QuatIdent()).Len() < 1e-6)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, add.Tracks[1].Scales[0].Value)

	// Reference * delta gives back the source rotation.
	ref := raw.Tracks[0].Rotations[0].Value
	back := ref.Mul(add.Tracks[0].Rotations[2].Value)
	assert.True(t, back.Sub(raw.Tracks[0].Rotations[2].Value).Len() < 1e-5)

	_, err = MakeAdditive(raw, make([]core.Transform, 1))
	assert.Error(t, err)
}

func TestOptimize(t *testing.T) {
	raw := &RawAnimation{Duration: 4, Tracks: []JointTrack{{}}}
	for i := 0; i <= 4; i++ {
		raw.Tracks[0].Translations = append(raw.Tracks[0].Translations,
			TranslationKey{Time: float32(i), Value: mgl32.Vec3{float32(min(i, 2)), 0, 0}})
		raw.Tracks[0].Rotations = append(raw.Tracks[0].Rotations,
			RotationKey{Time: float32(i), Value: mgl32.QuatRotate(float32(i)*0.1, mgl32.Vec3{0, 1, 0})})
	}
	// Translation stops at time 2, so only that key must survive.
	opt := Optimize(raw, DefaultTolerances)
	require.NoError(t, opt.Validate())

	tr := opt.Tracks[0].Translations
	assert.Len(t, tr, 3)
	assert.Equal(t, float32(0), tr[0].Time)
	assert.Equal(t, float32(2), tr[1].Time)
	assert.Equal(t, float32(4), tr[2].Time)

	// Constant angular speed around one axis collapses to end points.
	assert.Len(t, opt.Tracks[0].Rotations, 2)

	for _, time := range []float32{0, 0.7, 1.5, 3.2, 4} {
		a, b := raw.Sample(0, time), opt.Sample(0, time)
		assert.InDelta(t, 0, a.Rotation.Sub(b.Rotation).Len(), 1e-3, "time %v", time)
	}
}
