package animation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/x448/float16"
)

// Float3Key is a translation or scale key. Value holds the 3 components as
// IEEE binary16 bits.
type Float3Key struct {
	Ratio float32
	Track uint16
	Value [3]uint16
}

func (k Float3Key) Vec3() mgl32.Vec3 {
	return DecodeFloat3(k.Value)
}

// QuatKey is a quantized rotation key. Packed holds, from low to high bits,
// the track index (13 bits), the index of the largest component (2 bits) and
// the sign of the largest component (1 bit). Value holds the 3 remaining
// components.
type QuatKey struct {
	Ratio  float32
	Packed uint16
	Value  [3]int16
}

const (
	trackBits   = 13
	trackMask   = 1<<trackBits - 1
	largestMask = 0x3
)

func newQuatKey(ratio float32, track int, q mgl32.Quat) QuatKey {
	largest, sign, value := CompressQuat(q)
	packed := uint16(track)&trackMask | uint16(largest)<<trackBits
	if sign {
		packed |= 1 << 15
	}
	return QuatKey{Ratio: ratio, Packed: packed, Value: value}
}

func (k QuatKey) Track() uint16 { return k.Packed & trackMask }

func (k QuatKey) Largest() uint8 { return uint8(k.Packed>>trackBits) & largestMask }

func (k QuatKey) Sign() bool { return k.Packed>>15 != 0 }

func (k QuatKey) Quat() mgl32.Quat {
	return DecompressQuat(k.Largest(), k.Sign(), k.Value)
}

func EncodeFloat3(v mgl32.Vec3) [3]uint16 {
	return [3]uint16{
		float16.Fromfloat32(v[0]).Bits(),
		float16.Fromfloat32(v[1]).Bits(),
		float16.Fromfloat32(v[2]).Bits(),
	}
}

func DecodeFloat3(h [3]uint16) mgl32.Vec3 {
	return mgl32.Vec3{
		float16.Frombits(h[0]).Float32(),
		float16.Frombits(h[1]).Float32(),
		float16.Frombits(h[2]).Float32(),
	}
}

// The 3 smallest components of a unit quaternion lie in [-1/sqrt2, 1/sqrt2],
// so they are scaled by sqrt2 to use the whole int16 range.
const (
	float2Int = 32767 * math.Sqrt2
	int2Float = 1 / float2Int
)

var smallestOf = [4][3]int{{1, 2, 3}, {0, 2, 3}, {0, 1, 3}, {0, 1, 2}}

// CompressQuat quantizes a unit quaternion to its 3 smallest components.
func CompressQuat(q mgl32.Quat) (largest uint8, sign bool, value [3]int16) {
	c := [4]float32{q.V[0], q.V[1], q.V[2], q.W}
	for i := 1; i < 4; i++ {
		if abs(c[i]) > abs(c[largest]) {
			largest = uint8(i)
		}
	}
	sign = c[largest] < 0
	for i, src := range smallestOf[largest] {
		v := int32(math.Floor(float64(c[src])*float2Int + 0.5))
		if v > 32767 {
			v = 32767
		} else if v < -32767 {
			v = -32767
		}
		value[i] = int16(v)
	}
	return largest, sign, value
}

// DecompressQuat rebuilds the quaternion quantized by CompressQuat. The
// largest component is deduced from the unit length constraint.
func DecompressQuat(largest uint8, sign bool, value [3]int16) mgl32.Quat {
	var c [4]float32
	var dot float32
	for i, dst := range smallestOf[largest&largestMask] {
		f := float32(float64(value[i]) * int2Float)
		c[dst] = f
		dot += f * f
	}
	l := float32(math.Sqrt(math.Max(0, float64(1-dot))))
	if sign {
		l = -l
	}
	c[largest&largestMask] = l
	return mgl32.Quat{W: c[3], V: mgl32.Vec3{c[0], c[1], c[2]}}
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
