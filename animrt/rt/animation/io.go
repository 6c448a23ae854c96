package animation

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/pkg/errors"
)

const (
	// Tag starts every serialized animation.
	Tag = "skelanim-animation\x00"
	// Version is the only layout Read accepts.
	Version uint32 = 1

	float3KeySize = 4 + 2 + 3*2
	quatKeySize   = 4 + 2 + 3*2
	maxNameLen    = 1 << 16
)

var (
	ErrInvalidTag         = errors.New("animation: invalid tag")
	ErrUnsupportedVersion = errors.New("animation: unsupported version")
	ErrCorrupted          = errors.New("animation: corrupted data")
)

// WriteTo serializes a in little endian:
//
//	tag, version u32, duration f32, tracks u32, name length u32, name,
//	translation/rotation/scale counts u32, then the three key arrays.
func (a *Animation) WriteTo(w io.Writer) (int64, error) {
	size := len(Tag) + 4 + 4 + 4 + 4 + len(a.name) + 3*4 +
		(len(a.translations)+len(a.scales))*float3KeySize + len(a.rotations)*quatKeySize
	buf := make([]byte, size)
	le := binary.LittleEndian

	off := copy(buf, Tag)
	le.PutUint32(buf[off:], Version)
	le.PutUint32(buf[off+4:], math.Float32bits(a.duration))
	le.PutUint32(buf[off+8:], uint32(a.numTracks))
	le.PutUint32(buf[off+12:], uint32(len(a.name)))
	off += 16
	off += copy(buf[off:], a.name)
	le.PutUint32(buf[off:], uint32(len(a.translations)))
	le.PutUint32(buf[off+4:], uint32(len(a.rotations)))
	le.PutUint32(buf[off+8:], uint32(len(a.scales)))
	off += 12

	off = putFloat3Keys(buf, off, a.translations)
	for _, k := range a.rotations {
		le.PutUint32(buf[off:], math.Float32bits(k.Ratio))
		le.PutUint16(buf[off+4:], k.Packed)
		le.PutUint16(buf[off+6:], uint16(k.Value[0]))
		le.PutUint16(buf[off+8:], uint16(k.Value[1]))
		le.PutUint16(buf[off+10:], uint16(k.Value[2]))
		off += quatKeySize
	}
	putFloat3Keys(buf, off, a.scales)

	n, err := w.Write(buf)
	if err != nil {
		return int64(n), errors.Wrapf(err, "failed to write animation %q", a.name)
	}
	return int64(n), nil
}

func putFloat3Keys(buf []byte, off int, keys []Float3Key) int {
	le := binary.LittleEndian
	for _, k := range keys {
		le.PutUint32(buf[off:], math.Float32bits(k.Ratio))
		le.PutUint16(buf[off+4:], k.Track)
		le.PutUint16(buf[off+6:], k.Value[0])
		le.PutUint16(buf[off+8:], k.Value[1])
		le.PutUint16(buf[off+10:], k.Value[2])
		off += float3KeySize
	}
	return off
}

// Read decodes an animation written by WriteTo. It always returns a new
// Animation and never a partially decoded one.
func Read(r io.Reader) (*Animation, error) {
	le := binary.LittleEndian

	head := make([]byte, len(Tag)+16)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, errors.Wrapf(err, "failed to read header")
	}
	if string(head[:len(Tag)]) != Tag {
		return nil, ErrInvalidTag
	}
	head = head[len(Tag):]
	if v := le.Uint32(head); v != Version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", v)
	}
	duration := math.Float32frombits(le.Uint32(head[4:]))
	numTracks := le.Uint32(head[8:])
	nameLen := le.Uint32(head[12:])
	if !(duration > 0) || numTracks > skeleton.MaxJoints || nameLen > maxNameLen {
		return nil, errors.Wrapf(ErrCorrupted, "duration %v, %d tracks, name length %d", duration, numTracks, nameLen)
	}

	body := make([]byte, nameLen+12)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrapf(err, "failed to read name")
	}
	name := string(body[:nameLen])
	counts := body[nameLen:]
	numT, numR, numS := le.Uint32(counts), le.Uint32(counts[4:]), le.Uint32(counts[8:])

	// Every padded track owns at least two keys per channel.
	numPadded := uint32(core.NumSoa(int(numTracks)) * core.SoaWidth)
	maxKeys := uint32(1 << 24)
	for _, n := range [...]uint32{numT, numR, numS} {
		if n < 2*numPadded || n > maxKeys {
			return nil, errors.Wrapf(ErrCorrupted, "%d keys for %d tracks", n, numTracks)
		}
	}

	// Keys are decoded as they arrive so that counts announced by a short
	// input don't allocate more than the bytes actually read.
	translations, err := readFloat3Keys(r, numT, numPadded)
	if err != nil {
		return nil, errors.Wrapf(err, "translations")
	}
	rotations, err := readQuatKeys(r, numR, numPadded)
	if err != nil {
		return nil, errors.Wrapf(err, "rotations")
	}
	scales, err := readFloat3Keys(r, numS, numPadded)
	if err != nil {
		return nil, errors.Wrapf(err, "scales")
	}

	n := int(numPadded)
	if err := checkKeyOrder(len(translations), n, func(i int) (float32, int) { return translations[i].Ratio, int(translations[i].Track) }); err != nil {
		return nil, errors.Wrapf(err, "translations")
	}
	if err := checkKeyOrder(len(rotations), n, func(i int) (float32, int) { return rotations[i].Ratio, int(rotations[i].Track()) }); err != nil {
		return nil, errors.Wrapf(err, "rotations")
	}
	if err := checkKeyOrder(len(scales), n, func(i int) (float32, int) { return scales[i].Ratio, int(scales[i].Track) }); err != nil {
		return nil, errors.Wrapf(err, "scales")
	}

	a := newAnimation(name, duration, int(numTracks), len(translations), len(rotations), len(scales))
	copy(a.translations, translations)
	copy(a.rotations, rotations)
	copy(a.scales, scales)
	return a, nil
}

// readChunk is the number of keys read from the stream at once.
const readChunk = 1024

// readKeys reads n keys of size bytes in chunks and hands each one to
// decode.
func readKeys(r io.Reader, n uint32, size int, decode func(i int, b []byte) error) error {
	chunk := make([]byte, min(int(n), readChunk)*size)
	for i := 0; i < int(n); {
		c := min(int(n)-i, readChunk)
		buf := chunk[:c*size]
		if _, err := io.ReadFull(r, buf); err != nil {
			return errors.Wrapf(err, "failed to read keys")
		}
		for off := 0; off < len(buf); off += size {
			if err := decode(i, buf[off:off+size]); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

func readFloat3Keys(r io.Reader, n, numPadded uint32) ([]Float3Key, error) {
	le := binary.LittleEndian
	var keys []Float3Key
	err := readKeys(r, n, float3KeySize, func(i int, b []byte) error {
		k := Float3Key{
			Ratio: math.Float32frombits(le.Uint32(b)),
			Track: le.Uint16(b[4:]),
			Value: [3]uint16{le.Uint16(b[6:]), le.Uint16(b[8:]), le.Uint16(b[10:])},
		}
		if !(k.Ratio >= 0 && k.Ratio <= 1) || uint32(k.Track) >= numPadded {
			return errors.Wrapf(ErrCorrupted, "key %d", i)
		}
		keys = append(keys, k)
		return nil
	})
	return keys, err
}

func readQuatKeys(r io.Reader, n, numPadded uint32) ([]QuatKey, error) {
	le := binary.LittleEndian
	var keys []QuatKey
	err := readKeys(r, n, quatKeySize, func(i int, b []byte) error {
		k := QuatKey{
			Ratio:  math.Float32frombits(le.Uint32(b)),
			Packed: le.Uint16(b[4:]),
			Value: [3]int16{
				int16(le.Uint16(b[6:])),
				int16(le.Uint16(b[8:])),
				int16(le.Uint16(b[10:])),
			},
		}
		if !(k.Ratio >= 0 && k.Ratio <= 1) || uint32(k.Track()) >= numPadded {
			return errors.Wrapf(ErrCorrupted, "key %d", i)
		}
		keys = append(keys, k)
		return nil
	})
	return keys, err
}

// checkKeyOrder verifies the layout sampling relies on: the first keys of
// tracks 0..numPadded-1 at ratio 0, then their second keys in the same
// order, then the remaining keys sorted by the ratio of the key they
// follow. Ratios never decrease within a track and end at 1.
func checkKeyOrder(n, numPadded int, keyAt func(int) (ratio float32, track int)) error {
	last := make([]float32, numPadded)
	prev := float32(0)
	for i := 0; i < n; i++ {
		ratio, track := keyAt(i)
		switch {
		case i < numPadded:
			if track != i || ratio != 0 {
				return errors.Wrapf(ErrCorrupted, "key %d is not the first key of track %d", i, i)
			}
		case i < 2*numPadded && track != i-numPadded:
			return errors.Wrapf(ErrCorrupted, "key %d is not the second key of track %d", i, i-numPadded)
		default:
			if ratio < last[track] {
				return errors.Wrapf(ErrCorrupted, "key %d ratio %v after %v in track %d", i, ratio, last[track], track)
			}
			if last[track] < prev {
				return errors.Wrapf(ErrCorrupted, "key %d out of order", i)
			}
			prev = last[track]
		}
		last[track] = ratio
	}
	for t, r := range last {
		if r != 1 {
			return errors.Wrapf(ErrCorrupted, "track %d ends at ratio %v", t, r)
		}
	}
	return nil
}
