// Package pcm implements the sample-format conversions shared by every
// capture backend: clipping and quantizing floating point samples down to
// signed 16-bit little-endian PCM, unpacking the integer PCM widths a
// Windows mix format can report, and interleaving planar (non-interleaved)
// float32 audio into the frame-major layout the engine delivers.
//
// None of these functions touch OS state — they operate on byte slices and
// floats so they can be exercised on any GOOS, independent of the
// platform-specific capture backends that call them.
package pcm

import (
	"encoding/binary"
	"math"
)

// ClipToInt16 converts a float32 sample in approximately [-1, 1] to a
// signed 16-bit PCM value, clipping out-of-range input and rounding to the
// nearest integer. Values at or beyond +/-1 saturate to +/-32767 (not
// -32768), matching the symmetric clip used throughout the Windows and
// macOS backends.
func ClipToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	v := s * 32767
	if v >= 0 {
		return int16(v + 0.5)
	}
	return int16(v - 0.5)
}

// WriteInt16LE appends the little-endian encoding of v to dst and returns
// the extended slice.
func WriteInt16LE(dst []byte, v int16) []byte {
	return binary.LittleEndian.AppendUint16(dst, uint16(v))
}

// Float32LEToInt16 converts a buffer of interleaved little-endian float32
// samples into interleaved little-endian int16 PCM. len(src) must be a
// multiple of 4; the returned slice has len(src)/2 bytes.
func Float32LEToInt16(src []byte) []byte {
	n := len(src) / 4
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(src[i*4 : i*4+4])
		f := math.Float32frombits(bits)
		out = WriteInt16LE(out, ClipToInt16(f))
	}
	return out
}

// Int16LEToInt16 is the identity conversion for already-16-bit PCM; it
// exists so every supported wire width has a corresponding *ToInt16
// function and callers don't need a special case for the common path.
func Int16LEToInt16(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// Int24LEToInt16 converts packed 24-bit little-endian signed PCM (3 bytes
// per sample) to 16-bit PCM. The 3 bytes are sign-extended into a 32-bit
// integer before being scaled, so a sample with its top byte >= 0x80 is
// treated as negative (arithmetic sign extension), per the tightened
// semantics called for in spec Open Question 1 rather than the original's
// unsigned-before-signed-divide behavior.
func Int24LEToInt16(src []byte) []byte {
	n := len(src) / 3
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		b0, b1, b2 := src[i*3], src[i*3+1], src[i*3+2]
		v := int32(b0) | int32(b1)<<8 | int32(b2)<<16
		if v&0x00800000 != 0 {
			v |= ^int32(0x00FFFFFF) // sign-extend bit 23 through bit 31
		}
		f := float32(v) / 8388608.0 // 2^23: full-scale for a 24-bit sample
		out = WriteInt16LE(out, ClipToInt16(f))
	}
	return out
}

// Int32LEToInt16 converts packed 32-bit little-endian signed PCM to 16-bit
// PCM, scaling by the full 32-bit range per spec §4.2's numeric rules.
func Int32LEToInt16(src []byte) []byte {
	n := len(src) / 4
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		v := int32(binary.LittleEndian.Uint32(src[i*4 : i*4+4]))
		f := float32(v) / 2147483648.0
		out = WriteInt16LE(out, ClipToInt16(f))
	}
	return out
}

// Silence returns n frames of all-zero int16 PCM for the given channel
// count, used when a platform buffer arrives with its silent flag set.
func Silence(frames, channels int) []byte {
	return make([]byte, frames*channels*2)
}

// InterleavePlanarFloat32ToInt16 interleaves C channels of planar
// (non-interleaved) float32 audio, each channel a contiguous run of
// `frames` float32 samples addressed via planes, into a single
// frame-major, channel-major int16 little-endian buffer of length
// frames*channels*2 bytes.
//
// planes[c] must have at least frames*4 bytes (one float32 per frame for
// channel c).
func InterleavePlanarFloat32ToInt16(planes [][]byte, frames int) []byte {
	channels := len(planes)
	out := make([]byte, 0, frames*channels*2)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			bits := binary.LittleEndian.Uint32(planes[c][f*4 : f*4+4])
			sample := math.Float32frombits(bits)
			out = WriteInt16LE(out, ClipToInt16(sample))
		}
	}
	return out
}

// InterleavedFloat32ToInt16 is an alias of Float32LEToInt16 for interleaved
// float32 input. No backend in this module calls it: the macOS system-audio
// backend splits every buffer into per-channel planes on the native side
// and always converts with InterleavePlanarFloat32ToInt16.
func InterleavedFloat32ToInt16(src []byte) []byte {
	return Float32LEToInt16(src)
}
