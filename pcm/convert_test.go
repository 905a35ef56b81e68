package pcm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestClipToInt16_WithinRoundingDistance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.Float32Range(-1, 1).Draw(t, "s")
		got := ClipToInt16(s)
		ideal := float64(s) * 32767
		assert.LessOrEqual(t, math.Abs(float64(got)-ideal), 1.0)
	})
}

func TestClipToInt16_SaturatesOutOfRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.Float32Range(1, 100).Draw(t, "s")
		assert.Equal(t, int16(32767), ClipToInt16(s))
		assert.Equal(t, int16(-32767), ClipToInt16(-s))
	})
}

func TestFloat32LEToInt16_Length(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(t, "n")
		src := make([]byte, n*4)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(src[i*4:], math.Float32bits(0.1))
		}
		out := Float32LEToInt16(src)
		require.Len(t, out, n*2)
	})
}

func TestInt24LEToInt16_SignExtension(t *testing.T) {
	// 0x800000 is the most negative 24-bit sample; must map to -1.0 full scale,
	// not a near-zero positive value from treating it as unsigned.
	src := []byte{0x00, 0x00, 0x80}
	out := Int24LEToInt16(src)
	got := int16(binary.LittleEndian.Uint16(out))
	assert.Equal(t, int16(-32767), got)
}

func TestInt24LEToInt16_PositiveFullScale(t *testing.T) {
	src := []byte{0xFF, 0xFF, 0x7F}
	out := Int24LEToInt16(src)
	got := int16(binary.LittleEndian.Uint16(out))
	assert.InDelta(t, 32767, got, 2)
}

func TestInt32LEToInt16_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int32().Draw(t, "v")
		src := make([]byte, 4)
		binary.LittleEndian.PutUint32(src, uint32(v))
		out := Int32LEToInt16(src)
		require.Len(t, out, 2)
		ideal := float64(v) / 2147483648.0 * 32767
		got := float64(int16(binary.LittleEndian.Uint16(out)))
		assert.LessOrEqual(t, math.Abs(got-clampFloat(ideal, -32767, 32767)), 1.0)
	})
}

func TestSilence_AllZero(t *testing.T) {
	out := Silence(480, 2)
	require.Len(t, out, 480*2*2)
	for _, b := range out {
		require.Zero(t, b)
	}
}

func TestInterleavePlanarFloat32ToInt16_Order(t *testing.T) {
	frames := 3
	left := make([]byte, frames*4)
	right := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint32(left[i*4:], math.Float32bits(0.5))
		binary.LittleEndian.PutUint32(right[i*4:], math.Float32bits(-0.5))
	}
	out := InterleavePlanarFloat32ToInt16([][]byte{left, right}, frames)
	require.Len(t, out, frames*2*2)
	for f := 0; f < frames; f++ {
		l := int16(binary.LittleEndian.Uint16(out[f*4:]))
		r := int16(binary.LittleEndian.Uint16(out[f*4+2:]))
		assert.Positive(t, l)
		assert.Negative(t, r)
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
