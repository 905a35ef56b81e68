//go:build darwin

package pcm

import "unsafe"

// Float32sToLEBytes reinterprets a slice of native-endian float32 samples
// as its little-endian byte representation without copying. Safe on the
// arm64/amd64 targets this engine builds for, both little-endian.
func Float32sToLEBytes(samples []float32) []byte {
	if len(samples) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&samples[0])), len(samples)*4)
}

// Int16sToLEBytes reinterprets a slice of native-endian int16 samples as
// its little-endian byte representation without copying.
func Int16sToLEBytes(samples []int16) []byte {
	if len(samples) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&samples[0])), len(samples)*2)
}
