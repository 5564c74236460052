package audio

import (
	"encoding/binary"
	"math"
)

// SamplesFromBytes decodes little-endian 32-bit float PCM, the format
// pw-record emits with --format f32. Trailing bytes short of a full sample
// are ignored.
func SamplesFromBytes(data []byte) []float32 {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

// BytesFromSamples is the inverse of SamplesFromBytes, used by tests to
// script a capture stream.
func BytesFromSamples(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data
}
