package amuse

import (
	"encoding/binary"
	"math"
)

// Raw encodes interleaved float32 audio as little endian bytes, either
// 16-bit integers or 32-bit floats.
func Raw(buffer []float32, pcm16 bool) []byte {
	return AppendRaw(nil, buffer, pcm16)
}

// AppendRaw appends the encoding of buffer to dst and returns the extended
// slice.
func AppendRaw(dst []byte, buffer []float32, pcm16 bool) []byte {
	if pcm16 {
		for _, v := range buffer {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(FloatToInt16(v)))
		}
		return dst
	}
	for _, v := range buffer {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// FloatToInt16 converts a [-1,1] sample to 16 bits, clipping it.
func FloatToInt16(v float32) int16 {
	return int16(clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16))
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
