package audio

import (
	"encoding/binary"
	"math"
)

// Downmix averages interleaved multi-channel float samples into mono. With
// channels <= 1 the input slice is returned unchanged (zero allocation).
// dst is reused when it has enough capacity.
func Downmix(dst, interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	if cap(dst) < frames {
		dst = make([]float32, frames)
	}
	dst = dst[:frames]
	scale := 1 / float32(channels)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		dst[i] = sum * scale
	}
	return dst
}

// PutFloat32LE encodes samples as little-endian IEEE-754 float32 into dst and
// returns the number of bytes written. dst must hold at least 4*len(samples)
// bytes; excess samples are dropped.
func PutFloat32LE(dst []byte, samples []float32) int {
	n := min(len(samples), len(dst)/4)
	for i := range n {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(samples[i]))
	}
	return n * 4
}

// Clamp limits a sample to [-1, 1].
func Clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
