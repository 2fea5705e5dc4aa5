// Package pcm holds helpers for 16-bit signed little-endian PCM, the format
// produced by microphone capture and consumed by the STT providers.
package pcm

import (
	"encoding/binary"
	"math"
	"time"
)

// BitsPerSample is fixed at 16.
const BitsPerSample = 16

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of f, or 0 for an invalid format.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * BitsPerSample / 8
}

// Duration returns the playback length of n bytes in format f.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// RMS returns the root-mean-square energy of a PCM buffer in sample units
// (0–32767). Returns 0 for buffers shorter than one sample.
func RMS(buf []byte) float64 {
	n := len(buf) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// EncodeWAV wraps raw PCM in a RIFF/WAV container.
func EncodeWAV(buf []byte, f Format) []byte {
	byteRate := f.BytesPerSecond()
	blockAlign := f.Channels * BitsPerSample / 8
	size := len(buf)

	out := make([]byte, 44+size)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+size))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], BitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(size))
	copy(out[44:], buf)
	return out
}
