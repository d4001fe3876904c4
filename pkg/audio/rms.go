package audio

import (
	"encoding/binary"
	"math"
)

// RMS computes the root-mean-square amplitude of little-endian int16 PCM in
// raw sample units (0–32767). It is the cheap speech/silence discriminator
// used by the activity monitor; a trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
