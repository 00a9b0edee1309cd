package audio

import (
	"encoding/binary"
	"math"
)

// Gate holds back audio until the speaker starts talking. Once the level
// crosses the threshold everything is forwarded, pauses included, so the
// transcriber sees natural gaps between sentences.
type Gate struct {
	threshold float64
	open      bool
}

// NewGate creates a gate; a non-positive threshold uses DefaultSilenceRMS.
func NewGate(threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultSilenceRMS
	}
	return &Gate{threshold: threshold}
}

// Process converts samples to PCM16 and reports whether they should be sent.
func (g *Gate) Process(samples []float32) ([]byte, bool) {
	if !g.open {
		if RMS(samples) < g.threshold {
			return nil, false
		}
		g.open = true
	}
	return Float32ToPCM16(samples), true
}

// Open reports whether speech has started.
func (g *Gate) Open() bool { return g.open }

// RMS returns the root mean square level of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Float32ToPCM16 converts [-1, 1] float samples to 16-bit little-endian PCM,
// clipping anything out of range.
func Float32ToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*PCM16ByteSize)
	for i, s := range samples {
		s = max(-1, min(1, s))
		binary.LittleEndian.PutUint16(buf[i*PCM16ByteSize:], uint16(int16(s*math.MaxInt16)))
	}
	return buf
}
