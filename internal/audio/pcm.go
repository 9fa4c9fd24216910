package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Buffer is decoded mono PCM-16 audio.
type Buffer struct {
	Samples    []int16
	SampleRate int
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Resample converts b to rate with linear interpolation.
func Resample(b *Buffer, rate int) *Buffer {
	if b == nil || rate <= 0 || b.SampleRate == rate || len(b.Samples) == 0 {
		return b
	}
	n := int(int64(len(b.Samples)) * int64(rate) / int64(b.SampleRate))
	out := make([]int16, n)
	step := float64(b.SampleRate) / float64(rate)
	last := len(b.Samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = b.Samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(b.Samples[j])*(1-frac) + float64(b.Samples[j+1])*frac)
	}
	return &Buffer{Samples: out, SampleRate: rate}
}

// Tone synthesizes a sine cue whose amplitude decays exponentially from
// startGain to endGain over d.
func Tone(freq float64, d time.Duration, sampleRate int, startGain, endGain float64) *Buffer {
	n := int(int64(d) * int64(sampleRate) / int64(time.Second))
	out := make([]int16, n)
	if n == 0 || startGain <= 0 {
		return &Buffer{Samples: out, SampleRate: sampleRate}
	}
	ratio := endGain / startGain
	for i := range out {
		t := float64(i) / float64(sampleRate)
		g := startGain * math.Pow(ratio, float64(i)/float64(n))
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * g * math.MaxInt16)
	}
	return &Buffer{Samples: out, SampleRate: sampleRate}
}

// Clip rounds a mixed sample and saturates it to the int16 range.
func Clip(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}

// SamplesToBytes renders samples as little-endian s16le.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples parses little-endian s16le; a trailing odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
