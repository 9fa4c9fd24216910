package playback

import (
	"math"
	"sync/atomic"
)

// Gain is the master volume stage shared by every scheduled source.
// It is read at render time, so a change applies to audio already queued.
type Gain struct {
	bits atomic.Uint64
}

func NewGain(v float64) *Gain {
	g := &Gain{}
	g.Set(v)
	return g
}

func (g *Gain) Set(v float64) {
	if math.IsNaN(v) || v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	g.bits.Store(math.Float64bits(v))
}

// Get returns the current level; a nil Gain is unity.
func (g *Gain) Get() float64 {
	if g == nil {
		return 1
	}
	return math.Float64frombits(g.bits.Load())
}
