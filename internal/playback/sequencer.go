package playback

import (
	"sort"
	"time"

	"github.com/yoockh/livevoice/internal/models"
)

const (
	DefaultMaxPending = 3
	DefaultFlushAfter = 1200 * time.Millisecond

	DropDuplicate = "duplicate"
	DropLate      = "late"
	DropSkipped   = "skipped"
)

// Sequencer restores per-session fragment order using Seq.
// The first fragment seen sets the starting point, since followers only read the tail.
type Sequencer struct {
	MaxPending int
	FlushAfter time.Duration
	OnDrop     func(reason string)

	started   bool
	next      int64
	pending   map[int64]models.AudioFragment
	heldSince time.Time
}

func NewSequencer(maxPending int, flushAfter time.Duration) *Sequencer {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	if flushAfter <= 0 {
		flushAfter = DefaultFlushAfter
	}
	return &Sequencer{MaxPending: maxPending, FlushAfter: flushAfter, pending: map[int64]models.AudioFragment{}}
}

// Push accepts f and returns the fragments now ready to play, in order.
func (s *Sequencer) Push(f models.AudioFragment, now time.Time) []models.AudioFragment {
	if !s.started {
		s.started = true
		s.next = f.Seq
	}
	if f.Seq < s.next {
		s.drop(DropLate)
		return s.Due(now)
	}
	if _, dup := s.pending[f.Seq]; dup {
		s.drop(DropDuplicate)
		return s.Due(now)
	}
	wasEmpty := len(s.pending) == 0
	s.pending[f.Seq] = f

	ready := s.release()
	if len(s.pending) > 0 && (wasEmpty || len(ready) > 0) {
		s.heldSince = now
	}
	for len(s.pending) > s.MaxPending {
		ready = append(ready, s.skip()...)
		s.heldSince = now
	}
	return append(ready, s.Due(now)...)
}

// Due gives up on a gap that has been open for FlushAfter.
func (s *Sequencer) Due(now time.Time) []models.AudioFragment {
	var ready []models.AudioFragment
	for len(s.pending) > 0 && now.Sub(s.heldSince) >= s.FlushAfter {
		ready = append(ready, s.skip()...)
		s.heldSince = now
	}
	return ready
}

// Pending reports how many fragments wait for a gap to fill.
func (s *Sequencer) Pending() int { return len(s.pending) }

func (s *Sequencer) release() []models.AudioFragment {
	var ready []models.AudioFragment
	for {
		f, ok := s.pending[s.next]
		if !ok {
			return ready
		}
		delete(s.pending, s.next)
		ready = append(ready, f)
		s.next++
	}
}

// skip jumps over the missing fragments up to the lowest pending one.
func (s *Sequencer) skip() []models.AudioFragment {
	keys := make([]int64, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for i := s.next; i < keys[0]; i++ {
		s.drop(DropSkipped)
	}
	s.next = keys[0]
	return s.release()
}

func (s *Sequencer) drop(reason string) {
	if s.OnDrop != nil {
		s.OnDrop(reason)
	}
}
