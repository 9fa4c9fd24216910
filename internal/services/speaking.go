package services

import (
	"sync"
	"time"
)

// SpeakingIndicator shows a speaker on start and hides it after a quiet
// timeout that only a new start resets.
type SpeakingIndicator struct {
	quiet    time.Duration
	onChange func(name string, speaking bool)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	name    string
	visible bool
}

func NewSpeakingIndicator(quiet time.Duration, onChange func(name string, speaking bool)) *SpeakingIndicator {
	if quiet <= 0 {
		quiet = DefaultQuietTimeout
	}
	return &SpeakingIndicator{quiet: quiet, onChange: onChange}
}

func (s *SpeakingIndicator) Show(name string) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.name, s.visible = name, true
	s.timer = time.AfterFunc(s.quiet, func() { s.hide(gen) })
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(name, true)
	}
}

func (s *SpeakingIndicator) hide(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.visible {
		s.mu.Unlock()
		return
	}
	s.visible = false
	name := s.name
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(name, false)
	}
}

// Current returns the speaker on display, if any.
func (s *SpeakingIndicator) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name, s.visible
}
