package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yoockh/livevoice/internal/capture"
	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/playback"
)

type fakeSource struct {
	sessions chan models.StreamSession

	mu    sync.Mutex
	frags map[string]chan models.AudioFragment
	subs  []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{sessions: make(chan models.StreamSession, 8), frags: map[string]chan models.AudioFragment{}}
}

func (s *fakeSource) SubscribeSessions(context.Context) (<-chan models.StreamSession, error) {
	return s.sessions, nil
}

func (s *fakeSource) SubscribeFragments(_ context.Context, sessionID string, _ int) (<-chan models.AudioFragment, error) {
	return s.fragments(sessionID), nil
}

func (s *fakeSource) fragments(sessionID string) chan models.AudioFragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.frags[sessionID]
	if !ok {
		ch = make(chan models.AudioFragment, 16)
		s.frags[sessionID] = ch
		s.subs = append(s.subs, sessionID)
	}
	return ch
}

func (s *fakeSource) subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subs...)
}

type fakePlayer struct {
	mu     sync.Mutex
	played []string
	bad    map[string]bool
	notify chan string
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{bad: map[string]bool{}, notify: make(chan string, 32)}
}

func (p *fakePlayer) PlayFragment(_ context.Context, b64 string) (playback.Scheduled, error) {
	p.mu.Lock()
	bad := p.bad[b64]
	if !bad {
		p.played = append(p.played, b64)
	}
	p.mu.Unlock()
	p.notify <- b64
	if bad {
		return playback.Scheduled{}, errors.New("corrupt")
	}
	return playback.Scheduled{Duration: 800 * time.Millisecond}, nil
}

func (p *fakePlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// fakeCapturer hands its callbacks to the test instead of recording audio.
type fakeCapturer struct {
	mu         sync.Mutex
	capturing  bool
	sessionID  string
	err        error
	onFragment capture.FragmentFunc
	onFinalize capture.FinalizeFunc
	pieces     [][]byte
}

func (c *fakeCapturer) Start(_ context.Context, onFragment capture.FragmentFunc, onFinalize capture.FinalizeFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.capturing, c.sessionID = true, "stream_1_me"
	c.onFragment, c.onFinalize, c.pieces = onFragment, onFinalize, nil
	return nil
}

// Emit delivers one encoded slice like the capture loop does.
func (c *fakeCapturer) Emit(data []byte) {
	c.mu.Lock()
	seq := int64(len(c.pieces))
	c.pieces = append(c.pieces, data)
	fn, id := c.onFragment, c.sessionID
	c.mu.Unlock()
	fn(id, models.AudioFragment{Seq: seq, MimeType: "audio/wav", Data: data})
}

func (c *fakeCapturer) Stop() error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return nil
	}
	rec := models.Recording{SessionID: c.sessionID, MimeType: "audio/wav", Pieces: c.pieces}
	fn := c.onFinalize
	c.capturing, c.sessionID = false, ""
	c.mu.Unlock()
	fn(rec)
	return nil
}

func (c *fakeCapturer) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

func (c *fakeCapturer) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

type fakePublisher struct {
	mu         sync.Mutex
	log        []string
	fragments  []models.AudioFragment
	recordings []models.Recording
	transcript string
	finalErr   error
	fragErr    error
}

func (p *fakePublisher) record(s string) {
	p.mu.Lock()
	p.log = append(p.log, s)
	p.mu.Unlock()
}

func (p *fakePublisher) PublishFragment(_ context.Context, _ string, frag models.AudioFragment) error {
	p.mu.Lock()
	p.fragments = append(p.fragments, frag)
	p.log = append(p.log, "fragment")
	p.mu.Unlock()
	return p.fragErr
}

func (p *fakePublisher) RetireSession(sessionID string, _ time.Duration) func() bool {
	p.record("retire:" + sessionID)
	return func() bool { return true }
}

func (p *fakePublisher) PublishFinalRecording(_ context.Context, rec models.Recording, transcript string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = append(p.log, "final")
	if p.finalErr != nil {
		return p.finalErr
	}
	p.recordings = append(p.recordings, rec)
	p.transcript = transcript
	return nil
}

func (p *fakePublisher) snapshot() ([]string, []models.AudioFragment, []models.Recording) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...), append([]models.AudioFragment(nil), p.fragments...), append([]models.Recording(nil), p.recordings...)
}

type fakeSTT struct {
	gotRate int
	gotLang string
	gotLen  int
}

func (s *fakeSTT) Transcribe(_ context.Context, pcm []byte, rate int, lang string) (string, float64, error) {
	s.gotRate, s.gotLang, s.gotLen = rate, lang, len(pcm)
	return "hello there", 0.9, nil
}

func (s *fakeSTT) Close() error { return nil }

func collect(feed <-chan events.Event, typ string, wait time.Duration) []events.Event {
	var out []events.Event
	deadline := time.After(wait)
	for {
		select {
		case ev := <-feed:
			if ev.Type == typ {
				out = append(out, ev)
			}
		case <-deadline:
			return out
		}
	}
}
