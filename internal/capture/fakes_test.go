package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yoockh/livevoice/internal/audio"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers chan *fakeTicker
	timers  chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:     time.Unix(1700000000, 0),
		tickers: make(chan *fakeTicker, 8),
		timers:  make(chan *fakeTimer, 64),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{d: d, c: make(chan time.Time)}
	c.tickers <- t
	return t
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	t := &fakeTimer{d: d, c: make(chan time.Time)}
	c.timers <- t
	return t
}

// fake channels are unbuffered so a fire returns once the loop has taken it
type fakeTicker struct {
	d       time.Duration
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
func (t *fakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeTimer struct {
	d time.Duration
	c chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }
func (t *fakeTimer) Stop() bool          { return true }

type fakeStream struct {
	frames chan []int16
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Frames() <-chan []int16 { return s.frames }
func (s *fakeStream) SampleRate() int        { return 16000 }
func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
func (s *fakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMic struct {
	stream *fakeStream
	err    error
	opens  int

	// when gate is set, Open signals entered and waits for gate to close
	gate    chan struct{}
	entered chan struct{}
}

func newFakeMic() *fakeMic {
	return &fakeMic{stream: &fakeStream{frames: make(chan []int16)}}
}

func (m *fakeMic) Open(ctx context.Context) (Stream, error) {
	m.opens++
	if m.gate != nil {
		close(m.entered)
		<-m.gate
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

type fakeEncoder struct {
	samples  []int16
	finished bool
	aborted  bool
}

func (e *fakeEncoder) Write(s []int16) error {
	e.samples = append(e.samples, s...)
	return nil
}

func (e *fakeEncoder) Finish() ([]byte, error) {
	e.finished = true
	if len(e.samples) == 0 {
		return nil, errors.New("empty")
	}
	return audio.SamplesToBytes(e.samples), nil
}

func (e *fakeEncoder) Abort() { e.aborted = true }

type fakeCodecs struct {
	mu       sync.Mutex
	encoders []*fakeEncoder
}

func (c *fakeCodecs) Supports(mime string) bool { return mime == audio.MimeWebMOpus || mime == audio.MimeWAV }

func (c *fakeCodecs) NewSliceEncoder(mime string, rate int) (SliceEncoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &fakeEncoder{}
	c.encoders = append(c.encoders, e)
	return e, nil
}

func (c *fakeCodecs) Encoders() []*fakeEncoder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeEncoder(nil), c.encoders...)
}

type fakeCues struct {
	mu    sync.Mutex
	tones []float64
}

func (c *fakeCues) PlayCue(hz float64) {
	c.mu.Lock()
	c.tones = append(c.tones, hz)
	c.mu.Unlock()
}

func (c *fakeCues) Tones() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.tones...)
}
