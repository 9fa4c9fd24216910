package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/audio"
	"github.com/yoockh/livevoice/internal/identity"
	"github.com/yoockh/livevoice/internal/metrics"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/utils"
)

const (
	DefaultSliceInterval = 850 * time.Millisecond
	DefaultSliceLength   = 800 * time.Millisecond

	StartCueHz = 600
	StopCueHz  = 400
)

// FragmentFunc receives each completed slice in encode order.
type FragmentFunc func(sessionID string, frag models.AudioFragment)

// FinalizeFunc receives the whole capture once, after Stop.
type FinalizeFunc func(rec models.Recording)

// CuePlayer plays the short start/stop tones.
type CuePlayer interface {
	PlayCue(freqHz float64)
}

type Config struct {
	SliceInterval time.Duration
	SliceLength   time.Duration
}

type Pipeline struct {
	cfg     Config
	mic     Microphone
	codecs  Codecs
	cue     CuePlayer
	ident   *identity.Context
	clock   Clock
	log     *logrus.Logger
	metrics *metrics.Metrics

	// transition serializes Start and Stop; mu only guards cur, so
	// Capturing and SessionID never wait on the microphone.
	transition sync.Mutex
	mu         sync.Mutex
	cur        *session
}

type Option func(*Pipeline)

func WithClock(c Clock) Option { return func(p *Pipeline) { p.clock = c } }

func WithCues(c CuePlayer) Option { return func(p *Pipeline) { p.cue = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

func NewPipeline(cfg Config, mic Microphone, codecs Codecs, ident *identity.Context, log *logrus.Logger, opts ...Option) *Pipeline {
	if cfg.SliceInterval <= 0 {
		cfg.SliceInterval = DefaultSliceInterval
	}
	if cfg.SliceLength <= 0 {
		cfg.SliceLength = DefaultSliceLength
	}
	p := &Pipeline{cfg: cfg, mic: mic, codecs: codecs, ident: ident, clock: RealClock(), log: log}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capturing reports whether a capture session is active.
func (p *Pipeline) Capturing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// SessionID returns the active session id, or "".
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return ""
	}
	return p.cur.id
}

// MimeType returns the codec Start would negotiate.
func (p *Pipeline) MimeType() string {
	return audio.Negotiate(audio.PreferredMimeTypes, p.codecs.Supports)
}

// Start opens the microphone and begins slicing. It is a no-op while capturing.
func (p *Pipeline) Start(ctx context.Context, onFragment FragmentFunc, onFinalize FinalizeFunc) error {
	const op = "Pipeline.Start"

	p.transition.Lock()
	defer p.transition.Unlock()
	if p.Capturing() {
		return nil
	}

	stream, err := p.mic.Open(ctx)
	if err != nil {
		p.metrics.RecordCaptureFailure()
		return utils.E(utils.CodePermissionDenied, op, "microphone unavailable", err)
	}
	p.playCue(StartCueHz)

	s := &session{
		id:         fmt.Sprintf("stream_%d_%s", p.clock.Now().UnixNano(), p.ident.ID()),
		mime:       p.MimeType(),
		cfg:        p.cfg,
		stream:     stream,
		codecs:     p.codecs,
		clock:      p.clock,
		onFragment: onFragment,
		onFinalize: onFinalize,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		metrics:    p.metrics,
	}
	s.log = p.log.WithFields(logrus.Fields{"session_id": s.id, "mime": s.mime})
	s.ticker = p.clock.NewTicker(p.cfg.SliceInterval)
	s.startSlice()
	go s.loop()

	p.mu.Lock()
	p.cur = s
	p.mu.Unlock()
	p.metrics.RecordCaptureStarted()
	s.log.Info("capture started")
	return nil
}

// Stop ends the capture, drops in-flight slices and finalizes the recording.
// It is a no-op while idle.
func (p *Pipeline) Stop() error {
	p.transition.Lock()
	defer p.transition.Unlock()

	p.mu.Lock()
	s := p.cur
	p.cur = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}

	close(s.stop)
	<-s.done
	p.playCue(StopCueHz)

	rec := models.Recording{SessionID: s.id, MimeType: s.mime, Pieces: s.pieces}
	s.log.WithField("pieces", len(rec.Pieces)).Info("capture stopped")
	if s.onFinalize != nil {
		s.onFinalize(rec)
	}
	return nil
}

func (p *Pipeline) playCue(hz float64) {
	if p.cue != nil {
		p.cue.PlayCue(hz)
	}
}

type slice struct {
	enc      SliceEncoder
	deadline time.Time
}

// session is owned by its loop goroutine from Start until done is closed.
type session struct {
	id, mime   string
	cfg        Config
	stream     Stream
	codecs     Codecs
	clock      Clock
	log        *logrus.Entry
	metrics    *metrics.Metrics
	onFragment FragmentFunc
	onFinalize FinalizeFunc

	stop chan struct{}
	done chan struct{}

	ticker Ticker
	timer  Timer
	active []*slice
	pieces [][]byte
}

func (s *session) loop() {
	defer close(s.done)
	defer s.shutdown()

	frames := s.stream.Frames()
	tick := s.ticker.C()
	for {
		var timerC <-chan time.Time
		if s.timer != nil {
			timerC = s.timer.C()
		}

		select {
		case <-s.stop:
			return
		case frame, ok := <-frames:
			if !ok {
				s.log.Warn("microphone stream ended")
				frames, tick = nil, nil
				s.ticker.Stop()
				s.abortAll()
				continue
			}
			s.write(frame)
		case <-tick:
			s.startSlice()
		case <-timerC:
			s.timer = nil
			s.finishDue()
		}
	}
}

func (s *session) startSlice() {
	enc, err := s.codecs.NewSliceEncoder(s.mime, s.stream.SampleRate())
	if err != nil {
		s.log.WithError(err).Warn("slice encoder failed to start")
		return
	}
	s.active = append(s.active, &slice{enc: enc, deadline: s.clock.Now().Add(s.cfg.SliceLength)})
	if s.timer == nil {
		s.armTimer()
	}
}

func (s *session) write(frame []int16) {
	kept := s.active[:0]
	for _, sl := range s.active {
		if err := sl.enc.Write(frame); err != nil {
			s.log.WithError(err).Warn("slice encoder write failed")
			sl.enc.Abort()
			s.metrics.RecordSliceAborted()
			continue
		}
		kept = append(kept, sl)
	}
	s.active = kept
}

// finishDue completes the oldest slice and any others already past their deadline.
func (s *session) finishDue() {
	if len(s.active) == 0 {
		return
	}
	s.finish(s.active[0])
	s.active = s.active[1:]

	now := s.clock.Now()
	for len(s.active) > 0 && !s.active[0].deadline.After(now) {
		s.finish(s.active[0])
		s.active = s.active[1:]
	}
	s.armTimer()
}

func (s *session) armTimer() {
	if len(s.active) == 0 {
		return
	}
	d := s.active[0].deadline.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	s.timer = s.clock.NewTimer(d)
}

func (s *session) finish(sl *slice) {
	data, err := sl.enc.Finish()
	if err != nil || len(data) == 0 {
		s.log.WithError(err).Warn("slice produced no fragment")
		s.metrics.RecordSliceAborted()
		return
	}
	frag := models.AudioFragment{Seq: int64(len(s.pieces)), MimeType: s.mime, Data: data}
	s.pieces = append(s.pieces, data)
	s.metrics.RecordSlice(len(data))
	if s.onFragment != nil {
		s.onFragment(s.id, frag)
	}
}

func (s *session) abortAll() {
	for _, sl := range s.active {
		sl.enc.Abort()
		s.metrics.RecordSliceAborted()
	}
	s.active = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *session) shutdown() {
	s.ticker.Stop()
	s.abortAll()
	if err := s.stream.Close(); err != nil {
		s.log.WithError(err).Warn("closing microphone")
	}
}
