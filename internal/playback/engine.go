package playback

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/audio"
	"github.com/yoockh/livevoice/internal/metrics"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/utils"
)

const (
	cueLength    = 150 * time.Millisecond
	cueStartGain = 0.05
	cueEndGain   = 0.001
)

// Sink renders scheduled buffers. Position is the number of samples it has
// rendered so far, at SampleRate.
type Sink interface {
	Position() int64
	SampleRate() int
	// Schedule queues buf at sample index at, scaled by gain at render time.
	Schedule(buf *audio.Buffer, at int64, gain *Gain)
	// PlayDirect plays buf as soon as possible at unity gain.
	PlayDirect(buf *audio.Buffer)
}

// Scheduled is where a fragment landed on the timeline.
type Scheduled struct {
	Start    time.Duration
	Duration time.Duration

	// StartSample and Samples locate the fragment at the sink rate.
	StartSample int64
	Samples     int64
}

func (s Scheduled) End() time.Duration { return s.Start + s.Duration }

// Engine is the jitter buffer. It owns nextPlayTime for the whole process,
// so concurrent speakers are serialized onto one timeline.
type Engine struct {
	dec     Decoder
	sink    Sink
	gain    *Gain
	log     *logrus.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
	// next is nextPlayTime as a sample index, so back-to-back fragments
	// never share a sample at rates that do not divide a second evenly.
	next int64
}

func NewEngine(dec Decoder, sink Sink, gain *Gain, log *logrus.Logger, m *metrics.Metrics) *Engine {
	if gain == nil {
		gain = NewGain(1)
	}
	return &Engine{dec: dec, sink: sink, gain: gain, log: log, metrics: m}
}

func (e *Engine) Gain() *Gain { return e.gain }

// SetVolume changes the master gain for queued and future audio.
func (e *Engine) SetVolume(v float64) { e.gain.Set(v) }

// PlayFragment decodes a base64 fragment and queues it right after the previous one.
// A failure leaves the timeline untouched.
func (e *Engine) PlayFragment(ctx context.Context, b64 string) (Scheduled, error) {
	const op = "Engine.PlayFragment"

	data, err := models.DecodeBase64Payload(b64)
	if err != nil {
		return Scheduled{}, e.decodeFailed(op, "invalid base64 payload", err)
	}
	buf, err := e.dec.Decode(ctx, data)
	if err != nil {
		return Scheduled{}, e.decodeFailed(op, "corrupt fragment", err)
	}
	if len(buf.Samples) == 0 || buf.SampleRate <= 0 {
		return Scheduled{}, e.decodeFailed(op, "empty fragment", nil)
	}
	return e.PlayBuffer(buf), nil
}

// PlayBuffer schedules decoded audio at max(now, nextPlayTime).
func (e *Engine) PlayBuffer(buf *audio.Buffer) Scheduled {
	if rate := e.sink.SampleRate(); buf.SampleRate != rate {
		buf = audio.Resample(buf, rate)
	}
	rate := int64(e.sink.SampleRate())
	n := int64(len(buf.Samples))

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.sink.Position()
	start := e.next
	if now > start {
		e.metrics.RecordLateness(samplesToDuration(now-start, rate).Seconds())
		start = now
	} else {
		e.metrics.RecordLateness(0)
	}
	e.next = start + n
	e.sink.Schedule(buf, start, e.gain)
	return Scheduled{
		Start:       samplesToDuration(start, rate),
		Duration:    samplesToDuration(n, rate),
		StartSample: start,
		Samples:     n,
	}
}

// NextPlayTime is the timeline position the next fragment would start at, at the earliest.
func (e *Engine) NextPlayTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return samplesToDuration(e.next, int64(e.sink.SampleRate()))
}

// PlayCue plays a short decaying tone outside the master gain.
func (e *Engine) PlayCue(freqHz float64) {
	e.sink.PlayDirect(audio.Tone(freqHz, cueLength, e.sink.SampleRate(), cueStartGain, cueEndGain))
}

func (e *Engine) decodeFailed(op, msg string, err error) error {
	e.metrics.RecordDecodeFailure()
	if e.log != nil {
		e.log.WithError(err).WithField("op", op).Warn(msg)
	}
	return utils.E(utils.CodeDecode, op, msg, err)
}

// samplesToDuration truncates; floor(a)+floor(b) <= floor(a+b) keeps
// Start+Duration from passing the next Start.
func samplesToDuration(n, rate int64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n * int64(time.Second) / rate)
}
