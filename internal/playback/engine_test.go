package playback

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/livevoice/internal/audio"
	"github.com/yoockh/livevoice/internal/logger"
	"github.com/yoockh/livevoice/internal/utils"
)

type scheduledCall struct {
	at   int64
	n    int
	gain *Gain
}

// fakeSink runs at 16 kHz, where one sample is exactly 62.5us.
type fakeSink struct {
	mu     sync.Mutex
	pos    int64
	calls  []scheduledCall
	direct []*audio.Buffer
}

func (s *fakeSink) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *fakeSink) Now() time.Duration { return samplesToDuration(s.Position(), 16000) }

func (s *fakeSink) SampleRate() int { return 16000 }

func (s *fakeSink) Schedule(buf *audio.Buffer, at int64, gain *Gain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduledCall{at: at, n: len(buf.Samples), gain: gain})
}

func (s *fakeSink) PlayDirect(buf *audio.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct = append(s.direct, buf)
}

func (s *fakeSink) advance(d time.Duration) {
	s.mu.Lock()
	s.pos += int64(d * 16000 / time.Second)
	s.mu.Unlock()
}

func wavFragment(t *testing.T, d time.Duration, value int16) string {
	t.Helper()
	n := int(d * 16000 / time.Second)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = value
	}
	data, err := audio.EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func TestScheduleNeverOverlaps(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(WAVDecoder{}, sink, nil, logger.Discard(), nil)

	// irregular arrivals: bursts, early and late fragments
	arrivals := []struct {
		gap time.Duration
		dur time.Duration
	}{
		{0, 800 * time.Millisecond},
		{10 * time.Millisecond, 800 * time.Millisecond},
		{20 * time.Millisecond, 600 * time.Millisecond},
		{3 * time.Second, 800 * time.Millisecond}, // late: cursor is behind now
		{100 * time.Millisecond, 400 * time.Millisecond},
		{0, 800 * time.Millisecond},
	}
	var got []Scheduled
	for _, a := range arrivals {
		sink.advance(a.gap)
		s, err := e.PlayFragment(context.Background(), wavFragment(t, a.dur, 100))
		if err != nil {
			t.Fatal(err)
		}
		if s.Start < sink.Now() {
			t.Fatalf("scheduled in the past: %v < %v", s.Start, sink.Now())
		}
		got = append(got, s)
	}

	for i := 1; i < len(got); i++ {
		if got[i].Start < got[i-1].Start {
			t.Fatalf("start %d decreased", i)
		}
		if got[i-1].End() > got[i].Start {
			t.Fatalf("fragment %d overlaps %d: %v > %v", i-1, i, got[i-1].End(), got[i].Start)
		}
	}
	// back-to-back while early
	if got[1].Start != got[0].End() {
		t.Errorf("early fragment should wait for the previous one")
	}
	// late fragment plays immediately without inserted silence
	if got[3].Start != sink.Now()-100*time.Millisecond {
		t.Errorf("late fragment start = %v", got[3].Start)
	}
	if e.NextPlayTime() != got[len(got)-1].End() {
		t.Errorf("NextPlayTime = %v", e.NextPlayTime())
	}
}

func TestDecodeFailureDoesNotBlockNext(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(WAVDecoder{}, sink, nil, logger.Discard(), nil)

	first, err := e.PlayFragment(context.Background(), wavFragment(t, 800*time.Millisecond, 1))
	if err != nil {
		t.Fatal(err)
	}
	before := e.NextPlayTime()

	corrupt := base64.StdEncoding.EncodeToString([]byte("RIFF\x00\x00garbage"))
	for _, bad := range []string{corrupt, "%%%not base64%%%"} {
		_, err := e.PlayFragment(context.Background(), bad)
		if !utils.IsCode(err, utils.CodeDecode) {
			t.Fatalf("err = %v, want DECODE_FAILURE", err)
		}
		if e.NextPlayTime() != before {
			t.Fatal("failed decode moved the cursor")
		}
	}

	next, err := e.PlayFragment(context.Background(), wavFragment(t, 800*time.Millisecond, 2))
	if err != nil {
		t.Fatalf("fragment after failure: %v", err)
	}
	if next.Start != first.End() {
		t.Errorf("next start = %v, want %v", next.Start, first.End())
	}
	if len(sink.calls) != 2 {
		t.Fatalf("scheduled %d, want 2", len(sink.calls))
	}
}

func TestAllSourcesShareOneGain(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(WAVDecoder{}, sink, NewGain(1), logger.Discard(), nil)
	for i := 0; i < 3; i++ {
		if _, err := e.PlayFragment(context.Background(), wavFragment(t, 100*time.Millisecond, 1)); err != nil {
			t.Fatal(err)
		}
	}
	for _, c := range sink.calls {
		if c.gain != e.Gain() {
			t.Fatal("source scheduled with a private gain")
		}
	}
}

func TestResampleToSinkRate(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(WAVDecoder{}, sink, nil, logger.Discard(), nil)
	s := e.PlayBuffer(&audio.Buffer{Samples: make([]int16, 8000), SampleRate: 8000})
	if s.Duration != time.Second {
		t.Fatalf("duration = %v", s.Duration)
	}
}

func TestCueBypassesGain(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(WAVDecoder{}, sink, NewGain(0), logger.Discard(), nil)
	e.PlayCue(600)
	if len(sink.direct) != 1 || len(sink.calls) != 0 {
		t.Fatal("cue must be played directly")
	}
	if d := sink.direct[0].Duration(); d != 150*time.Millisecond {
		t.Errorf("cue length = %v", d)
	}
}

func TestBackToBackFragmentsShareNoSampleAt44100(t *testing.T) {
	sink := NewStreamSink(44100, 0)
	e := NewEngine(WAVDecoder{}, sink, nil, logger.Discard(), nil)

	const n = 35281 // 800.018ms, not a whole number of nanoseconds
	values := []int16{1, 2, 4}
	var got []Scheduled
	for _, v := range values {
		got = append(got, e.PlayBuffer(constantAt(n, v, 44100)))
	}

	for i := 1; i < len(got); i++ {
		if got[i].StartSample != got[i-1].StartSample+got[i-1].Samples {
			t.Fatalf("fragment %d starts at sample %d, previous ends at %d",
				i, got[i].StartSample, got[i-1].StartSample+got[i-1].Samples)
		}
		if got[i-1].End() > got[i].Start {
			t.Fatalf("fragment %d overlaps %d: %v > %v", i-1, i, got[i-1].End(), got[i].Start)
		}
	}

	out := sink.Render(len(values) * n)
	for i, v := range out {
		if want := values[i/n]; v != want {
			t.Fatalf("sample %d = %d, want %d", i, v, want)
		}
	}
}
