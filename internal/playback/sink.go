package playback

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/audio"
)

const DefaultFrame = 20 * time.Millisecond

type voice struct {
	samples []int16
	start   int64 // sample index on the timeline
	gain    *Gain
}

// StreamSink is a real-time mixer. Its clock is the number of samples rendered.
type StreamSink struct {
	rate  int
	frame int

	mu     sync.Mutex
	pos    int64
	voices []*voice
}

func NewStreamSink(sampleRate int, frame time.Duration) *StreamSink {
	if frame <= 0 {
		frame = DefaultFrame
	}
	n := int(int64(sampleRate) * int64(frame) / int64(time.Second))
	if n < 1 {
		n = 1
	}
	return &StreamSink{rate: sampleRate, frame: n}
}

func (s *StreamSink) SampleRate() int { return s.rate }

// Position is the number of samples rendered.
func (s *StreamSink) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Now is Position on the wall-clock scale.
func (s *StreamSink) Now() time.Duration {
	return s.toDuration(s.Position())
}

func (s *StreamSink) Schedule(buf *audio.Buffer, at int64, gain *Gain) {
	s.add(buf, at, gain)
}

func (s *StreamSink) PlayDirect(buf *audio.Buffer) {
	if buf.SampleRate != s.rate {
		buf = audio.Resample(buf, s.rate)
	}
	s.add(buf, -1, nil)
}

func (s *StreamSink) add(buf *audio.Buffer, start int64, gain *Gain) {
	if len(buf.Samples) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if start < s.pos {
		start = s.pos
	}
	s.voices = append(s.voices, &voice{samples: buf.Samples, start: start, gain: gain})
}

// Pending reports how many sources are queued or playing.
func (s *StreamSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// Render mixes the next n samples and advances the clock.
func (s *StreamSink) Render(n int) []int16 {
	out := make([]int16, n)
	mix := make([]float64, n)

	s.mu.Lock()
	from, to := s.pos, s.pos+int64(n)
	kept := s.voices[:0]
	for _, v := range s.voices {
		end := v.start + int64(len(v.samples))
		if v.start < to && end > from {
			g := v.gain.Get()
			lo, hi := max(v.start, from), min(end, to)
			for i := lo; i < hi; i++ {
				mix[i-from] += float64(v.samples[i-v.start]) * g
			}
		}
		if end > to {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(s.voices); i++ {
		s.voices[i] = nil
	}
	s.voices = kept
	s.pos = to
	s.mu.Unlock()

	for i, v := range mix {
		out[i] = audio.Clip(v)
	}
	return out
}

// Run renders one frame per frame period into w until ctx ends.
func (s *StreamSink) Run(ctx context.Context, w io.Writer) error {
	period := s.toDuration(int64(s.frame))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Write(audio.SamplesToBytes(s.Render(s.frame))); err != nil {
				return err
			}
		}
	}
}

func (s *StreamSink) toDuration(samples int64) time.Duration {
	return samplesToDuration(samples, int64(s.rate))
}

// DefaultPlayerCommand reads s16le mono PCM from stdin; {rate} is substituted.
const DefaultPlayerCommand = "ffplay -nodisp -loglevel error -f s16le -ar {rate} -ac 1 -i pipe:0"

// Player is an external process consuming the sink output.
type Player struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	log   *logrus.Logger
}

// StartPlayer launches command. "none" discards audio while keeping the clock running.
func StartPlayer(command string, sampleRate int, log *logrus.Logger) (*Player, error) {
	if command == "" {
		command = DefaultPlayerCommand
	}
	if command == "none" {
		return &Player{log: log}, nil
	}
	args := strings.Fields(strings.ReplaceAll(command, "{rate}", strconv.Itoa(sampleRate)))
	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	log.WithField("player", args[0]).Info("audio player started")
	return &Player{cmd: cmd, stdin: stdin, log: log}, nil
}

func (p *Player) Write(b []byte) (int, error) {
	if p.stdin == nil {
		return len(b), nil
	}
	return p.stdin.Write(b)
}

func (p *Player) Close() error {
	if p.cmd == nil {
		return nil
	}
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}
