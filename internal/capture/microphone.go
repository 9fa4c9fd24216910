package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/audio"
)

// Stream is a live microphone signal as mono PCM-16 frames.
type Stream interface {
	// Frames is closed when the device stops producing audio.
	Frames() <-chan []int16
	SampleRate() int
	Close() error
}

// Microphone grants access to a Stream. Open fails when access is refused.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// FFmpegMicrophone captures the default input device through an ffmpeg child process.
type FFmpegMicrophone struct {
	FFmpeg        *audio.FFmpeg
	InputFormat   string // pulse, alsa, avfoundation, dshow
	Device        string
	SampleRate    int
	FrameDuration time.Duration
	ProbeTimeout  time.Duration
	Logger        *logrus.Logger
}

// DefaultInput returns the ffmpeg input format and device for this OS.
func DefaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func (m *FFmpegMicrophone) Open(ctx context.Context) (Stream, error) {
	if err := m.FFmpeg.Check(); err != nil {
		return nil, err
	}

	format, device := m.InputFormat, m.Device
	if format == "" || device == "" {
		df, dd := DefaultInput()
		if format == "" {
			format = df
		}
		if device == "" {
			device = dd
		}
	}
	rate := m.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	frameDur := m.FrameDuration
	if frameDur <= 0 {
		frameDur = 20 * time.Millisecond
	}
	probe := m.ProbeTimeout
	if probe <= 0 {
		probe = 3 * time.Second
	}

	cmd := exec.Command(m.FFmpeg.Path,
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", device,
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "s16le", "pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg capture: %w", err)
	}

	s := &ffmpegStream{
		cmd:    cmd,
		rate:   rate,
		frames: make(chan []int16, 64),
		ready:  make(chan struct{}),
		exited: make(chan struct{}),
		log:    m.Logger,
	}
	frameBytes := int(int64(rate)*int64(frameDur)/int64(time.Second)) * 2
	go s.read(stdout, frameBytes)

	select {
	case <-s.ready:
		return s, nil
	case <-s.exited:
		_ = s.Close()
		return nil, fmt.Errorf("microphone capture exited: %s", strings.TrimSpace(stderr.String()))
	case <-time.After(probe):
		_ = s.Close()
		return nil, fmt.Errorf("no audio from microphone after %s: %s", probe, strings.TrimSpace(stderr.String()))
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	rate   int
	frames chan []int16
	ready  chan struct{}
	exited chan struct{}
	log    *logrus.Logger

	closeOnce sync.Once
	dropped   int
}

func (s *ffmpegStream) Frames() <-chan []int16 { return s.frames }
func (s *ffmpegStream) SampleRate() int        { return s.rate }

func (s *ffmpegStream) read(r io.Reader, frameBytes int) {
	defer close(s.exited)
	defer close(s.frames)

	first := true
	buf := make([]byte, frameBytes)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && s.log != nil {
				s.log.WithError(err).Warn("microphone read failed")
			}
			return
		}
		if first {
			close(s.ready)
			first = false
		}
		select {
		case s.frames <- audio.BytesToSamples(buf):
		default:
			// consumer is behind; a dropped frame is a short gap
			s.dropped++
		}
	}
}

func (s *ffmpegStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		err = s.cmd.Wait()
		if s.dropped > 0 && s.log != nil {
			s.log.WithField("dropped_frames", s.dropped).Warn("microphone frames dropped")
		}
	})
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil // killed on purpose
	}
	return err
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
